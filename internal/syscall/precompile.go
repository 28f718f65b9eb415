package syscall

import (
	"crypto/ed25519"

	"github.com/athenavm/athena/internal/vm"
)

// syscallEd25519Verify implements PRECOMPILE_ED25519_VERIFY (SPEC_FULL.md
// Supplemented Features, grounded on original_source's
// core/src/syscall/precompiles/ed25519.rs): a0=pubkey ptr (32 bytes),
// a1=sig ptr (64 bytes), a2=msg ptr, a3=msg len. Returns 1/0 in a0 (spec §8
// scenarios 5/6). Implemented as a host-side precompile rather than guest
// bytecode for determinism and cost, the same reasoning the teacher applies
// to its sol_sha256/sol_keccak256 syscalls (registerCrypto).
func syscallEd25519Verify(ctx *Context, f *vm.Frame) error {
	pubkeyPtr := f.Regs.Read(vm.RegA0)
	sigPtr := f.Regs.Read(vm.RegA1)
	msgPtr := f.Regs.Read(vm.RegA2)
	msgLen := f.Regs.Read(vm.RegA3)

	pubkey, err := loadBytes(f, pubkeyPtr, ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	sig, err := loadBytes(f, sigPtr, ed25519.SignatureSize)
	if err != nil {
		return err
	}
	msg, err := loadBytes(f, msgPtr, int(msgLen))
	if err != nil {
		return err
	}

	ok := ed25519.Verify(pubkey, msg, sig)
	if ok {
		f.Regs.Write(vm.RegA0, 1)
	} else {
		f.Regs.Write(vm.RegA0, 0)
	}
	return nil
}
