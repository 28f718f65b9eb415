package syscall

import (
	"encoding/binary"

	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
)

// syscallHalt implements HALT (spec §4.5's "exit syscall"; the spec's
// syscall table itself omits a number for it, so this is grounded directly
// on original_source's entrypoint/src/syscalls/halt.rs convention: a0 is an
// 8-bit exit code, 0 for success). A non-zero exit code reverts rather than
// faults, preserving output and residual gas per spec §7's REVERT semantics.
func syscallHalt(ctx *Context, f *vm.Frame) error {
	exitCode := f.Regs.Read(vm.RegA0)
	if exitCode == 0 {
		f.Halt()
	} else {
		f.Revert()
	}
	return nil
}

// syscallWrite implements WRITE: a0=fd, a1=buf ptr, a2=len. fd=3 appends to
// the frame's output_buffer (spec §4.4); fd=1/2 are stdout/stderr (ignored
// here — the reference host doesn't capture program logs, unlike the
// teacher's sol_log_ which does).
func syscallWrite(ctx *Context, f *vm.Frame) error {
	fd := f.Regs.Read(vm.RegA0)
	ptr := f.Regs.Read(vm.RegA1)
	n := f.Regs.Read(vm.RegA2)

	data, err := loadBytes(f, ptr, int(n))
	if err != nil {
		return err
	}

	switch fd {
	case FDOutputToCaller:
		f.Output = append(f.Output, data...)
	case FDStdout, FDStderr:
		// observational only; the reference host discards program logs.
	default:
		return statuscode.New(statuscode.InvalidSyscallArgument)
	}
	return nil
}

// syscallRead implements READ: a0=fd, a1=buf ptr, a2=len. fd=0 is the
// calldata channel; reading past end faults INSUFFICIENT_INPUT (spec §4.4).
func syscallRead(ctx *Context, f *vm.Frame) error {
	fd := f.Regs.Read(vm.RegA0)
	ptr := f.Regs.Read(vm.RegA1)
	n := int(f.Regs.Read(vm.RegA2))

	var stream *Stream
	switch fd {
	case FDCalldata:
		stream = ctx.Calldata
	default:
		return statuscode.New(statuscode.InvalidSyscallArgument)
	}

	if stream.Remaining() < n {
		return statuscode.New(statuscode.InsufficientInput)
	}
	buf := make([]byte, n)
	stream.Read(buf)
	if err := storeBytes(f, ptr, buf); err != nil {
		return err
	}
	return nil
}

// syscallGetStorage implements GET_STORAGE: a0=key ptr, a1=value-out ptr.
func syscallGetStorage(ctx *Context, f *vm.Frame) error {
	keyPtr := f.Regs.Read(vm.RegA0)
	outPtr := f.Regs.Read(vm.RegA1)

	key, err := loadWord256(f, keyPtr)
	if err != nil {
		return err
	}
	value := ctx.Host.GetStorage(ctx.Address, key)
	return storeBytes(f, outPtr, value[:])
}

// syscallSetStorage implements SET_STORAGE: a0=key ptr, a1=value ptr.
// Returns the StorageStatus classification in a0.
func syscallSetStorage(ctx *Context, f *vm.Frame) error {
	keyPtr := f.Regs.Read(vm.RegA0)
	valPtr := f.Regs.Read(vm.RegA1)

	key, err := loadWord256(f, keyPtr)
	if err != nil {
		return err
	}
	value, err := loadWord256(f, valPtr)
	if err != nil {
		return err
	}
	status := ctx.Host.SetStorage(ctx.Address, key, value)
	f.Regs.Write(vm.RegA0, uint32(status))
	return nil
}

// syscallGetBalance implements GETBALANCE: a0=value-out ptr (8 bytes LE).
func syscallGetBalance(ctx *Context, f *vm.Frame) error {
	outPtr := f.Regs.Read(vm.RegA0)
	balance := ctx.Host.GetBalance(ctx.Address)
	var buf [8]byte
	putU64LE(buf[:], balance)
	return storeBytes(f, outPtr, buf[:])
}

// syscallCall implements CALL (spec §4.5): recursive invocation.
// a0=recipient addr ptr, a1=input ptr, a2=input len, a3=value ptr (8 bytes
// LE). Returns status in a0; the caller is expected to have pre-arranged
// its own output buffer retrieval via a subsequent GET_CONTEXT-style
// convention — here we write output length to a1 and copy output bytes
// back to the original input buffer location when it's large enough,
// mirroring the teacher's CPI "splice result back into caller memory"
// pattern (bpf_executor.go's deserializeOutput).
func syscallCall(ctx *Context, f *vm.Frame) error {
	addrPtr := f.Regs.Read(vm.RegA0)
	inputPtr := f.Regs.Read(vm.RegA1)
	inputLen := f.Regs.Read(vm.RegA2)
	valuePtr := f.Regs.Read(vm.RegA3)

	recipient, err := loadAddress(f, addrPtr)
	if err != nil {
		return err
	}
	input, err := loadBytes(f, inputPtr, int(inputLen))
	if err != nil {
		return err
	}
	valueBytes, err := loadBytes(f, valuePtr, 8)
	if err != nil {
		return err
	}
	value := binary.LittleEndian.Uint64(valueBytes)

	gasLeft := f.Gas.Remaining()
	msg := vm.Message{
		Kind:           vm.MessageKindCall,
		Depth:          ctx.Depth + 1,
		Gas:            gasLeft,
		Recipient:      recipient,
		Sender:         ctx.Address,
		SenderTemplate: ctx.CallerTemplate,
		Input:          input,
		Value:          value,
	}

	result := ctx.Host.Call(msg)

	// Credit back unused sub-call gas (spec §4.5: "remaining sub-call gas
	// is credited back to the caller").
	spent := gasLeft - result.GasLeft
	if spent < 0 {
		spent = 0
	}
	f.Gas.Consume(spent)

	if result.StatusCode == statuscode.Success {
		// Splice output back into the caller's input buffer, truncated to
		// whatever room the caller reserved there.
		n := len(result.Output)
		if n > int(inputLen) {
			n = int(inputLen)
		}
		if n > 0 {
			if err := storeBytes(f, inputPtr, result.Output[:n]); err != nil {
				return err
			}
		}
		f.Regs.Write(vm.RegA0, uint32(statuscode.Success))
		f.Regs.Write(vm.RegA1, uint32(n))
		return nil
	}

	// A failed sub-CALL does NOT fault the caller; the caller observes the
	// status and decides (spec §7).
	f.Regs.Write(vm.RegA0, uint32(result.StatusCode))
	f.Regs.Write(vm.RegA1, 0)
	return nil
}

// syscallSpawn implements SPAWN: a0=pubkey/seed blob ptr, a1=blob len,
// a2=address-out ptr (24 bytes).
func syscallSpawn(ctx *Context, f *vm.Frame) error {
	ptr := f.Regs.Read(vm.RegA0)
	n := f.Regs.Read(vm.RegA1)
	outPtr := f.Regs.Read(vm.RegA2)

	blob, err := loadBytes(f, ptr, int(n))
	if err != nil {
		return err
	}
	addr := ctx.Host.Spawn(blob)
	return storeBytes(f, outPtr, addr[:])
}

// syscallDeploy implements DEPLOY: a0=code ptr, a1=code len, a2=address-out
// ptr (24 bytes).
func syscallDeploy(ctx *Context, f *vm.Frame) error {
	ptr := f.Regs.Read(vm.RegA0)
	n := f.Regs.Read(vm.RegA1)
	outPtr := f.Regs.Read(vm.RegA2)

	code, err := loadBytes(f, ptr, int(n))
	if err != nil {
		return err
	}
	addr, derr := ctx.Host.Deploy(code)
	if derr != nil {
		return statuscode.New(statuscode.PrecompileFailure)
	}
	return storeBytes(f, outPtr, addr[:])
}

// syscallGetContext implements GET_CONTEXT: a0=record-out ptr (88 bytes).
func syscallGetContext(ctx *Context, f *vm.Frame) error {
	outPtr := f.Regs.Read(vm.RegA0)
	record := ctx.Host.GetTxContext().Encode()
	return storeBytes(f, outPtr, record[:])
}

// syscallGetBlockHash implements GET_BLOCK_HASH: a0=height (lo 32 bits,
// sign-extended by the guest if needed), a1=hash-out ptr (32 bytes).
// Height travels as a single register and is sign-extended from 32 bits;
// heights outside the int32 range cannot be requested.
func syscallGetBlockHash(ctx *Context, f *vm.Frame) error {
	height := int32(f.Regs.Read(vm.RegA0))
	outPtr := f.Regs.Read(vm.RegA1)
	hash := ctx.Host.GetBlockHash(int64(height))
	return storeBytes(f, outPtr, hash[:])
}

// syscallHintLen implements HINT_LEN: returns remaining hint-stream bytes
// in a0 (SPEC_FULL.md Supplemented Features).
func syscallHintLen(ctx *Context, f *vm.Frame) error {
	f.Regs.Write(vm.RegA0, uint32(ctx.Hints.Remaining()))
	return nil
}

// syscallHintRead implements HINT_READ: a0=buf ptr, a1=len.
func syscallHintRead(ctx *Context, f *vm.Frame) error {
	ptr := f.Regs.Read(vm.RegA0)
	n := int(f.Regs.Read(vm.RegA1))
	if ctx.Hints.Remaining() < n {
		return statuscode.New(statuscode.InsufficientInput)
	}
	buf := make([]byte, n)
	ctx.Hints.Read(buf)
	return storeBytes(f, ptr, buf)
}
