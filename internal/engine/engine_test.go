package engine_test

import (
	"encoding/binary"
	"testing"

	"github.com/athenavm/athena/internal/engine"
	"github.com/athenavm/athena/internal/hostref"
	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
)

// Hand-assembled RV32EM encoder helpers, mirroring internal/vm's own test
// helpers but exported-field-only since this is an external test package.
func addi(rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | vm.F3ADDSUB<<12 | rd<<7 | uint32(vm.OpOpImm)
}

func ecall() uint32 { return uint32(vm.OpSystem) }

func ebreak() uint32 { return 1<<20 | uint32(vm.OpSystem) }

func assemble(words []uint32) []byte {
	buf := make([]byte, 0, 4*len(words)+4)
	buf = append(buf, 0x7F, 'A', 'T', 'H') // flat-text fast path (spec §6)
	for _, w := range words {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		buf = append(buf, b[:]...)
	}
	return buf
}

const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regT0 = 5

	sysGetBalance = 0xA3
	sysWrite      = 2
	sysHalt       = 0
	fdOutput      = 3
)

// TestGetBalanceWriteHaltScenario mirrors spec §8 scenario 1: a program
// reads its own balance and echoes it back as the 32-byte output, then exits
// cleanly. The literal gas_left asserted here is derived from this test's
// own hand-assembled instruction sequence (traced below), not copied from
// the spec's own reference-implementation program, since the two programs
// are not byte-identical.
func TestGetBalanceWriteHaltScenario(t *testing.T) {
	// The buffer lives 256 bytes below the stack top, inside the
	// read-write page NewFrame maps for the stack (spec §3) — a word-
	// addressable immediate offset off SP, since ADDI's 12-bit immediate
	// can't reach an absolute high address directly.
	program := assemble([]uint32{
		addi(regA0, vm.RegSP, -256),    // a0 = buf ptr
		addi(regT0, 0, sysGetBalance), // t0 = GETBALANCE
		ecall(),
		addi(regA1, regA0, 0),   // a1 = buf ptr (copied before a0 is reused)
		addi(regA0, 0, fdOutput), // a0 = fd
		addi(regA2, 0, 32),       // a2 = len
		addi(regT0, 0, sysWrite), // t0 = WRITE
		ecall(),
		addi(regA0, 0, 0), // a0 = exit code 0
		addi(regT0, 0, sysHalt),
		ecall(),
	})

	host := hostref.New(vm.TxContext{})
	recipient := vm.Address{0xAA}
	sender := vm.Address{0xBB}
	host.SetBalance(recipient, 1000)

	msg := vm.Message{
		Kind:      vm.MessageKindCall,
		Recipient: recipient,
		Sender:    sender,
		Gas:       100,
	}

	result := engine.Execute(engine.FRONTIER, host, msg, program, nil)

	if result.StatusCode != statuscode.Success {
		t.Fatalf("status = %v, want SUCCESS", result.StatusCode)
	}
	if len(result.Output) != 32 {
		t.Fatalf("output len = %d, want 32", len(result.Output))
	}
	gotBalance := binary.LittleEndian.Uint64(result.Output[:8])
	if gotBalance != 1000 {
		t.Fatalf("output balance = %d, want 1000", gotBalance)
	}
	for i, b := range result.Output[8:] {
		if b != 0 {
			t.Fatalf("output byte %d = %d, want 0", i+8, b)
		}
	}
	// Trace: addi(1)+addi(1)+ecall(1+5)+addi(1)+addi(1)+addi(1)+addi(1)+
	// ecall(1+1)+addi(1)+addi(1)+ecall(1+1) = 18 consumed from a 100 budget.
	if result.GasLeft != 82 {
		t.Fatalf("gas_left = %d, want 82", result.GasLeft)
	}
}

func TestHaltWithNonZeroExitCodeReverts(t *testing.T) {
	program := assemble([]uint32{
		addi(regA0, 0, 1), // a0 = exit code 1
		addi(regT0, 0, sysHalt),
		ecall(),
	})
	host := hostref.New(vm.TxContext{})
	msg := vm.Message{Kind: vm.MessageKindCall, Recipient: vm.Address{1}, Sender: vm.Address{2}, Gas: 100}

	result := engine.Execute(engine.FRONTIER, host, msg, program, nil)
	if result.StatusCode != statuscode.Revert {
		t.Fatalf("status = %v, want REVERT", result.StatusCode)
	}
}

func TestOutOfGasZeroesGasLeftAndOutput(t *testing.T) {
	program := assemble([]uint32{
		addi(regA0, 0, 1),
		addi(regA0, regA0, 1),
		addi(regA0, regA0, 1),
	})
	host := hostref.New(vm.TxContext{})
	msg := vm.Message{Kind: vm.MessageKindCall, Recipient: vm.Address{1}, Sender: vm.Address{2}, Gas: 2}

	result := engine.Execute(engine.FRONTIER, host, msg, program, nil)
	if result.StatusCode != statuscode.OutOfGas {
		t.Fatalf("status = %v, want OUT_OF_GAS", result.StatusCode)
	}
	if result.GasLeft != 0 {
		t.Fatalf("gas_left = %d, want 0", result.GasLeft)
	}
	if result.Output != nil {
		t.Fatalf("output = %v, want nil on fault", result.Output)
	}
}

func TestEBREAKFaultsWithoutDebugStub(t *testing.T) {
	program := assemble([]uint32{ebreak()})
	host := hostref.New(vm.TxContext{})
	msg := vm.Message{Kind: vm.MessageKindCall, Recipient: vm.Address{1}, Sender: vm.Address{2}, Gas: 100}

	result := engine.Execute(engine.FRONTIER, host, msg, program, nil)
	if result.StatusCode != statuscode.Trap {
		t.Fatalf("status = %v, want TRAP", result.StatusCode)
	}
}

func TestCallDepthExceededRefusesWithoutRunning(t *testing.T) {
	host := hostref.New(vm.TxContext{})
	msg := vm.Message{
		Kind:      vm.MessageKindCall,
		Depth:     engine.MaxCallDepth + 1,
		Recipient: vm.Address{1},
		Sender:    vm.Address{2},
		Gas:       100,
	}
	result := engine.Execute(engine.FRONTIER, host, msg, []byte{0x7F, 'A', 'T', 'H'}, nil)
	if result.StatusCode != statuscode.CallDepthExceeded {
		t.Fatalf("status = %v, want CALL_DEPTH_EXCEEDED", result.StatusCode)
	}
}

func TestUnsupportedRevisionIsRejected(t *testing.T) {
	host := hostref.New(vm.TxContext{})
	msg := vm.Message{Kind: vm.MessageKindCall, Recipient: vm.Address{1}, Sender: vm.Address{2}, Gas: 100}
	result := engine.Execute(engine.Revision(99), host, msg, []byte{0x7F, 'A', 'T', 'H'}, nil)
	if result.StatusCode != statuscode.Rejected {
		t.Fatalf("status = %v, want REJECTED", result.StatusCode)
	}
}

func TestCallToCodelessAddressFailsAfterValueTransfer(t *testing.T) {
	// A CALL to an address with no registered code resolves to a failed
	// sub-call rather than a fault for the caller (spec §7), exercised here
	// through hostref.Host.Call directly rather than hand-assembled CALL
	// syscall bytes (covered separately in internal/syscall's CALL tests).
	host := hostref.New(vm.TxContext{})
	sender := vm.Address{1}
	host.SetBalance(sender, 500)

	result := host.Call(vm.Message{
		Kind:      vm.MessageKindCall,
		Depth:     0,
		Gas:       100,
		Recipient: vm.Address{2},
		Sender:    sender,
		Value:     10,
	})
	if result.StatusCode != statuscode.Failure {
		t.Fatalf("status = %v, want FAILURE for a call to code-less address", result.StatusCode)
	}
	if host.GetBalance(sender) != 490 {
		t.Fatalf("sender balance = %d, want 490 (value debited even though the callee has no code)", host.GetBalance(sender))
	}
	if host.GetBalance(vm.Address{2}) != 10 {
		t.Fatalf("recipient balance = %d, want 10", host.GetBalance(vm.Address{2}))
	}
}

func TestCreateReturnsStableHandle(t *testing.T) {
	handle := engine.Create()
	if handle.ABIVersion != 1 {
		t.Fatalf("ABIVersion = %d, want 1", handle.ABIVersion)
	}
	host := hostref.New(vm.TxContext{})
	program := assemble([]uint32{addi(regT0, 0, sysHalt), ecall()})
	result := handle.Execute(host, engine.FRONTIER, vm.Message{Recipient: vm.Address{1}, Sender: vm.Address{2}, Gas: 10}, program)
	if result.StatusCode != statuscode.Success {
		t.Fatalf("status = %v, want SUCCESS", result.StatusCode)
	}
}
