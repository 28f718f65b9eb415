package vm

import (
	"math"
	"testing"

	"github.com/athenavm/athena/internal/statuscode"
)

func newTestFrame(t *testing.T, program []uint32, gasLimit int64) *Frame {
	t.Helper()
	mem := NewMemory()
	var buf []byte
	for _, w := range program {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	mem.WriteBytes(0, buf, Perm{Read: true, Execute: true})
	gas := NewGasMeter(gasLimit)
	return NewFrame(mem, gas, 0, 0)
}

// asm builders for the handful of instruction forms the tests below need.
func addi(rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | F3ADDSUB<<12 | rd<<7 | uint32(OpOpImm)
}

func ecall() uint32 { return uint32(OpSystem) }

func ebreak() uint32 { return 1<<20 | uint32(OpSystem) }

func opReg(funct7, rs2, rs1, funct3, rd uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | uint32(OpOp)
}

func jal(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	bit20 := (u >> 20) & 0x1
	bits10_1 := (u >> 1) & 0x3FF
	bit11 := (u >> 11) & 0x1
	bits19_12 := (u >> 12) & 0xFF
	return bit20<<31 | bits10_1<<21 | bit11<<20 | bits19_12<<12 | rd<<7 | uint32(OpJal)
}

func jalr(rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | rd<<7 | uint32(OpJalr)
}

func TestRunHaltsOnECALLWithNoHandler(t *testing.T) {
	f := newTestFrame(t, []uint32{ecall()}, 100)
	status := Run(f, nil, nil, nil)
	if status != statuscode.InvalidSyscallArgument {
		t.Fatalf("status = %v, want InvalidSyscallArgument", status)
	}
}

func TestRunInvokesSyscallHandler(t *testing.T) {
	f := newTestFrame(t, []uint32{ecall(), ecall()}, 100)
	calls := 0
	status := Run(f, func(fr *Frame) error {
		calls++
		fr.Halt()
		return nil
	}, nil, nil)
	if status != statuscode.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if calls != 1 {
		t.Fatalf("syscall invoked %d times, want 1", calls)
	}
}

func TestRunEBREAKFaultsWithoutStub(t *testing.T) {
	f := newTestFrame(t, []uint32{ebreak()}, 100)
	status := Run(f, nil, nil, nil)
	if status != statuscode.Trap {
		t.Fatalf("status = %v, want Trap", status)
	}
}

func TestRunOutOfGas(t *testing.T) {
	f := newTestFrame(t, []uint32{addi(1, 0, 1), addi(1, 1, 1), addi(1, 1, 1)}, 2)
	status := Run(f, nil, nil, nil)
	if status != statuscode.OutOfGas {
		t.Fatalf("status = %v, want OutOfGas", status)
	}
	if f.Gas.Remaining() != 0 {
		t.Fatalf("gas remaining = %d, want 0 after a fault", f.Gas.Remaining())
	}
}

func TestDivByZeroReturnsAllOnes(t *testing.T) {
	var r Registers
	r.Write(1, 10)
	r.Write(2, 0)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3DIV}
	execMulDiv(d, &r)
	if r.Read(3) != 0xFFFFFFFF {
		t.Fatalf("10 / 0 = %#x, want 0xFFFFFFFF", r.Read(3))
	}
}

func TestDivUByZeroReturnsAllOnes(t *testing.T) {
	var r Registers
	r.Write(1, 10)
	r.Write(2, 0)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3DIVU}
	execMulDiv(d, &r)
	if r.Read(3) != 0xFFFFFFFF {
		t.Fatalf("10 /u 0 = %#x, want 0xFFFFFFFF", r.Read(3))
	}
}

func TestRemByZeroReturnsDividend(t *testing.T) {
	var r Registers
	r.Write(1, 10)
	r.Write(2, 0)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3REM}
	execMulDiv(d, &r)
	if r.Read(3) != 10 {
		t.Fatalf("10 rem 0 = %d, want 10", int32(r.Read(3)))
	}
}

func TestDivOverflowIsDividend(t *testing.T) {
	var r Registers
	r.Write(1, 0x80000000)
	r.Write(2, 0xFFFFFFFF)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3DIV}
	execMulDiv(d, &r)
	if int32(r.Read(3)) != math.MinInt32 {
		t.Fatalf("MinInt32 / -1 = %d, want MinInt32", int32(r.Read(3)))
	}
}

func TestRemOverflowIsZero(t *testing.T) {
	var r Registers
	r.Write(1, 0x80000000)
	r.Write(2, 0xFFFFFFFF)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3REM}
	execMulDiv(d, &r)
	if r.Read(3) != 0 {
		t.Fatalf("MinInt32 rem -1 = %d, want 0", int32(r.Read(3)))
	}
}

func TestAddSubOp(t *testing.T) {
	var r Registers
	r.Write(1, 10)
	r.Write(2, 3)
	d := DecodedInstruction{Rd: 3, Rs1: 1, Rs2: 2, Funct3: F3ADDSUB, Funct7: Funct7Alt}
	execOp(d, &r)
	if r.Read(3) != 7 {
		t.Fatalf("10 - 3 = %d, want 7", r.Read(3))
	}
}

func TestX0WritesAreDiscarded(t *testing.T) {
	var r Registers
	r.Write(0, 42)
	if r.Read(0) != 0 {
		t.Fatalf("x0 = %d, want 0 after a write", r.Read(0))
	}
}

func TestJALWordMisalignedTargetFaults(t *testing.T) {
	// A halfword-granular but word-misaligned offset (+2) is a legal
	// J-immediate that must still be rejected: spec.md requires a 4-byte
	// aligned target.
	f := newTestFrame(t, []uint32{jal(1, 2)}, 100)
	status := Run(f, nil, nil, nil)
	if status != statuscode.BadJumpDestination {
		t.Fatalf("status = %v, want BadJumpDestination", status)
	}
}

func TestJALRWordMisalignedTargetFaults(t *testing.T) {
	f := newTestFrame(t, []uint32{addi(1, 0, 2), jalr(5, 1, 0)}, 100)
	status := Run(f, nil, nil, nil)
	if status != statuscode.BadJumpDestination {
		t.Fatalf("status = %v, want BadJumpDestination", status)
	}
}

func TestRunDeniesExecutionOfNonExecutablePage(t *testing.T) {
	mem := NewMemory()
	mem.MapPage(0, Perm{Read: true, Write: true}) // no Execute
	gas := NewGasMeter(100)
	f := NewFrame(mem, gas, 0, 0)
	status := Run(f, nil, nil, nil)
	if status != statuscode.InvalidMemoryAccess {
		t.Fatalf("status = %v, want InvalidMemoryAccess", status)
	}
}
