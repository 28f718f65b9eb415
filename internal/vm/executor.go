package vm

import (
	"math"
	"math/bits"

	"github.com/athenavm/athena/internal/statuscode"
)

// Stack layout constants (spec §3: "Stack: grows downward from a fixed high
// address"). StackTop is the initial SP; StackSize bounds how far the
// interpreter will auto-grow the stack region: a store instruction that
// targets an unmapped page inside [StackBase, StackTop) maps it read+write.
const (
	StackTop  uint32 = 0x8000_0000
	StackSize uint32 = 1 << 20 // 1 MiB
	StackBase        = StackTop - StackSize
)

// SyscallFunc is invoked on ECALL; it reads t0/a0-a3 from the frame, does
// whatever marshaling/host-vtable dispatch the syscall needs, and returns
// a non-nil error (typically a *statuscode.Fault) to terminate the frame.
// Kept as a function value rather than an interface import so this package
// never needs to import internal/syscall (which itself imports vm.Memory/
// vm.Registers) — the same "host object passed down, no back-reference"
// pattern spec §9 calls for.
type SyscallFunc func(f *Frame) error

// EbreakFunc is invoked on EBREAK when a debug stub is attached; returning
// nil resumes execution, returning an error terminates the frame with TRAP.
// A nil EbreakFunc means "no stub attached" per spec §4.3 ("otherwise
// faults").
type EbreakFunc func(f *Frame) error

// StepFunc is invoked before each instruction is fetched, letting an
// attached debug stub suspend the frame between whole instructions (spec
// §4.6: single-stepping, "suspends the frame between whole instructions
// only; no instruction executes partially"). Returning false pauses Run
// without marking the frame halted, so a later Run call on the same Frame
// resumes exactly where it left off; nil means no stub attached and Run
// never pauses on its own.
type StepFunc func(f *Frame) (cont bool)

// Frame is one call frame's full execution state (spec §3): registers, PC,
// memory, gas, call depth, and the accumulated output buffer (syscall WRITE
// with fd=3 appends here).
type Frame struct {
	Regs   Registers
	Mem    *Memory
	Gas    *GasMeter
	PC     uint32
	Depth  uint32
	Output []byte

	// halted is set once an exit condition (HALT syscall, fault, or
	// out-of-gas) has been reached.
	halted bool
	status statuscode.Code
}

// NewFrame builds a fresh frame with registers zeroed, SP at the top of
// stack, and PC at entry, per spec §4.5 step 2.
func NewFrame(mem *Memory, gas *GasMeter, entry uint32, depth uint32) *Frame {
	f := &Frame{Mem: mem, Gas: gas, PC: entry, Depth: depth}
	f.Regs.Write(RegSP, StackTop)
	mem.MapPage(StackTop-PageSize, Perm{Read: true, Write: true})
	return f
}

// fault terminates the frame with the given status and returns it as an
// error the Run loop's caller can inspect.
func fault(code statuscode.Code) error {
	return statuscode.New(code)
}

// Run executes the fetch/decode/execute loop until an exit syscall, a
// fault, gas exhaustion, or (with a non-nil step) a debug-stub pause (spec
// §4.5 step 4, §4.6). It returns the frame's current status code;
// Frame.Output and Gas.Remaining hold the rest of the driver's required
// result tuple. Callers must check the frame's Halted() to tell a genuine
// termination from a debug-stub pause that a later Run call will resume.
func Run(f *Frame, syscall SyscallFunc, ebreak EbreakFunc, step StepFunc) statuscode.Code {
	for {
		if f.halted {
			return f.status
		}
		if step != nil && !step(f) {
			return f.status
		}
		word, ok := f.Mem.FetchInstruction(f.PC)
		if !ok {
			return f.terminate(statuscode.InvalidMemoryAccess)
		}
		d := Decode(word)
		if d.Kind == KindInvalid {
			return f.terminate(statuscode.InvalidInstruction)
		}

		if !f.Gas.Consume(InstructionCost(d)) {
			return f.terminate(statuscode.OutOfGas)
		}

		nextPC := f.PC + 4
		var code statuscode.Code

		switch d.Kind {
		case KindLUI:
			f.Regs.Write(d.Rd, uint32(d.Imm))
		case KindAUIPC:
			f.Regs.Write(d.Rd, f.PC+uint32(d.Imm))
		case KindJAL:
			target := f.PC + uint32(d.Imm)
			if target&0x3 != 0 {
				code = statuscode.BadJumpDestination
				break
			}
			f.Regs.Write(d.Rd, nextPC)
			nextPC = target
		case KindJALR:
			target := (f.Regs.Read(d.Rs1) + uint32(d.Imm)) &^ 1
			if target&0x3 != 0 {
				code = statuscode.BadJumpDestination
				break
			}
			f.Regs.Write(d.Rd, nextPC)
			nextPC = target
		case KindBranch:
			taken, bad := evalBranch(d, &f.Regs)
			if taken {
				target := f.PC + uint32(d.Imm)
				if target&0x1 != 0 || bad {
					code = statuscode.BadJumpDestination
					break
				}
				nextPC = target
			}
		case KindLoad:
			code = f.execLoad(d)
		case KindStore:
			code = f.execStore(d)
		case KindOpImm:
			execOpImm(d, &f.Regs)
		case KindOp:
			execOp(d, &f.Regs)
		case KindMulDiv:
			execMulDiv(d, &f.Regs)
		case KindFence:
			// no-op: single-threaded engine, nothing to order (spec §5).
		case KindECALL:
			if syscall != nil {
				if err := syscall(f); err != nil {
					return f.terminate(statuscode.CodeOf(err))
				}
			} else {
				code = statuscode.InvalidSyscallArgument
			}
		case KindEBREAK:
			if ebreak != nil {
				if err := ebreak(f); err != nil {
					return f.terminate(statuscode.CodeOf(err))
				}
			} else {
				code = statuscode.Trap
			}
		default:
			code = statuscode.InvalidInstruction
		}

		if code != statuscode.Success {
			return f.terminate(code)
		}
		if f.halted {
			return f.status
		}
		f.PC = nextPC
	}
}

// terminate marks the frame halted with the given status. Any status other
// than success or revert zeroes gas_left and discards output (spec §4.3).
func (f *Frame) terminate(code statuscode.Code) statuscode.Code {
	f.halted = true
	f.status = code
	if code != statuscode.Success && code != statuscode.Revert {
		f.Gas.remaining = 0
		f.Output = nil
	}
	return code
}

// Halted reports whether the frame has reached a terminal state (as
// opposed to merely being paused by a debug-stub StepFunc).
func (f *Frame) Halted() bool {
	return f.halted
}

// Halt is called by the HALT syscall (internal/syscall) with a zero exit
// code to end the frame successfully.
func (f *Frame) Halt() {
	f.terminate(statuscode.Success)
}

// Revert ends the frame with status=Revert, preserving output and residual
// gas per spec §7.
func (f *Frame) Revert() {
	f.halted = true
	f.status = statuscode.Revert
}

func evalBranch(d DecodedInstruction, r *Registers) (taken bool, bad bool) {
	a, b := r.Read(d.Rs1), r.Read(d.Rs2)
	switch d.Funct3 {
	case F3BEQ:
		return a == b, false
	case F3BNE:
		return a != b, false
	case F3BLT:
		return int32(a) < int32(b), false
	case F3BGE:
		return int32(a) >= int32(b), false
	case F3BLTU:
		return a < b, false
	case F3BGEU:
		return a >= b, false
	default:
		return false, true
	}
}

func (f *Frame) execLoad(d DecodedInstruction) statuscode.Code {
	addr := f.Regs.Read(d.Rs1) + uint32(d.Imm)
	switch d.Funct3 {
	case F3LB:
		v, ok := f.Mem.Load8(addr)
		if !ok {
			return statuscode.InvalidMemoryAccess
		}
		f.Regs.Write(d.Rd, uint32(int32(int8(v))))
	case F3LBU:
		v, ok := f.Mem.Load8(addr)
		if !ok {
			return statuscode.InvalidMemoryAccess
		}
		f.Regs.Write(d.Rd, uint32(v))
	case F3LH:
		v, ok := f.Mem.Load16(addr)
		if !ok {
			return statuscode.InvalidMemoryAccess
		}
		f.Regs.Write(d.Rd, uint32(int32(int16(v))))
	case F3LHU:
		v, ok := f.Mem.Load16(addr)
		if !ok {
			return statuscode.InvalidMemoryAccess
		}
		f.Regs.Write(d.Rd, uint32(v))
	case F3LW:
		v, ok := f.Mem.Load32(addr)
		if !ok {
			return statuscode.InvalidMemoryAccess
		}
		f.Regs.Write(d.Rd, v)
	default:
		return statuscode.InvalidInstruction
	}
	return statuscode.Success
}

func (f *Frame) execStore(d DecodedInstruction) statuscode.Code {
	addr := f.Regs.Read(d.Rs1) + uint32(d.Imm)
	val := f.Regs.Read(d.Rs2)
	if addr >= StackBase && addr < StackTop {
		f.Mem.EnsurePage(addr, Perm{Read: true, Write: true})
	}
	var ok bool
	switch d.Funct3 {
	case F3SB:
		ok = f.Mem.Store8(addr, uint8(val))
	case F3SH:
		ok = f.Mem.Store16(addr, uint16(val))
	case F3SW:
		ok = f.Mem.Store32(addr, val)
	default:
		return statuscode.InvalidInstruction
	}
	if !ok {
		return statuscode.InvalidMemoryAccess
	}
	return statuscode.Success
}

func execOpImm(d DecodedInstruction, r *Registers) {
	a := r.Read(d.Rs1)
	var res uint32
	switch d.Funct3 {
	case F3ADDSUB:
		res = a + uint32(d.Imm)
	case F3SLT:
		res = b2u(int32(a) < d.Imm)
	case F3SLTU:
		res = b2u(a < uint32(d.Imm))
	case F3XOR:
		res = a ^ uint32(d.Imm)
	case F3OR:
		res = a | uint32(d.Imm)
	case F3AND:
		res = a & uint32(d.Imm)
	case F3SLL:
		res = a << (uint32(d.Imm) & 0x1F)
	case F3SRx:
		shamt := uint32(d.Imm) & 0x1F
		if d.Funct7 == Funct7Alt {
			res = uint32(int32(a) >> shamt)
		} else {
			res = a >> shamt
		}
	}
	r.Write(d.Rd, res)
}

func execOp(d DecodedInstruction, r *Registers) {
	a, b := r.Read(d.Rs1), r.Read(d.Rs2)
	var res uint32
	sub := d.Funct7 == Funct7Alt
	switch d.Funct3 {
	case F3ADDSUB:
		if sub {
			res = a - b
		} else {
			res = a + b
		}
	case F3SLL:
		res = a << (b & 0x1F)
	case F3SLT:
		res = b2u(int32(a) < int32(b))
	case F3SLTU:
		res = b2u(a < b)
	case F3XOR:
		res = a ^ b
	case F3SRx:
		shamt := b & 0x1F
		if sub {
			res = uint32(int32(a) >> shamt)
		} else {
			res = a >> shamt
		}
	case F3OR:
		res = a | b
	case F3AND:
		res = a & b
	}
	r.Write(d.Rd, res)
}

// execMulDiv implements the M extension. Division-by-zero and signed
// overflow follow spec §4.3's explicit conventions, which match the
// RISC-V spec rather than trapping.
func execMulDiv(d DecodedInstruction, r *Registers) {
	a, b := r.Read(d.Rs1), r.Read(d.Rs2)
	var res uint32
	switch d.Funct3 {
	case F3MUL:
		res = a * b
	case F3MULH:
		res = uint32(mulhSigned(int32(a), int32(b)))
	case F3MULHU:
		hi, _ := bits.Mul64(uint64(a), uint64(b))
		res = uint32(hi)
	case F3MULHSU:
		res = uint32(mulhSignedUnsigned(int32(a), b))
	case F3DIV:
		ai, bi := int32(a), int32(b)
		switch {
		case bi == 0:
			res = 0xFFFFFFFF
		case ai == math.MinInt32 && bi == -1:
			res = 0x80000000
		default:
			res = uint32(ai / bi)
		}
	case F3DIVU:
		if b == 0 {
			res = 0xFFFFFFFF
		} else {
			res = a / b
		}
	case F3REM:
		ai, bi := int32(a), int32(b)
		switch {
		case bi == 0:
			res = uint32(ai)
		case ai == math.MinInt32 && bi == -1:
			res = 0
		default:
			res = uint32(ai % bi)
		}
	case F3REMU:
		if b == 0 {
			res = a
		} else {
			res = a % b
		}
	}
	r.Write(d.Rd, res)
}

func mulhSigned(a, b int32) int64 {
	return (int64(a) * int64(b)) >> 32
}

func mulhSignedUnsigned(a int32, b uint32) int64 {
	return (int64(a) * int64(b)) >> 32
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
