// Package statuscode defines Athena's frozen result status codes (spec §6)
// and the sentinel errors the VM packages raise internally, mirroring how
// the teacher's pkg/svm packages declare an Err* var per failure mode and
// translate them at the package boundary rather than threading raw strings.
package statuscode

import "fmt"

// Code is the engine's stable result status. Positive values ≥ 1 are
// recoverable guest faults; 0 is success; negative values are internal
// engine-level errors the host must not retry against a different revision.
type Code int32

const (
	Success                   Code = 0
	Failure                   Code = 1
	Revert                    Code = 2
	OutOfGas                  Code = 3
	InvalidInstruction        Code = 4
	UndefinedInstruction      Code = 5
	StackOverflow             Code = 6
	StackUnderflow            Code = 7
	BadJumpDestination        Code = 8
	InvalidMemoryAccess       Code = 9
	CallDepthExceeded         Code = 10
	StaticModeViolation       Code = 11
	PrecompileFailure         Code = 12
	ContractValidationFailure Code = 13
	ArgumentOutOfRange        Code = 14
	UnreachableInstruction    Code = 15
	Trap                      Code = 16
	InsufficientBalance       Code = 17
	InsufficientInput         Code = 18
	InvalidSyscallArgument    Code = 19

	// Internal engine-level errors, negative per spec §6.
	InternalError Code = -1
	Rejected      Code = -2
	OutOfMemory   Code = -3
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Revert:
		return "REVERT"
	case OutOfGas:
		return "OUT_OF_GAS"
	case InvalidInstruction:
		return "INVALID_INSTRUCTION"
	case UndefinedInstruction:
		return "UNDEFINED_INSTRUCTION"
	case StackOverflow:
		return "STACK_OVERFLOW"
	case StackUnderflow:
		return "STACK_UNDERFLOW"
	case BadJumpDestination:
		return "BAD_JUMP_DESTINATION"
	case InvalidMemoryAccess:
		return "INVALID_MEMORY_ACCESS"
	case CallDepthExceeded:
		return "CALL_DEPTH_EXCEEDED"
	case StaticModeViolation:
		return "STATIC_MODE_VIOLATION"
	case PrecompileFailure:
		return "PRECOMPILE_FAILURE"
	case ContractValidationFailure:
		return "CONTRACT_VALIDATION_FAILURE"
	case ArgumentOutOfRange:
		return "ARGUMENT_OUT_OF_RANGE"
	case UnreachableInstruction:
		return "UNREACHABLE_INSTRUCTION"
	case Trap:
		return "TRAP"
	case InsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case InsufficientInput:
		return "INSUFFICIENT_INPUT"
	case InvalidSyscallArgument:
		return "INVALID_SYSCALL_ARGUMENT"
	case InternalError:
		return "INTERNAL_ERROR"
	case Rejected:
		return "REJECTED"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(c))
	}
}

// IsFault reports whether a code terminates a frame without success
// (a recoverable guest fault, a revert, or an internal error).
func (c Code) IsFault() bool {
	return c != Success
}

// Fault is an error carrying a terminal status code, raised by the
// executor, loader, and syscall dispatcher to unwind a frame.
type Fault struct {
	Code Code
}

func (f *Fault) Error() string {
	return "athena: frame terminated with " + f.Code.String()
}

// New wraps a Code as an error.
func New(c Code) error {
	return &Fault{Code: c}
}

// CodeOf extracts the Code from an error produced by New, defaulting to
// InternalError for errors the VM packages didn't originate.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	if f, ok := err.(*Fault); ok {
		return f.Code
	}
	return InternalError
}
