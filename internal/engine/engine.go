// Package engine implements Athena's execution driver (spec §4.5) and the
// stable create()/execute() entrypoint (spec §6). It is the top-level
// orchestration the teacher's pkg/svm/svm.go stubbed out
// (`ExecuteTransaction` → ErrNotImplemented) and pkg/svm/executor's
// BPFExecutor.ExecuteInstruction filled in for its own domain — here built
// out for Athena's (code, calldata, gas, sender, recipient, value, depth)
// contract instead.
package engine

import (
	"errors"

	"github.com/athenavm/athena/internal/loader"
	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/syscall"
	"github.com/athenavm/athena/internal/vm"
)

// MaxCallDepth bounds recursive CALL per spec §3/§4.5/§9 ("recommended
// limit 1024").
const MaxCallDepth = 1024

// FRONTIER is the engine's single frozen revision (spec §6).
type Revision uint32

const FRONTIER Revision = 0

const MaxRevision = FRONTIER
const LatestStableRevision = FRONTIER

var ErrUnsupportedRevision = errors.New("unsupported revision")

// Result is the driver's output tuple (spec §4.5 step 5 / §6 execute()).
type Result struct {
	StatusCode statuscode.Code
	GasLeft    int64
	Output     []byte
}

// DebugHook lets an attached debug stub (internal/debugstub) observe/drive
// the interpreter; nil means no stub attached (spec §4.6).
type DebugHook struct {
	// OnStart is called once before the first instruction; it returns the
	// EbreakFunc and StepFunc the interpreter loop will consult for the
	// life of this frame (software breakpoints and single-stepping,
	// respectively).
	OnStart func(f *vm.Frame, mem *vm.Memory) (vm.EbreakFunc, vm.StepFunc)
}

// Execute runs a single call frame: builds a memory image from code via the
// loader, seeds registers/stdin, runs the fetch/decode/execute loop, and
// returns (status, gas_left, output) (spec §4.5). host.Call is expected to
// re-enter Execute for recursive CALL (spec §4.5: "recursively invokes
// itself with the callee's code and the supplied gas sub-budget").
func Execute(rev Revision, host vm.HostVtable, msg vm.Message, code []byte, debug *DebugHook) Result {
	if rev != FRONTIER {
		return Result{StatusCode: statuscode.Rejected}
	}
	if msg.Depth > MaxCallDepth {
		return Result{StatusCode: statuscode.CallDepthExceeded}
	}

	exe, err := loader.Load(code)
	if err != nil {
		return Result{StatusCode: statuscode.CodeOf(err)}
	}

	gas := vm.NewGasMeter(msg.Gas)
	frame := vm.NewFrame(exe.Memory, gas, exe.Entry, msg.Depth)

	registry := syscall.NewRegistry()
	sctx := &syscall.Context{
		Host:           host,
		Address:        msg.Recipient,
		Caller:         msg.Sender,
		CallerTemplate: msg.SenderTemplate,
		Depth:          msg.Depth,
		Calldata:       syscall.NewStream(msg.Input),
		Hints:          syscall.NewStream(nil),
		TxContext:      host.GetTxContext(),
	}

	syscallFn := func(f *vm.Frame) error {
		return registry.Dispatch(sctx, f)
	}

	var ebreakFn vm.EbreakFunc
	var stepFn vm.StepFunc
	if debug != nil && debug.OnStart != nil {
		ebreakFn, stepFn = debug.OnStart(frame, exe.Memory)
	}

	status := vm.Run(frame, syscallFn, ebreakFn, stepFn)

	return Result{
		StatusCode: status,
		GasLeft:    gas.Remaining(),
		Output:     frame.Output,
	}
}

// VMHandle is the create() result: a stable entrypoint carrying
// abi_version, name, version and execute. It has no destroy,
// get_capabilities or set_option entries. Implemented as a Go struct of closures rather than raw C
// function pointers, matching how the teacher's own code never binds to a
// literal C ABI either (InvokeContext/CPIContext are plain Go interfaces)
// even though both model a stable host/guest boundary.
type VMHandle struct {
	ABIVersion uint32
	Name       string
	Version    string

	Execute func(host vm.HostVtable, rev Revision, msg vm.Message, code []byte) Result
}

// Create returns the engine's stable entrypoint.
func Create() *VMHandle {
	return &VMHandle{
		ABIVersion: 1,
		Name:       "athena",
		Version:    "0.1.0",
		Execute: func(host vm.HostVtable, rev Revision, msg vm.Message, code []byte) Result {
			return Execute(rev, host, msg, code, nil)
		},
	}
}
