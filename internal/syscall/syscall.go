// Package syscall implements Athena's syscall dispatcher (spec §4.4): a
// registry keyed by the spec's frozen numeric IDs (as opposed to the
// teacher's murmur3-hash-of-name keyed registry), reached via ECALL with
// the syscall number in t0 and up to four arguments in a0-a3.
package syscall

import (
	"encoding/binary"

	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
)

// Syscall numbers (spec §4.4 table, extended per SPEC_FULL.md's
// Supplemented Features with the Ed25519 precompile and hint channel at
// the next free slots).
const (
	Halt       = 0x00 // spec §4.5 "exit syscall"; grounded on original_source's HALT
	WRITE      = 2
	READ       = 3
	GetStorage = 0xA0
	SetStorage = 0xA1
	GetBalance = 0xA3
	Call       = 0xA4
	Spawn      = 0xA5
	Deploy     = 0xA6
	GetContext = 0xA7
	GetBlockHash = 0xA8
	PrecompileEd25519Verify = 0xA9
	HintLen    = 0xF0
	HintRead   = 0xF1
)

// Logical file descriptors for WRITE/READ (spec §4.4).
const (
	FDStdout        = 1
	FDStderr        = 2
	FDOutputToCaller = 3
	FDCalldata      = 0
)

// Handler marshals a syscall's arguments out of guest memory, invokes the
// host, and writes any result back. It receives the frame (for registers/
// memory/output) and the Context (host vtable + per-frame bookkeeping the
// dispatcher needs but the Frame type itself doesn't carry, e.g. the
// frame's own Address for GET_STORAGE/GET_BALANCE per spec §3's
// AthenaContext).
type Handler func(ctx *Context, f *vm.Frame) error

// Registry maps syscall numbers to handlers, the same map-keyed-by-uint32
// shape the teacher's syscall.Registry uses, with the key space swapped
// from a name hash to spec.md's frozen numeric table.
type Registry struct {
	handlers map[uint32]Handler
}

// NewRegistry builds the full set of registered syscalls.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[uint32]Handler)}
	r.register(Halt, syscallHalt)
	r.register(WRITE, syscallWrite)
	r.register(READ, syscallRead)
	r.register(GetStorage, syscallGetStorage)
	r.register(SetStorage, syscallSetStorage)
	r.register(GetBalance, syscallGetBalance)
	r.register(Call, syscallCall)
	r.register(Spawn, syscallSpawn)
	r.register(Deploy, syscallDeploy)
	r.register(GetContext, syscallGetContext)
	r.register(GetBlockHash, syscallGetBlockHash)
	r.register(PrecompileEd25519Verify, syscallEd25519Verify)
	r.register(HintLen, syscallHintLen)
	r.register(HintRead, syscallHintRead)
	return r
}

func (r *Registry) register(num uint32, h Handler) {
	r.handlers[num] = h
}

// Get looks up the handler for a syscall number.
func (r *Registry) Get(num uint32) (Handler, bool) {
	h, ok := r.handlers[num]
	return h, ok
}

// Context carries everything a syscall handler needs beyond the raw Frame:
// the host vtable, the frame's own address/caller/depth (AthenaContext,
// SPEC_FULL.md), the calldata/hint streams, and the tx context.
type Context struct {
	Host           vm.HostVtable
	Address        vm.Address
	Caller         vm.Address
	CallerTemplate vm.Address
	Depth          uint32
	Calldata       *Stream
	Hints          *Stream
	GasPrice       uint64 // not read by any syscall; GET_CONTEXT encodes Host.GetTxContext()
	TxContext      vm.TxContext
}

// Stream is a simple read cursor over a byte slice, modeling the stdin
// (fd 0) and hint channels (spec §4.4, SPEC_FULL.md HINT_LEN/HINT_READ).
type Stream struct {
	data []byte
	pos  int
}

// NewStream wraps data as a Stream starting at offset 0.
func NewStream(data []byte) *Stream {
	return &Stream{data: data}
}

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int {
	if s == nil {
		return 0
	}
	return len(s.data) - s.pos
}

// Read copies up to len(buf) unread bytes into buf and returns how many
// were copied.
func (s *Stream) Read(buf []byte) int {
	if s == nil {
		return 0
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += n
	return n
}

// Dispatch is called by the engine's ECALL hook (vm.SyscallFunc): it reads
// the syscall number from t0, looks up the handler, charges the syscall's
// gas, and runs the handler. vm.Run, not Dispatch, advances PC past the
// ECALL on success. Unknown syscall numbers fault INVALID_SYSCALL_ARGUMENT
// per spec §4.4.
func (r *Registry) Dispatch(ctx *Context, f *vm.Frame) error {
	num := f.Regs.Read(vm.RegT0)
	h, ok := r.handlers[num]
	if !ok {
		return statuscode.New(statuscode.InvalidSyscallArgument)
	}
	if !f.Gas.Consume(CostOf(num)) {
		return statuscode.New(statuscode.OutOfGas)
	}
	return h(ctx, f)
}

// loadBytes reads n bytes from guest memory at addr, bounds-checked,
// faulting INVALID_MEMORY_ACCESS before the host is ever consulted (spec
// §4.4 step 2 / "Out-of-range pointers fault ... before the host is
// consulted").
func loadBytes(f *vm.Frame, addr uint32, n int) ([]byte, error) {
	b, ok := f.Mem.Load(addr, n)
	if !ok {
		return nil, statuscode.New(statuscode.InvalidMemoryAccess)
	}
	return b, nil
}

func storeBytes(f *vm.Frame, addr uint32, data []byte) error {
	if !f.Mem.Store(addr, data) {
		return statuscode.New(statuscode.InvalidMemoryAccess)
	}
	return nil
}

func loadWord256(f *vm.Frame, addr uint32) (vm.Word256, error) {
	b, err := loadBytes(f, addr, 32)
	if err != nil {
		return vm.Word256{}, err
	}
	var w vm.Word256
	copy(w[:], b)
	return w, nil
}

func loadAddress(f *vm.Frame, addr uint32) (vm.Address, error) {
	b, err := loadBytes(f, addr, 24)
	if err != nil {
		return vm.Address{}, err
	}
	var a vm.Address
	copy(a[:], b)
	return a, nil
}

func putU64LE(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
