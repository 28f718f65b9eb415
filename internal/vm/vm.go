// Package vm implements the RV32EM interpreter at the heart of Athena: a
// 16-register, 32-bit RISC-V (RV32I + M extension) fetch/decode/execute loop
// over a page-granular sparse linear memory, metered by a signed 64-bit gas
// counter.
//
// The package follows the shape of a classic register-machine interpreter —
// a flat register array, a single opcode switch, and a memory gate every
// load/store passes through — the same structure a BPF/sBPF interpreter
// uses, generalized here to RISC-V's instruction encoding instead.
package vm

import (
	"errors"

	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/types"
)

// Register count for the E-variant ABI (spec §3: "Exactly 16 registers").
const NumRegisters = 16

// Conventional RISC-V ABI register names, for readability at call sites.
const (
	RegZero = 0 // x0, hardwired to zero
	RegRA   = 1 // x1, return address
	RegSP   = 2 // x2, stack pointer
	RegT0   = 5 // x5, syscall number (spec §4.4)
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
)

// Sentinel errors naming interpreter failure modes. Run does not return
// or translate these; it reports statuscode.Code values directly.
var (
	ErrOutOfGas             = errors.New("gas exhausted")
	ErrInvalidInstruction   = errors.New("invalid instruction")
	ErrInvalidMemoryAccess  = errors.New("invalid memory access")
	ErrBadJumpDestination   = errors.New("bad jump destination")
	ErrUnreachableInstruct  = errors.New("unreachable instruction")
	ErrTrap                 = errors.New("trap")
	ErrUndefinedInstruction = errors.New("undefined instruction")
)

// Registers is the 16×32-bit general-purpose register file. x0 is
// hardwired to zero: writes are silently discarded, reads always return 0.
type Registers struct {
	r [NumRegisters]uint32
}

// Write stores value into reg, except reg 0 which ignores the write.
func (r *Registers) Write(reg uint32, value uint32) {
	if reg == RegZero {
		return
	}
	r.r[reg] = value
}

// Read returns the value in reg (always 0 for reg 0).
func (r *Registers) Read(reg uint32) uint32 {
	return r.r[reg]
}

// All returns the backing register array for inspection (debug stub use).
func (r *Registers) All() [NumRegisters]uint32 {
	return r.r
}

// HostVtable is Athena's host boundary (spec §6), modeled as a Go interface
// whose methods the engine invokes during syscall dispatch. The host's own
// state is the implementing value, which the engine never inspects — the
// guest holds no host pointer, and the host MUST NOT retain guest memory
// pointers past the callback's return (spec §5).
type HostVtable interface {
	AccountExists(addr Address) bool
	GetStorage(addr Address, key Word256) Word256
	SetStorage(addr Address, key Word256, value Word256) StorageStatus
	GetBalance(addr Address) uint64
	Call(msg Message) CallResult
	GetTxContext() TxContext
	GetBlockHash(height int64) Word256
	Spawn(blob []byte) Address
	Deploy(code []byte) (Address, error)
}

// Address and Word256 are aliases of internal/types' value types, so the
// engine, host vtable, and the rest of the package family share one
// definition of "account identifier" / "storage word" instead of a
// structurally-identical but distinct duplicate.
type (
	Address = types.Address
	Word256 = types.Word256
)

// StorageStatus classifies a set_storage transition per the EIP-2200-derived
// taxonomy (SPEC_FULL.md "Supplemented Features").
type StorageStatus uint32

const (
	StorageAssigned StorageStatus = iota
	StorageAdded
	StorageDeleted
	StorageModified
	StorageDeletedAdded
	StorageModifiedDeleted
	StorageDeletedRestored
	StorageAddedDeleted
	StorageModifiedRestored
)

// MessageKind is a closed enum with a single variant today (spec §3).
type MessageKind uint32

const MessageKindCall MessageKind = 0

// Message is the driver's input (spec §3: "{kind, depth, gas, recipient,
// sender, sender_template, input_bytes, value}"). SenderTemplate is the
// template address the sender account was spawned/deployed from (zero for
// a transaction-origin sender that isn't itself a spawned instance); no
// syscall reads it yet, but it is carried end-to-end through Execute and
// recursive CALL so a future syscall (e.g. template-scoped authorization)
// can.
type Message struct {
	Kind           MessageKind
	Depth          uint32
	Gas            int64
	Recipient      Address
	Sender         Address
	SenderTemplate Address
	Input          []byte
	Value          uint64
}

// CallResult is what a nested CALL (via the host vtable) returns to the
// syscall dispatcher.
type CallResult struct {
	StatusCode statuscode.Code
	GasLeft    int64
	Output     []byte
}

// TxContext is supplied by the host on demand (spec §3); GET_CONTEXT copies
// an 88-byte encoding of this to a guest pointer (8+24+8+8+8+32 bytes).
type TxContext struct {
	GasPrice         uint64
	Origin           Address
	BlockHeight      int64
	BlockTimestamp   int64
	BlockGasLimit    int64
	ChainID          Word256
}

const TxContextSize = 8 + 24 + 8 + 8 + 8 + 32 // 88 bytes

// Encode serializes the tx context into its 88-byte wire form, little-endian
// throughout except ChainID which is carried as an opaque 32-byte blob.
func (c TxContext) Encode() [TxContextSize]byte {
	var buf [TxContextSize]byte
	putU64(buf[0:8], c.GasPrice)
	copy(buf[8:32], c.Origin[:])
	putI64(buf[32:40], c.BlockHeight)
	putI64(buf[40:48], c.BlockTimestamp)
	putI64(buf[48:56], c.BlockGasLimit)
	copy(buf[56:88], c.ChainID[:])
	return buf
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putI64(b []byte, v int64) {
	putU64(b, uint64(v))
}
