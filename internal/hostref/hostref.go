// Package hostref is a reference implementation of Athena's host vtable
// (spec §6), used by cmd/athena and the engine's own tests the way the
// teacher's pkg/accounts.MemoryDB backs pkg/svm/executor's tests. It is
// explicitly NOT a production host — spec §1 places "the host-side state
// store and chain driver" out of scope as an external collaborator; this
// package exists so the engine has something to execute against.
package hostref

import (
	"sync"

	"github.com/athenavm/athena/internal/engine"
	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
	"github.com/athenavm/athena/internal/vm/crypto"
)

// storageKey identifies one (address, word) storage slot.
type storageKey struct {
	addr vm.Address
	key  vm.Word256
}

// Host is an in-process reference host: balances, storage, and a
// template/instance registry, all held in memory (see Store for the
// badger-backed persistent variant, internal/hostref/store.go).
//
// Grounded on pkg/accounts/accounts.go's DB/MemoryDB shape (a simple
// map-backed store behind an interface boundary) and
// pkg/svm/executor/bpf_executor.go's executionContext (a host object that
// also implements the invoke-context interface the VM dispatches through).
type Host struct {
	mu sync.Mutex

	balances map[vm.Address]uint64

	// committed storage, durable across transactions.
	committed map[storageKey]vm.Word256

	// dirty tracking for the EIP-2200-style StorageStatus classification,
	// reset by BeginTx (engine.Execute does not call it).
	dirtyOriginal map[storageKey]vm.Word256
	dirtyCurrent  map[storageKey]vm.Word256

	// templateCode maps a deployed template's address to its bytecode.
	templateCode map[vm.Address][]byte

	// instanceTemplate maps a spawned program instance's address to the
	// template it was spawned from.
	instanceTemplate map[vm.Address]vm.Address

	txCtx vm.TxContext

	blockHashes map[int64]vm.Word256
}

// New creates an empty reference host with the given transaction context.
func New(txCtx vm.TxContext) *Host {
	return &Host{
		balances:         make(map[vm.Address]uint64),
		committed:        make(map[storageKey]vm.Word256),
		dirtyOriginal:    make(map[storageKey]vm.Word256),
		dirtyCurrent:     make(map[storageKey]vm.Word256),
		templateCode:     make(map[vm.Address][]byte),
		instanceTemplate: make(map[vm.Address]vm.Address),
		txCtx:            txCtx,
		blockHashes:      make(map[int64]vm.Word256),
	}
}

// BeginTx resets the dirty-storage tracking for a new top-level call (spec
// §3's "original" value for SetStorage classification is the value at the
// start of the transaction, not the start of each nested frame).
func (h *Host) BeginTx() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirtyOriginal = make(map[storageKey]vm.Word256)
	h.dirtyCurrent = make(map[storageKey]vm.Word256)
}

// Commit folds the transaction's dirty storage into committed state.
func (h *Host) Commit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, v := range h.dirtyCurrent {
		h.committed[k] = v
	}
}

// SetBalance sets an account's balance directly (test/CLI setup helper).
func (h *Host) SetBalance(addr vm.Address, balance uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.balances[addr] = balance
}

// SetBlockHash registers a deterministic block hash for a height (test/CLI
// setup helper, since a reference host has no real chain to query).
func (h *Host) SetBlockHash(height int64, hash vm.Word256) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blockHashes[height] = hash
}

// RegisterTemplate installs code at addr directly, bypassing Deploy's
// address derivation (useful for tests that want a fixed address).
func (h *Host) RegisterTemplate(addr vm.Address, code []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.templateCode[addr] = code
}

var _ vm.HostVtable = (*Host)(nil)

// AccountExists reports whether addr has a nonzero balance or is a known
// template/instance. Storage slots alone do not make an account exist.
func (h *Host) AccountExists(addr vm.Address) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.balances[addr] != 0 {
		return true
	}
	if _, ok := h.templateCode[addr]; ok {
		return true
	}
	if _, ok := h.instanceTemplate[addr]; ok {
		return true
	}
	return false
}

// GetStorage returns the current (possibly uncommitted, within this
// transaction) value of a storage slot.
func (h *Host) GetStorage(addr vm.Address, key vm.Word256) vm.Word256 {
	h.mu.Lock()
	defer h.mu.Unlock()
	sk := storageKey{addr, key}
	if v, ok := h.dirtyCurrent[sk]; ok {
		return v
	}
	return h.committed[sk]
}

// SetStorage writes a storage slot and returns its EIP-2200-style
// transition classification (SPEC_FULL.md Supplemented Features).
func (h *Host) SetStorage(addr vm.Address, key vm.Word256, value vm.Word256) vm.StorageStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	sk := storageKey{addr, key}

	original, touched := h.dirtyOriginal[sk]
	if !touched {
		original = h.committed[sk]
		h.dirtyOriginal[sk] = original
	}
	current, ok := h.dirtyCurrent[sk]
	if !ok {
		current = h.committed[sk]
	}

	status := classifyStorageTransition(original, current, value)
	h.dirtyCurrent[sk] = value
	return status
}

// classifyStorageTransition implements the EVMC/EIP-2200 storage-status
// state machine (original_source's StorageStatus, interface/src/lib.rs).
func classifyStorageTransition(original, current, value vm.Word256) vm.StorageStatus {
	if current == value {
		return vm.StorageAssigned
	}
	origZero := original == (vm.Word256{})
	currZero := current == (vm.Word256{})
	valZero := value == (vm.Word256{})

	if original == current {
		if origZero {
			return vm.StorageAdded
		}
		if valZero {
			return vm.StorageDeleted
		}
		return vm.StorageModified
	}

	// original != current: slot already dirtied within this transaction.
	if !origZero {
		if currZero {
			if original == value {
				return vm.StorageDeletedRestored
			}
			return vm.StorageDeletedAdded
		}
		if valZero {
			return vm.StorageModifiedDeleted
		}
	}

	if original == value {
		if origZero {
			return vm.StorageAddedDeleted
		}
		return vm.StorageModifiedRestored
	}

	return vm.StorageAssigned
}

// GetBalance returns an account's balance.
func (h *Host) GetBalance(addr vm.Address) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balances[addr]
}

// Call implements recursive CALL (spec §4.5): debits the sender, credits
// the recipient, then re-enters the engine against the recipient's code.
// A failed sub-call does NOT roll back the value transfer's side effects
// beyond what the sub-frame itself touched, matching spec §7 ("the caller
// decides"); insufficient balance is rejected before the callee ever runs.
func (h *Host) Call(msg vm.Message) vm.CallResult {
	if msg.Depth > engine.MaxCallDepth {
		return vm.CallResult{StatusCode: statuscode.CallDepthExceeded}
	}

	h.mu.Lock()
	senderBalance := h.balances[msg.Sender]
	if senderBalance < msg.Value {
		h.mu.Unlock()
		return vm.CallResult{StatusCode: statuscode.InsufficientBalance}
	}
	h.balances[msg.Sender] = senderBalance - msg.Value
	h.balances[msg.Recipient] += msg.Value
	code := h.codeFor(msg.Recipient)
	h.mu.Unlock()

	if code == nil {
		return vm.CallResult{StatusCode: statuscode.Failure}
	}

	result := engine.Execute(engine.FRONTIER, h, msg, code, nil)
	return vm.CallResult{
		StatusCode: result.StatusCode,
		GasLeft:    result.GasLeft,
		Output:     result.Output,
	}
}

// codeFor resolves an address to runnable bytecode: a template address
// directly, or a spawned instance's template code. Caller must hold h.mu.
func (h *Host) codeFor(addr vm.Address) []byte {
	if code, ok := h.templateCode[addr]; ok {
		return code
	}
	if tmpl, ok := h.instanceTemplate[addr]; ok {
		return h.templateCode[tmpl]
	}
	return nil
}

// Spawn derives a fresh 24-byte address from the state blob via blake3
// (mirroring the teacher's sol_blake3 syscall wiring) and records a zero
// balance for it if it has none. It does not bind the address to any
// template, so it is not an instance until RegisterInstance is called.
func (h *Host) Spawn(blob []byte) vm.Address {
	addr := crypto.DeriveAddress(crypto.Blake3("athena-spawn:", blob))

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.balances[addr]; !ok {
		h.balances[addr] = 0
	}
	return addr
}

// RegisterInstance binds a spawned instance address to the template it
// should execute (test/CLI setup helper standing in for whatever
// convention a production host uses to record this at SPAWN time).
func (h *Host) RegisterInstance(instance, template vm.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.instanceTemplate[instance] = template
}

// Deploy derives a template address from a "athena-deploy:"-tagged blake3
// digest of code (distinct tag from Spawn, so template and instance
// address spaces never collide by construction) and registers the code.
func (h *Host) Deploy(code []byte) (vm.Address, error) {
	addr := crypto.DeriveAddress(crypto.Blake3("athena-deploy:", code))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.templateCode[addr] = code
	return addr, nil
}

// GetTxContext returns the transaction context supplied at construction.
func (h *Host) GetTxContext() vm.TxContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.txCtx
}

// GetBlockHash returns a registered block hash, or the zero hash if none
// was registered for that height.
func (h *Host) GetBlockHash(height int64) vm.Word256 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blockHashes[height]
}
