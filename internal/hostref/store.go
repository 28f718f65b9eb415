package hostref

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/athenavm/athena/internal/engine"
	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
	"github.com/athenavm/athena/internal/vm/crypto"
)

// Key prefixes for BadgerDB storage, the same "one byte prefix per logical
// table" scheme as pkg/accounts/store.go.
var (
	prefixBalance  = byte(0x01) // + 24-byte address
	prefixStorage  = byte(0x02) // + 24-byte address + 32-byte key
	prefixTemplate = byte(0x03) // + 24-byte address -> code bytes
	prefixInstance = byte(0x04) // + 24-byte address -> template address
)

var ErrClosed = errors.New("hostref: store is closed")

// Config mirrors pkg/accounts/store.go's BadgerDBConfig, trimmed to the
// options a single-writer VM host actually needs.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// DefaultConfig returns sensible defaults for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, InMemory: false, SyncWrites: false}
}

// Store is a BadgerDB-backed vm.HostVtable implementation: the persistent
// counterpart to Host's in-memory map, grounded on
// pkg/accounts/store.go's BadgerDB (same key-prefix layout, same
// View/Update transaction shape) and adapted from a pubkey-keyed account
// ledger to Athena's (balance, storage, template, instance) state.
type Store struct {
	db *badger.DB

	mu sync.Mutex

	// dirty tracking for StorageStatus classification, scoped to the
	// current top-level transaction (see Host.BeginTx/Commit).
	dirtyOriginal map[storageKey]vm.Word256
	dirtyCurrent  map[storageKey]vm.Word256
	dirtyBalance  map[vm.Address]uint64

	txCtx vm.TxContext

	closed bool
}

// Open opens (or creates) a badger-backed store at cfg.Path.
func Open(cfg Config, txCtx vm.TxContext) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("hostref: open badger: %w", err)
	}

	s := &Store{
		db:            db,
		dirtyOriginal: make(map[storageKey]vm.Word256),
		dirtyCurrent:  make(map[storageKey]vm.Word256),
		dirtyBalance:  make(map[vm.Address]uint64),
		txCtx:         txCtx,
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

func balanceKey(addr vm.Address) []byte {
	k := make([]byte, 1+len(addr))
	k[0] = prefixBalance
	copy(k[1:], addr[:])
	return k
}

func storageDBKey(addr vm.Address, key vm.Word256) []byte {
	k := make([]byte, 1+len(addr)+len(key))
	k[0] = prefixStorage
	n := copy(k[1:], addr[:])
	copy(k[1+n:], key[:])
	return k
}

func templateKey(addr vm.Address) []byte {
	k := make([]byte, 1+len(addr))
	k[0] = prefixTemplate
	copy(k[1:], addr[:])
	return k
}

func instanceKey(addr vm.Address) []byte {
	k := make([]byte, 1+len(addr))
	k[0] = prefixInstance
	copy(k[1:], addr[:])
	return k
}

// BeginTx resets dirty-storage/balance tracking for a new top-level call.
func (s *Store) BeginTx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyOriginal = make(map[storageKey]vm.Word256)
	s.dirtyCurrent = make(map[storageKey]vm.Word256)
	s.dirtyBalance = make(map[vm.Address]uint64)
}

// Commit flushes the transaction's dirty state to badger in one write batch.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	for k, v := range s.dirtyCurrent {
		if err := batch.Set(storageDBKey(k.addr, k.key), v[:]); err != nil {
			return err
		}
	}
	for addr, bal := range s.dirtyBalance {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], bal)
		if err := batch.Set(balanceKey(addr), buf[:]); err != nil {
			return err
		}
	}
	return batch.Flush()
}

var _ vm.HostVtable = (*Store)(nil)

func (s *Store) readBalance(addr vm.Address) uint64 {
	var bal uint64
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(balanceKey(addr))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) >= 8 {
				bal = binary.LittleEndian.Uint64(val)
			}
			return nil
		})
	})
	return bal
}

func (s *Store) readStorage(addr vm.Address, key vm.Word256) vm.Word256 {
	var w vm.Word256
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageDBKey(addr, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(w[:], val)
			return nil
		})
	})
	return w
}

func (s *Store) AccountExists(addr vm.Address) bool {
	s.mu.Lock()
	if bal, ok := s.dirtyBalance[addr]; ok && bal != 0 {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	exists := false
	if s.readBalance(addr) != 0 {
		exists = true
	}
	_ = s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(templateKey(addr)); err == nil {
			exists = true
		}
		if _, err := txn.Get(instanceKey(addr)); err == nil {
			exists = true
		}
		return nil
	})
	return exists
}

func (s *Store) GetStorage(addr vm.Address, key vm.Word256) vm.Word256 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := storageKey{addr, key}
	if v, ok := s.dirtyCurrent[sk]; ok {
		return v
	}
	return s.readStorage(addr, key)
}

func (s *Store) SetStorage(addr vm.Address, key vm.Word256, value vm.Word256) vm.StorageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := storageKey{addr, key}

	original, touched := s.dirtyOriginal[sk]
	if !touched {
		original = s.readStorage(addr, key)
		s.dirtyOriginal[sk] = original
	}
	current, ok := s.dirtyCurrent[sk]
	if !ok {
		current = s.readStorage(addr, key)
	}

	status := classifyStorageTransition(original, current, value)
	s.dirtyCurrent[sk] = value
	return status
}

func (s *Store) GetBalance(addr vm.Address) uint64 {
	s.mu.Lock()
	if bal, ok := s.dirtyBalance[addr]; ok {
		s.mu.Unlock()
		return bal
	}
	s.mu.Unlock()
	return s.readBalance(addr)
}

func (s *Store) setBalance(addr vm.Address, bal uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyBalance[addr] = bal
}

// SetBalance sets an account's balance directly (test/CLI setup helper,
// mirroring Host.SetBalance).
func (s *Store) SetBalance(addr vm.Address, bal uint64) {
	s.setBalance(addr, bal)
}

// Call re-enters the engine the same way Host.Call does; see its doc
// comment for the value-transfer/failure semantics.
func (s *Store) Call(msg vm.Message) vm.CallResult {
	if msg.Depth > engine.MaxCallDepth {
		return vm.CallResult{StatusCode: statuscode.CallDepthExceeded}
	}

	senderBalance := s.GetBalance(msg.Sender)
	if senderBalance < msg.Value {
		return vm.CallResult{StatusCode: statuscode.InsufficientBalance}
	}
	s.setBalance(msg.Sender, senderBalance-msg.Value)
	s.setBalance(msg.Recipient, s.GetBalance(msg.Recipient)+msg.Value)

	code := s.codeFor(msg.Recipient)
	if code == nil {
		return vm.CallResult{StatusCode: statuscode.Failure}
	}

	result := engine.Execute(engine.FRONTIER, s, msg, code, nil)
	return vm.CallResult{
		StatusCode: result.StatusCode,
		GasLeft:    result.GasLeft,
		Output:     result.Output,
	}
}

func (s *Store) codeFor(addr vm.Address) []byte {
	var code []byte
	_ = s.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get(templateKey(addr)); err == nil {
			return item.Value(func(val []byte) error {
				code = append([]byte(nil), val...)
				return nil
			})
		}
		item, err := txn.Get(instanceKey(addr))
		if err != nil {
			return nil
		}
		var tmpl vm.Address
		if verr := item.Value(func(val []byte) error {
			copy(tmpl[:], val)
			return nil
		}); verr != nil {
			return verr
		}
		tItem, err := txn.Get(templateKey(tmpl))
		if err != nil {
			return nil
		}
		return tItem.Value(func(val []byte) error {
			code = append([]byte(nil), val...)
			return nil
		})
	})
	return code
}

func (s *Store) Spawn(blob []byte) vm.Address {
	return crypto.DeriveAddress(crypto.Blake3("athena-spawn:", blob))
}

// RegisterInstance persists the instance→template binding directly.
func (s *Store) RegisterInstance(instance, template vm.Address) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(instanceKey(instance), template[:])
	})
}

func (s *Store) Deploy(code []byte) (vm.Address, error) {
	addr := crypto.DeriveAddress(crypto.Blake3("athena-deploy:", code))

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(templateKey(addr), code)
	})
	if err != nil {
		return vm.Address{}, err
	}
	return addr, nil
}

func (s *Store) GetTxContext() vm.TxContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCtx
}

func (s *Store) GetBlockHash(height int64) vm.Word256 {
	var hash vm.Word256
	key := make([]byte, 9)
	key[0] = 0x05
	binary.LittleEndian.PutUint64(key[1:], uint64(height))
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return nil
		}
		return item.Value(func(val []byte) error {
			copy(hash[:], val)
			return nil
		})
	})
	return hash
}

// SetBlockHash registers a deterministic block hash for a height.
func (s *Store) SetBlockHash(height int64, hash vm.Word256) error {
	key := make([]byte, 9)
	key[0] = 0x05
	binary.LittleEndian.PutUint64(key[1:], uint64(height))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, hash[:])
	})
}
