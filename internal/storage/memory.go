package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. Used in tests and as
// a scratch store; Update transactions are serialized by a single
// mutex, so the atomicity guarantees match the badger backend.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// memTxn buffers writes against the base map until commit. A nil
// value in writes marks a pending delete.
type memTxn struct {
	db       *MemoryDB
	writes   map[string][]byte
	readOnly bool
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if t.writes != nil {
		if v, ok := t.writes[k]; ok {
			if v == nil {
				return nil, ErrKeyNotFound
			}
			return append([]byte(nil), v...), nil
		}
	}
	v, ok := t.db.data[k]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *memTxn) Put(key, value []byte) error {
	// Copy via make so an empty value stays non-nil: nil is this
	// transaction's delete tombstone.
	cp := make([]byte, len(value))
	copy(cp, value)
	t.writes[string(key)] = cp
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	t.writes[string(key)] = nil
	return nil
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *memTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)

	// Merge committed data with pending writes, then iterate in key
	// order for deterministic behavior.
	merged := make(map[string][]byte)
	for k, v := range t.db.data {
		if strings.HasPrefix(k, p) {
			merged[k] = v
		}
	}
	for k, v := range t.writes {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), append([]byte(nil), merged[k]...)); err != nil {
			return err
		}
	}
	return nil
}

// View runs fn in a read-only transaction.
func (m *MemoryDB) View(fn func(Txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTxn{db: m, writes: map[string][]byte{}, readOnly: true})
}

// Update runs fn in a read-write transaction; writes apply only if fn
// returns nil.
func (m *MemoryDB) Update(fn func(Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := &memTxn{db: m, writes: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	for k, v := range txn.writes {
		if v == nil {
			delete(m.data, k)
		} else {
			m.data[k] = v
		}
	}
	return nil
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := m.View(func(txn Txn) error {
		v, err := txn.Get(key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	return m.Update(func(txn Txn) error {
		return txn.Put(key, value)
	})
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	return m.Update(func(txn Txn) error {
		return txn.Delete(key)
	})
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	var exists bool
	err := m.View(func(txn Txn) error {
		ok, err := txn.Has(key)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	return exists, err
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return m.View(func(txn Txn) error {
		return txn.ForEach(prefix, fn)
	})
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}
