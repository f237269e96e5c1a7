package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds retries of Update transactions that lose a
// serialization conflict against a concurrent writer.
const maxConflictRetries = 16

// BadgerDB implements DB using Badger.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger database at the given path.
func NewBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process (is another umbrad instance running?): %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

// badgerTxn adapts a badger.Txn to the Txn interface.
type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("badger get value: %w", err)
	}
	return val, nil
}

func (t *badgerTxn) Put(key, value []byte) error {
	if err := t.txn.Set(key, value); err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

func (t *badgerTxn) Delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

func (t *badgerTxn) Has(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger has: %w", err)
	}
	return true, nil
}

func (t *badgerTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			v := make([]byte, len(val))
			copy(v, val)
			return fn(key, v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// View runs fn in a read-only transaction.
func (b *BadgerDB) View(fn func(Txn) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

// Update runs fn in a read-write transaction, retrying on
// serialization conflicts against concurrent writers. fn must be safe
// to re-run.
func (b *BadgerDB) Update(fn func(Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger update: %w", err)
}

// Get retrieves a value by key in its own read transaction.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.View(func(txn Txn) error {
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
func (b *BadgerDB) Put(key, value []byte) error {
	return b.Update(func(txn Txn) error {
		return txn.Put(key, value)
	})
}

// Delete removes a key.
func (b *BadgerDB) Delete(key []byte) error {
	return b.Update(func(txn Txn) error {
		return txn.Delete(key)
	})
}

// Has checks if a key exists.
func (b *BadgerDB) Has(key []byte) (bool, error) {
	var exists bool
	err := b.View(func(txn Txn) error {
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
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.View(func(txn Txn) error {
		return txn.ForEach(prefix, fn)
	})
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}
