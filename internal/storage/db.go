// Package storage provides the transactional key-value abstraction the
// ledger and cursor stores are built on.
package storage

import "errors"

// ErrKeyNotFound is returned by Get when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Txn is a transaction over the key-value store. All operations within
// one transaction commit atomically or not at all.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix, including
	// writes pending in this transaction. The callback receives a copy
	// of the key and value. Return a non-nil error from fn to stop
	// iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// DB is the interface for transactional key-value storage.
//
// The single-operation methods are conveniences that run in their own
// transaction. Multi-record consistency requires View/Update: two
// concurrent Update calls are serialized with respect to each other,
// so a read-then-write sequence inside one Update never observes a
// half-applied peer.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// View runs fn in a read-only transaction.
	View(fn func(Txn) error) error
	// Update runs fn in a read-write transaction. If fn returns an
	// error, no writes are applied.
	Update(fn func(Txn) error) error

	Close() error
}
