package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/umbra-network/umbra-wallet/internal/storage"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// Key prefixes for the ledger store.
var (
	prefixRecord = []byte("r/") // r/<id32> -> record JSON
	prefixOwner  = []byte("o/") // o/<owner32><state1><id32> -> empty (owner/state index)
	prefixSpend  = []byte("n/") // n/<nullifier32> -> id32 (spend resolution index)
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// Store is the durable ledger of output records, backed by a
// transactional storage.DB. All multi-record mutations run inside one
// storage transaction; concurrent Update calls are serialized by the
// backend.
type Store struct {
	db storage.DB
}

// NewStore creates a ledger store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Update runs fn in a read-write transaction over the ledger.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(txn storage.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// View runs fn in a read-only transaction over the ledger.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(txn storage.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// Tx exposes the ledger operations within one storage transaction.
type Tx struct {
	txn storage.Txn
}

func recordKey(id types.Hash) []byte {
	key := make([]byte, len(prefixRecord)+types.HashSize)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], id[:])
	return key
}

// ownerKey builds an owner index key: "o/" + owner(32) + state(1) + id(32).
func ownerKey(owner types.Address, state State, id types.Hash) []byte {
	key := make([]byte, len(prefixOwner)+types.AddressSize+1+types.HashSize)
	copy(key, prefixOwner)
	copy(key[len(prefixOwner):], owner[:])
	off := len(prefixOwner) + types.AddressSize
	key[off] = byte(state)
	copy(key[off+1:], id[:])
	return key
}

// ownerStatePrefix is the scan prefix for one owner + state.
func ownerStatePrefix(owner types.Address, state State) []byte {
	key := make([]byte, len(prefixOwner)+types.AddressSize+1)
	copy(key, prefixOwner)
	copy(key[len(prefixOwner):], owner[:])
	key[len(prefixOwner)+types.AddressSize] = byte(state)
	return key
}

// ownerPrefix is the scan prefix for all of an owner's index entries.
func ownerPrefix(owner types.Address) []byte {
	key := make([]byte, len(prefixOwner)+types.AddressSize)
	copy(key, prefixOwner)
	copy(key[len(prefixOwner):], owner[:])
	return key
}

func spendKey(nullifier types.Hash) []byte {
	key := make([]byte, len(prefixSpend)+types.HashSize)
	copy(key, prefixSpend)
	copy(key[len(prefixSpend):], nullifier[:])
	return key
}

// GetByID retrieves a record by identity. Returns ErrNotFound if the
// id is not tracked.
func (t *Tx) GetByID(id types.Hash) (*Record, error) {
	data, err := t.txn.Get(recordKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger get %s: %w", id.Short(), err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ledger unmarshal %s: %w", id.Short(), err)
	}
	return &r, nil
}

// InsertOrReplace stores records keyed by identity, replacing any
// previous version (and its index entries). Re-inserting an identical
// record is a no-op, which makes remote update re-delivery safe.
func (t *Tx) InsertOrReplace(records ...*Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("ledger insert: %w", err)
		}

		// Drop stale index entries if the record already exists.
		if old, err := t.GetByID(r.ID); err == nil {
			if err := t.txn.Delete(ownerKey(old.Owner, old.State, old.ID)); err != nil {
				return fmt.Errorf("ledger drop old index: %w", err)
			}
			if !old.Nullifier.IsZero() {
				if err := t.txn.Delete(spendKey(old.Nullifier)); err != nil {
					return fmt.Errorf("ledger drop old spend index: %w", err)
				}
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("ledger marshal %s: %w", r.ID.Short(), err)
		}
		if err := t.txn.Put(recordKey(r.ID), data); err != nil {
			return fmt.Errorf("ledger put %s: %w", r.ID.Short(), err)
		}
		if err := t.txn.Put(ownerKey(r.Owner, r.State, r.ID), []byte{}); err != nil {
			return fmt.Errorf("ledger index put: %w", err)
		}
		if !r.Nullifier.IsZero() {
			if err := t.txn.Put(spendKey(r.Nullifier), r.ID.Bytes()); err != nil {
				return fmt.Errorf("ledger spend index put: %w", err)
			}
		}
	}
	return nil
}

// Query narrows GetByOwnerAndState results.
type Query struct {
	// Kind filters to one token kind when non-empty.
	Kind types.TokenKind
	// AscendingValue sorts results by value, smallest first.
	AscendingValue bool
}

// GetByOwnerAndState returns the owner's records in the given state,
// optionally filtered by kind and sorted ascending by value.
func (t *Tx) GetByOwnerAndState(owner types.Address, state State, q Query) ([]*Record, error) {
	prefix := ownerStatePrefix(owner, state)
	var records []*Record

	err := t.txn.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: "o/" + owner(32) + state(1) + id(32).
		off := len(prefixOwner) + types.AddressSize + 1
		if len(key) != off+types.HashSize {
			return nil // Malformed key, skip.
		}
		var id types.Hash
		copy(id[:], key[off:])

		r, err := t.GetByID(id)
		if errors.Is(err, ErrNotFound) {
			return nil // Index ahead of record, skip.
		}
		if err != nil {
			return err
		}
		if q.Kind.Valid() && r.Kind != q.Kind {
			return nil
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger scan owner index: %w", err)
	}

	if q.AscendingValue {
		sort.Slice(records, func(i, j int) bool {
			return records[i].Value.Cmp(records[j].Value) < 0
		})
	}
	return records, nil
}

// SetState transitions the given records to newState. Fails with
// ErrNotFound if any id is untracked; the transaction then rolls back
// as a whole.
func (t *Tx) SetState(ids []types.Hash, newState State) error {
	for _, id := range ids {
		if err := t.setState(id, newState, 0); err != nil {
			return err
		}
	}
	return nil
}

// MarkSpent transitions the given records to SPENT, recording the
// block height at which the spend was observed (used for reorg
// rollback).
func (t *Tx) MarkSpent(ids []types.Hash, height uint64) error {
	for _, id := range ids {
		if err := t.setState(id, StateSpent, height); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) setState(id types.Hash, newState State, spentHeight uint64) error {
	r, err := t.GetByID(id)
	if err != nil {
		return err
	}
	if r.State == newState {
		return nil // Idempotent re-delivery.
	}

	if err := t.txn.Delete(ownerKey(r.Owner, r.State, r.ID)); err != nil {
		return fmt.Errorf("ledger move index: %w", err)
	}
	r.State = newState
	switch newState {
	case StateSpent:
		r.SpentHeight = spentHeight
	case StateAvailable:
		r.SpentHeight = 0
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ledger marshal %s: %w", r.ID.Short(), err)
	}
	if err := t.txn.Put(recordKey(r.ID), data); err != nil {
		return fmt.Errorf("ledger put %s: %w", r.ID.Short(), err)
	}
	if err := t.txn.Put(ownerKey(r.Owner, r.State, r.ID), []byte{}); err != nil {
		return fmt.Errorf("ledger index put: %w", err)
	}
	return nil
}

// ResolveSpend maps a spend-side nullifier hash to the local record
// identity. Returns ErrNotFound when the output was never tracked.
func (t *Tx) ResolveSpend(nullifier types.Hash) (types.Hash, error) {
	data, err := t.txn.Get(spendKey(nullifier))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.Hash{}, ErrNotFound
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("ledger resolve spend: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("ledger spend index corrupt for %s", nullifier.Short())
	}
	var id types.Hash
	copy(id[:], data)
	return id, nil
}

// Delete removes a record and its index entries. Used only for reorg
// reversal of outputs created on a pruned branch.
func (t *Tx) Delete(id types.Hash) error {
	r, err := t.GetByID(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := t.txn.Delete(ownerKey(r.Owner, r.State, r.ID)); err != nil {
		return fmt.Errorf("ledger delete index: %w", err)
	}
	if !r.Nullifier.IsZero() {
		if err := t.txn.Delete(spendKey(r.Nullifier)); err != nil {
			return fmt.Errorf("ledger delete spend index: %w", err)
		}
	}
	if err := t.txn.Delete(recordKey(id)); err != nil {
		return fmt.Errorf("ledger delete %s: %w", id.Short(), err)
	}
	return nil
}

// ForEach iterates over every record in the ledger, in key order.
func (t *Tx) ForEach(fn func(*Record) error) error {
	return t.txn.ForEach(prefixRecord, func(key, data []byte) error {
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("ledger unmarshal %x: %w", key, err)
		}
		return fn(&r)
	})
}

// ForEachOwned iterates over all of an owner's records in any state.
func (t *Tx) ForEachOwned(owner types.Address, fn func(*Record) error) error {
	return t.txn.ForEach(ownerPrefix(owner), func(key, _ []byte) error {
		off := len(prefixOwner) + types.AddressSize + 1
		if len(key) != off+types.HashSize {
			return nil
		}
		var id types.Hash
		copy(id[:], key[off:])
		r, err := t.GetByID(id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return fn(r)
	})
}

// DeleteAllForOwner removes every record belonging to the owner.
// Used for full resync and address removal.
func (t *Tx) DeleteAllForOwner(owner types.Address) error {
	var ids []types.Hash
	if err := t.ForEachOwned(owner, func(r *Record) error {
		ids = append(ids, r.ID)
		return nil
	}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := t.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// Convenience single-transaction wrappers on Store.

// InsertOrReplace stores records in one transaction.
func (s *Store) InsertOrReplace(records ...*Record) error {
	return s.Update(func(t *Tx) error { return t.InsertOrReplace(records...) })
}

// GetByID retrieves a record by identity.
func (s *Store) GetByID(id types.Hash) (*Record, error) {
	var r *Record
	err := s.View(func(t *Tx) error {
		rec, err := t.GetByID(id)
		if err != nil {
			return err
		}
		r = rec
		return nil
	})
	return r, err
}

// GetByOwnerAndState returns matching records in one read transaction.
func (s *Store) GetByOwnerAndState(owner types.Address, state State, q Query) ([]*Record, error) {
	var records []*Record
	err := s.View(func(t *Tx) error {
		recs, err := t.GetByOwnerAndState(owner, state, q)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	return records, err
}

// SetState transitions records in one transaction.
func (s *Store) SetState(ids []types.Hash, newState State) error {
	return s.Update(func(t *Tx) error { return t.SetState(ids, newState) })
}

// DeleteAllForOwner removes an owner's records in one transaction.
func (s *Store) DeleteAllForOwner(owner types.Address) error {
	return s.Update(func(t *Tx) error { return t.DeleteAllForOwner(owner) })
}
