package syncer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/umbra-network/umbra-wallet/internal/storage"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// CursorStore persists per-address stream positions so a restart
// resumes where the last applied update left off instead of replaying
// the whole history.
type CursorStore struct {
	db *storage.PrefixDB
}

// NewCursorStore creates a cursor store namespaced under "c/" in db.
func NewCursorStore(db storage.DB) *CursorStore {
	return &CursorStore{db: storage.NewPrefixDB(db, []byte("c/"))}
}

// Get returns the stored cursor for the address. ok is false when the
// address has never synced (start from sequence 0).
func (c *CursorStore) Get(addr types.Address) (seq uint64, ok bool, err error) {
	data, err := c.db.Get(addr.Bytes())
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cursor get: %w", err)
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("cursor for %s corrupt: %d bytes", addr.String(), len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// Set stores the cursor for the address.
func (c *CursorStore) Set(addr types.Address, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := c.db.Put(addr.Bytes(), buf[:]); err != nil {
		return fmt.Errorf("cursor set: %w", err)
	}
	return nil
}

// Clear removes the cursor, forcing the next subscription to replay
// from the beginning. Used for full resync.
func (c *CursorStore) Clear(addr types.Address) error {
	if err := c.db.Delete(addr.Bytes()); err != nil {
		return fmt.Errorf("cursor clear: %w", err)
	}
	return nil
}
