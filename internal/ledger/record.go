// Package ledger implements the wallet's locally authoritative ledger:
// the durable store of output records (NIGHT UTXOs and DUST tokens)
// with indexed lookup by owner, lifecycle state, and spend reference.
package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// State is the lifecycle state of a ledger record.
type State uint8

const (
	// StateAvailable: the output exists on-chain and is spendable.
	StateAvailable State = iota
	// StatePending: locked by a local select-and-lock, awaiting the
	// outcome of a submitted transaction.
	StatePending
	// StateSpent: consumed by a confirmed transaction.
	StateSpent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StatePending:
		return "pending"
	case StateSpent:
		return "spent"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s <= StateSpent
}

// Record is a single output tracked by the wallet. It unifies NIGHT
// UTXOs and DUST tokens: the identity of a UTXO is derived from its
// creating outpoint (crypto.OutpointID), the identity of a DUST token
// is its nullifier-derived hash as reported by the indexer.
//
// A record's identity never changes after creation. Records are
// destroyed only by DeleteAllForOwner (full resync / address removal).
type Record struct {
	ID    types.Hash      `json:"id"`
	Owner types.Address   `json:"owner"`
	Kind  types.TokenKind `json:"kind"`

	// Value is the output's value; for DUST it is the initial value at
	// CreatedAt, and the live value is computed by dust.CurrentValue.
	Value *uint256.Int `json:"value"`

	// Outpoint is the creating transaction output (zero for DUST).
	Outpoint types.Outpoint `json:"outpoint"`

	// Nullifier is the spend-side hash under which the indexer reports
	// this output when it is consumed. Indexed for spend resolution.
	Nullifier types.Hash `json:"nullifier"`

	// DUST generation linkage: the backing NIGHT record and its value.
	BackingID    types.Hash   `json:"backing_id,omitempty"`
	BackingValue *uint256.Int `json:"backing_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Height    uint64    `json:"height"` // block height the output was created at

	State       State  `json:"state"`
	SpentHeight uint64 `json:"spent_height,omitempty"`
}

// Validate checks the caller contract on a record: non-zero identity,
// owner, and kind, and a present value.
func (r *Record) Validate() error {
	if r.ID.IsZero() {
		return fmt.Errorf("record has zero identity")
	}
	if r.Owner.IsZero() {
		return fmt.Errorf("record %s has zero owner", r.ID.Short())
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("record %s has empty token kind", r.ID.Short())
	}
	if r.Value == nil {
		return fmt.Errorf("record %s has nil value", r.ID.Short())
	}
	if !r.State.Valid() {
		return fmt.Errorf("record %s has invalid state %d", r.ID.Short(), r.State)
	}
	if r.Kind == types.KindDust && r.BackingValue == nil {
		return fmt.Errorf("dust record %s has nil backing value", r.ID.Short())
	}
	return nil
}
