// Package manager owns all lifecycle transitions of ledger records. It
// is the only component that moves records between AVAILABLE, PENDING,
// and SPENT; everything else either reads (balance, queries) or feeds
// it remote updates (syncer).
package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/umbra-network/umbra-wallet/internal/coinselect"
	"github.com/umbra-network/umbra-wallet/internal/dust"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// ErrUnknownUpdate is returned for an Update variant the manager does
// not recognize. The update set is closed, so this indicates a bug.
var ErrUnknownUpdate = errors.New("manager: unknown update variant")

// ErrNotPending is returned by Unlock and Confirm when a record is not
// in the PENDING state they transition from.
var ErrNotPending = errors.New("manager: record not pending")

// Manager coordinates coin selection, locking, and remote update
// application over the ledger store. All methods are safe for
// concurrent use; mutations run in single storage transactions.
type Manager struct {
	store  *ledger.Store
	params dust.Params
	now    func() time.Time
	log    zerolog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Tests use this to pin dust
// value computation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager over the given ledger store.
func New(store *ledger.Store, params dust.Params, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		params: params,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// effectiveValue returns the record's spendable value at time now.
// NIGHT records are worth their stored value; DUST records accrue from
// their backing NIGHT per the generation parameters.
func (m *Manager) effectiveValue(r *ledger.Record, now time.Time) *uint256.Int {
	if r.Kind != types.KindDust {
		return new(uint256.Int).Set(r.Value)
	}
	return dust.CurrentValue(r.Value, r.BackingValue, r.CreatedAt, now, m.params)
}

// SelectAndLock picks AVAILABLE records of the given kind covering
// target (smallest effective value first) and transitions them to
// PENDING, all inside one storage transaction. Concurrent callers
// racing for the same records are serialized by the store: the loser
// re-reads a candidate set without the winner's records.
//
// The returned selection reports effective values at call time, which
// for DUST exceeds the stored initial value.
func (m *Manager) SelectAndLock(owner types.Address, kind types.TokenKind, target *uint256.Int) (*coinselect.Selection, error) {
	now := m.now()
	var sel *coinselect.Selection

	err := m.store.Update(func(tx *ledger.Tx) error {
		candidates, err := tx.GetByOwnerAndState(owner, ledger.StateAvailable, ledger.Query{
			Kind:           kind,
			AscendingValue: true,
		})
		if err != nil {
			return err
		}

		if kind == types.KindDust {
			candidates = m.revalue(candidates, now)
		}

		sel, err = coinselect.Select(candidates, target)
		if err != nil {
			var insufficient *coinselect.InsufficientFundsError
			if errors.As(err, &insufficient) {
				insufficient.Kind = kind
			}
			return err
		}

		ids := make([]types.Hash, len(sel.Records))
		for i, r := range sel.Records {
			ids[i] = r.ID
		}
		return tx.SetState(ids, ledger.StatePending)
	})
	if err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("owner", owner.String()).
		Str("kind", string(kind)).
		Int("locked", len(sel.Records)).
		Str("total", sel.Total.String()).
		Msg("selected and locked records")
	return sel, nil
}

// revalue returns copies of the candidates with effective values at
// time now, re-sorted ascending. DUST records accrue independently, so
// the stored-value order may not match the effective-value order.
func (m *Manager) revalue(candidates []*ledger.Record, now time.Time) []*ledger.Record {
	out := make([]*ledger.Record, len(candidates))
	for i, r := range candidates {
		cp := *r
		cp.Value = m.effectiveValue(r, now)
		out[i] = &cp
	}
	// Insertion sort: the input is already near-sorted by stored value.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Value.Cmp(out[j-1].Value) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Unlock reverts PENDING records to AVAILABLE. Used when a locally
// built transaction is abandoned before submission. Ids that are not
// PENDING fail the whole call with ErrNotPending; reviving SPENT funds
// goes through Rollback only.
func (m *Manager) Unlock(ids []types.Hash) error {
	return m.store.Update(func(tx *ledger.Tx) error {
		if err := requirePending(tx, ids); err != nil {
			return err
		}
		return tx.SetState(ids, ledger.StateAvailable)
	})
}

// Confirm transitions PENDING records to SPENT at the given block
// height. Normally spends arrive through ApplyUpdate; Confirm covers
// callers that learn the outcome out of band. Ids that are not PENDING
// fail the whole call with ErrNotPending.
func (m *Manager) Confirm(ids []types.Hash, height uint64) error {
	return m.store.Update(func(tx *ledger.Tx) error {
		if err := requirePending(tx, ids); err != nil {
			return err
		}
		return tx.MarkSpent(ids, height)
	})
}

// requirePending checks every id is currently PENDING, inside the
// caller's transaction so the check and the transition are atomic.
func requirePending(tx *ledger.Tx, ids []types.Hash) error {
	for _, id := range ids {
		r, err := tx.GetByID(id)
		if err != nil {
			return err
		}
		if r.State != ledger.StatePending {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, id.Short(), r.State)
		}
	}
	return nil
}

// Rollback reverts records to AVAILABLE regardless of whether they are
// PENDING or SPENT, clearing any recorded spend height. Height-ranged
// reorg reversal goes through RollbackAbove; Rollback covers callers
// that already know the exact ids.
func (m *Manager) Rollback(ids []types.Hash) error {
	return m.store.SetState(ids, ledger.StateAvailable)
}

// ApplyUpdate applies one remote stream element to the ledger, in one
// storage transaction. Re-delivery of the same update is harmless: the
// store's inserts and state transitions are idempotent.
//
// SUCCESS and PARTIAL_SUCCESS insert the created outputs as AVAILABLE
// and mark resolved spends SPENT. FAILURE inserts nothing and reverts
// resolved spends to AVAILABLE, releasing any local locks on them.
// Spend references that do not resolve to tracked records are skipped:
// the transaction also touched outputs this wallet never owned.
func (m *Manager) ApplyUpdate(u ledger.Update) error {
	switch upd := u.(type) {
	case *ledger.ProgressUpdate:
		// Cursor-only element; the syncer advances its cursor, the
		// ledger is untouched.
		return nil

	case *ledger.TransactionUpdate:
		return m.applyTransaction(upd)

	default:
		return fmt.Errorf("%w: %T", ErrUnknownUpdate, u)
	}
}

func (m *Manager) applyTransaction(u *ledger.TransactionUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("manager: transaction %s has invalid status %q", u.TxID.Short(), u.Status)
	}

	return m.store.Update(func(tx *ledger.Tx) error {
		resolved := make([]types.Hash, 0, len(u.Spent))
		for _, nullifier := range u.Spent {
			id, err := tx.ResolveSpend(nullifier)
			if errors.Is(err, ledger.ErrNotFound) {
				m.log.Debug().
					Str("tx", u.TxID.Short()).
					Str("nullifier", nullifier.Short()).
					Msg("spend of untracked output, skipping")
				continue
			}
			if err != nil {
				return err
			}
			resolved = append(resolved, id)
		}

		switch u.Status {
		case ledger.StatusSuccess, ledger.StatusPartialSuccess:
			for _, r := range u.Created {
				// First write wins: on re-delivery the identity is
				// already tracked and may have been locked PENDING or
				// spent since. Overwriting would reset its lifecycle.
				if _, err := tx.GetByID(r.ID); err == nil {
					continue
				} else if !errors.Is(err, ledger.ErrNotFound) {
					return err
				}
				cp := *r
				cp.State = ledger.StateAvailable
				if cp.Height == 0 {
					cp.Height = u.Height
				}
				if err := tx.InsertOrReplace(&cp); err != nil {
					return err
				}
			}
			if err := tx.MarkSpent(resolved, u.Height); err != nil {
				return err
			}

		case ledger.StatusFailure:
			// The transaction did not land: anything we locked for it
			// goes back into circulation. Created outputs never existed.
			if err := tx.SetState(resolved, ledger.StateAvailable); err != nil {
				return err
			}
		}

		m.log.Debug().
			Str("tx", u.TxID.Short()).
			Str("status", string(u.Status)).
			Uint64("seq", u.Seq).
			Int("created", len(u.Created)).
			Int("spent", len(resolved)).
			Msg("applied transaction update")
		return nil
	})
}

// RollbackAbove undoes ledger effects recorded above the given block
// height, after a shallow reorg whose common ancestor is that height.
// Records created above it are deleted; records spent above it revert
// to AVAILABLE. Returns how many records were deleted and revived.
func (m *Manager) RollbackAbove(height uint64) (deleted, revived int, err error) {
	err = m.store.Update(func(tx *ledger.Tx) error {
		var toDelete, toRevive []types.Hash
		if err := tx.ForEach(func(r *ledger.Record) error {
			if r.Height > height {
				toDelete = append(toDelete, r.ID)
				return nil
			}
			if r.State == ledger.StateSpent && r.SpentHeight > height {
				toRevive = append(toRevive, r.ID)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, id := range toDelete {
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		if err := tx.SetState(toRevive, ledger.StateAvailable); err != nil {
			return err
		}
		deleted, revived = len(toDelete), len(toRevive)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	m.log.Warn().
		Uint64("above_height", height).
		Int("deleted", deleted).
		Int("revived", revived).
		Msg("rolled back ledger past reorg point")
	return deleted, revived, nil
}

// Reset removes every record for the owner. Used before a full resync.
func (m *Manager) Reset(owner types.Address) error {
	return m.store.DeleteAllForOwner(owner)
}

// Balance sums the owner's AVAILABLE records of the given kind at
// their effective value (DUST accrues over time).
func (m *Manager) Balance(owner types.Address, kind types.TokenKind) (*uint256.Int, error) {
	now := m.now()
	total := new(uint256.Int)
	err := m.store.View(func(tx *ledger.Tx) error {
		recs, err := tx.GetByOwnerAndState(owner, ledger.StateAvailable, ledger.Query{Kind: kind})
		if err != nil {
			return err
		}
		for _, r := range recs {
			total.Add(total, m.effectiveValue(r, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Records returns the owner's records in the given state.
func (m *Manager) Records(owner types.Address, state ledger.State, q ledger.Query) ([]*ledger.Record, error) {
	return m.store.GetByOwnerAndState(owner, state, q)
}
