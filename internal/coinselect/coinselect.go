// Package coinselect chooses which available ledger records to consume
// to satisfy a target spend amount.
//
// Selection is advisory and purely functional: it never locks records.
// Locking is the manager's job (see manager.SelectAndLock), which runs
// selection inside the same storage transaction that flips the chosen
// records to PENDING.
package coinselect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// ErrNonPositiveTarget is a caller contract violation: selection
// targets must be strictly positive.
var ErrNonPositiveTarget = errors.New("coinselect: target must be positive")

// InsufficientFundsError reports that the candidate set cannot cover
// the target.
type InsufficientFundsError struct {
	Kind      types.TokenKind
	Required  *uint256.Int
	Available *uint256.Int
	Shortfall *uint256.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s funds: need %s, have %s (short %s)",
		e.Kind, e.Required, e.Available, e.Shortfall)
}

// Selection is the result of a successful coin selection.
type Selection struct {
	Records []*ledger.Record
	Total   *uint256.Int
	Change  *uint256.Int // Total − target
}

// Select accumulates candidates in ascending-value order until the
// running total covers the target, and returns the selected subset,
// its total, and the change.
//
// Candidates must already be sorted ascending by value (the ledger
// store's AscendingValue query provides this). Smallest-first spends
// fragments before large outputs, which keeps fewer long-lived large
// records around and improves unlinkability compared to largest-first.
func Select(candidates []*ledger.Record, target *uint256.Int) (*Selection, error) {
	if target == nil || target.IsZero() {
		return nil, ErrNonPositiveTarget
	}

	total := new(uint256.Int)
	var selected []*ledger.Record
	for _, r := range candidates {
		selected = append(selected, r)
		total.Add(total, r.Value)
		if total.Cmp(target) >= 0 {
			return &Selection{
				Records: selected,
				Total:   total,
				Change:  new(uint256.Int).Sub(total, target),
			}, nil
		}
	}

	kind := types.TokenKind("")
	if len(candidates) > 0 {
		kind = candidates[0].Kind
	}
	return nil, &InsufficientFundsError{
		Kind:      kind,
		Required:  new(uint256.Int).Set(target),
		Available: total,
		Shortfall: new(uint256.Int).Sub(target, total),
	}
}

// SelectMultiple runs Select independently per token kind. If any kind
// cannot be satisfied, the error names the first failing kind (kinds
// are processed in sorted order for determinism) and no selection is
// returned for any kind: callers must not treat a partial result as
// locked (selection is advisory; see package comment).
func SelectMultiple(candidatesByKind map[types.TokenKind][]*ledger.Record, targetsByKind map[types.TokenKind]*uint256.Int) (map[types.TokenKind]*Selection, error) {
	kinds := make([]types.TokenKind, 0, len(targetsByKind))
	for kind := range targetsByKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	results := make(map[types.TokenKind]*Selection, len(targetsByKind))
	for _, kind := range kinds {
		target := targetsByKind[kind]
		sel, err := Select(candidatesByKind[kind], target)
		if err != nil {
			var insufficient *InsufficientFundsError
			if errors.As(err, &insufficient) {
				insufficient.Kind = kind
				return nil, insufficient
			}
			return nil, fmt.Errorf("select %s: %w", kind, err)
		}
		results[kind] = sel
	}
	return results, nil
}
