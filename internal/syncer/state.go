package syncer

import (
	"fmt"

	"github.com/holiman/uint256"
)

// State is the sync status of one watched address. The implementation
// set is closed: Syncing, Synced, and Failed.
type State interface {
	isSyncState()
	String() string
}

// Balances is a point-in-time snapshot of the address's spendable
// funds, taken when the state was emitted.
type Balances struct {
	Night *uint256.Int
	Dust  *uint256.Int
}

func zeroBalances() Balances {
	return Balances{Night: new(uint256.Int), Dust: new(uint256.Int)}
}

func (b Balances) String() string {
	if b.Night == nil || b.Dust == nil {
		return "night 0, dust 0"
	}
	return fmt.Sprintf("night %s, dust %s", b.Night, b.Dust)
}

// Syncing: updates are flowing but the applied cursor has not caught
// up with the indexer's reported highest sequence.
type Syncing struct {
	AppliedSeq uint64
	HighestSeq uint64 // 0 until the first progress element arrives
	Balance    Balances
}

func (s Syncing) isSyncState() {}

func (s Syncing) String() string {
	return fmt.Sprintf("syncing %d/%d (%s)", s.AppliedSeq, s.HighestSeq, s.Balance)
}

// Synced: every update the indexer knows about has been applied.
type Synced struct {
	Seq     uint64
	Balance Balances
}

func (s Synced) isSyncState() {}

func (s Synced) String() string {
	return fmt.Sprintf("synced at %d (%s)", s.Seq, s.Balance)
}

// Failed: the address's sync loop stopped on an error. Fatal failures
// (permanent errors, exhausted retries, deep reorgs) require operator
// intervention or a full resync; non-fatal ones resolve on reconnect.
type Failed struct {
	Err   error
	Fatal bool
}

func (s Failed) isSyncState() {}

func (s Failed) String() string {
	if s.Fatal {
		return fmt.Sprintf("failed (fatal): %v", s.Err)
	}
	return fmt.Sprintf("failed: %v", s.Err)
}
