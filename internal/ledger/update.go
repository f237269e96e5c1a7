package ledger

import "github.com/umbra-network/umbra-wallet/pkg/types"

// TxStatus is the remote indexer's verdict on a transaction.
type TxStatus string

const (
	StatusSuccess        TxStatus = "SUCCESS"
	StatusPartialSuccess TxStatus = "PARTIAL_SUCCESS"
	StatusFailure        TxStatus = "FAILURE"
)

// Valid reports whether the status is one of the known values.
func (s TxStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusFailure:
		return true
	default:
		return false
	}
}

// Update is one element of the per-address transaction stream. The
// implementation set is closed: TransactionUpdate and ProgressUpdate.
type Update interface {
	// Sequence returns the stream cursor position of this update.
	Sequence() uint64

	isUpdate()
}

// TransactionUpdate reports a concrete transaction: the outputs it
// created and the outputs it spent, plus the remote status.
type TransactionUpdate struct {
	Seq    uint64
	TxID   types.Hash
	Height uint64 // block height the transaction landed at
	Status TxStatus

	// Created outputs, already shaped as ledger records (state field
	// is ignored on insert; they enter as AVAILABLE).
	Created []*Record

	// Spent output references, keyed by nullifier hash. These may not
	// resolve to locally tracked records.
	Spent []types.Hash
}

// Sequence returns the stream cursor position of this update.
func (u *TransactionUpdate) Sequence() uint64 { return u.Seq }

func (u *TransactionUpdate) isUpdate() {}

// ProgressUpdate carries only the highest transaction sequence id the
// indexer has seen for the address. It never changes ledger state; the
// coordinator uses it to advance the cursor and detect "synced".
type ProgressUpdate struct {
	HighestSeq uint64
}

// Sequence returns the stream cursor position of this update.
func (u *ProgressUpdate) Sequence() uint64 { return u.HighestSeq }

func (u *ProgressUpdate) isUpdate() {}
