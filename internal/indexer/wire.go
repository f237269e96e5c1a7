package indexer

import (
	"encoding/json"
	"fmt"

	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// Wire element types on the transaction stream.
const (
	wireTypeTransaction = "transaction"
	wireTypeProgress    = "progress"
)

// wireUpdate is the JSON envelope of one transaction-stream element.
// The two variants share an envelope discriminated by Type; unused
// fields of the other variant stay zero.
type wireUpdate struct {
	Type string `json:"type"`

	// transaction fields
	Seq     uint64           `json:"seq,omitempty"`
	TxID    types.Hash       `json:"tx_id,omitempty"`
	Height  uint64           `json:"height,omitempty"`
	Status  ledger.TxStatus  `json:"status,omitempty"`
	Created []*ledger.Record `json:"created,omitempty"`
	Spent   []types.Hash     `json:"spent,omitempty"`

	// progress fields
	HighestSeq uint64 `json:"highest_seq,omitempty"`
}

// decodeUpdate parses one stream message into a ledger.Update.
// Malformed payloads and unknown types return a *DecodeError, which
// Classify treats as permanent.
func decodeUpdate(data []byte) (ledger.Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("decode update: %w", err)}
	}

	switch w.Type {
	case wireTypeTransaction:
		if !w.Status.Valid() {
			return nil, &DecodeError{Err: fmt.Errorf("transaction %s: invalid status %q", w.TxID.Short(), w.Status)}
		}
		if w.TxID.IsZero() {
			return nil, &DecodeError{Err: fmt.Errorf("transaction update with zero tx id at seq %d", w.Seq)}
		}
		return &ledger.TransactionUpdate{
			Seq:     w.Seq,
			TxID:    w.TxID,
			Height:  w.Height,
			Status:  w.Status,
			Created: w.Created,
			Spent:   w.Spent,
		}, nil

	case wireTypeProgress:
		return &ledger.ProgressUpdate{HighestSeq: w.HighestSeq}, nil

	default:
		return nil, &DecodeError{Err: fmt.Errorf("unknown update type %q", w.Type)}
	}
}
