package types

// TokenKind identifies the kind of value a ledger record carries.
// The set is open: custom shielded token types appear as their own
// kind strings, but the two kinds below are built in.
type TokenKind string

const (
	// KindNight is the network's primary value token (UTXO records).
	KindNight TokenKind = "night"

	// KindDust is the fee-paying auxiliary token that accrues value
	// over time from a backing NIGHT output.
	KindDust TokenKind = "dust"
)

// Valid reports whether the kind is non-empty.
func (k TokenKind) Valid() bool {
	return k != ""
}
