// Package dust implements the time-dependent value arithmetic for DUST
// tokens. DUST accrues from a backing NIGHT output at a network-defined
// rate up to a capacity proportional to the backing value.
//
// All arithmetic is integer-only on 256-bit values; there is no
// floating point anywhere in the balance computation.
package dust

import (
	"time"

	"github.com/holiman/uint256"
)

// Params are the network parameters governing DUST generation.
type Params struct {
	// NightDustRatio is the capacity multiplier:
	// capacity = backingValue × NightDustRatio.
	NightDustRatio uint64

	// GenerationRateNum / GenerationRateDen express the per-second
	// generation rate as a rational of the backing value:
	// rate = backingValue × num / den specks per second.
	GenerationRateNum uint64
	GenerationRateDen uint64
}

// DefaultParams returns the mainnet generation parameters: capacity is
// 5× the backing NIGHT value, reached after roughly one day.
func DefaultParams() Params {
	return Params{
		NightDustRatio:    5,
		GenerationRateNum: 1,
		GenerationRateDen: 17280, // 5× backing in 86400s
	}
}

// Capacity returns the maximum DUST value a backing output can hold.
func Capacity(backing *uint256.Int, p Params) *uint256.Int {
	return new(uint256.Int).Mul(backing, uint256.NewInt(p.NightDustRatio))
}

// Rate returns the per-second generation rate in specks. A zero or
// malformed rate parameter (den == 0) yields zero growth.
func Rate(backing *uint256.Int, p Params) *uint256.Int {
	if p.GenerationRateNum == 0 || p.GenerationRateDen == 0 {
		return new(uint256.Int)
	}
	r := new(uint256.Int).Mul(backing, uint256.NewInt(p.GenerationRateNum))
	return r.Div(r, uint256.NewInt(p.GenerationRateDen))
}

// CurrentValue computes the DUST value at time now for a token created
// at createdAt with the given initial value and backing.
//
//	value(t) = min(capacity, initial + rate × max(0, t − createdAt))
//
// Negative elapsed time (clock skew) clamps to zero; the result clamps
// to [0, capacity].
func CurrentValue(initial, backing *uint256.Int, createdAt, now time.Time, p Params) *uint256.Int {
	capacity := Capacity(backing, p)

	elapsed := now.Unix() - createdAt.Unix()
	if elapsed < 0 {
		elapsed = 0
	}

	grown := new(uint256.Int).Mul(Rate(backing, p), uint256.NewInt(uint64(elapsed)))
	grown.Add(grown, initial)

	if grown.Cmp(capacity) > 0 {
		return capacity
	}
	return grown
}

// TimeToCapacity returns how long from now until the token reaches
// capacity. The second return value is false when capacity is
// unreachable (zero rate); callers treat that as "infinite".
// A token already at or above capacity returns (0, true).
func TimeToCapacity(initial, backing *uint256.Int, createdAt, now time.Time, p Params) (time.Duration, bool) {
	capacity := Capacity(backing, p)
	cur := CurrentValue(initial, backing, createdAt, now, p)
	if cur.Cmp(capacity) >= 0 {
		return 0, true
	}

	rate := Rate(backing, p)
	if rate.IsZero() {
		return 0, false
	}

	// Ceiling division of the remaining capacity by the rate.
	remaining := new(uint256.Int).Sub(capacity, cur)
	secs := new(uint256.Int).Add(remaining, new(uint256.Int).Sub(rate, uint256.NewInt(1)))
	secs.Div(secs, rate)

	if !secs.IsUint64() || secs.Uint64() > uint64(1<<62/time.Second) {
		// Beyond any representable duration; effectively unreachable.
		return 0, false
	}
	return time.Duration(secs.Uint64()) * time.Second, true
}
