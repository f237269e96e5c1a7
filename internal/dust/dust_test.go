package dust

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
)

// testParams: capacity = 5× backing, rate = backing/10 per second.
func testParams() Params {
	return Params{
		NightDustRatio:    5,
		GenerationRateNum: 1,
		GenerationRateDen: 10,
	}
}

func TestCurrentValueGrowth(t *testing.T) {
	p := testParams()
	backing := uint256.NewInt(1000) // rate = 100/s, capacity = 5000
	initial := uint256.NewInt(0)
	created := time.Unix(1_000_000, 0)

	cases := []struct {
		elapsed int64
		want    uint64
	}{
		{0, 0},
		{1, 100},
		{10, 1000},
		{49, 4900},
		{50, 5000},
		{51, 5000},  // capped
		{999, 5000}, // still capped
	}
	for _, c := range cases {
		got := CurrentValue(initial, backing, created, created.Add(time.Duration(c.elapsed)*time.Second), p)
		if got.Uint64() != c.want {
			t.Errorf("elapsed %ds: value = %s, want %d", c.elapsed, got, c.want)
		}
	}
}

func TestCurrentValueClockSkew(t *testing.T) {
	p := testParams()
	backing := uint256.NewInt(1000)
	initial := uint256.NewInt(42)
	created := time.Unix(1_000_000, 0)

	// now before createdAt: elapsed clamps to zero.
	got := CurrentValue(initial, backing, created, created.Add(-time.Hour), p)
	if got.Uint64() != 42 {
		t.Errorf("value = %s, want initial 42", got)
	}
}

func TestCurrentValueMonotonic(t *testing.T) {
	p := testParams()
	backing := uint256.NewInt(777)
	initial := uint256.NewInt(13)
	created := time.Unix(500_000, 0)

	prev := new(uint256.Int)
	for s := int64(0); s < 200; s += 7 {
		v := CurrentValue(initial, backing, created, created.Add(time.Duration(s)*time.Second), p)
		if v.Cmp(prev) < 0 {
			t.Fatalf("value decreased at %ds: %s < %s", s, v, prev)
		}
		prev = v
	}
	// Never exceeds capacity.
	cap_ := Capacity(backing, p)
	far := CurrentValue(initial, backing, created, created.Add(1000*time.Hour), p)
	if far.Cmp(cap_) > 0 {
		t.Errorf("value %s exceeds capacity %s", far, cap_)
	}
}

func TestCurrentValueInitialAboveCapacity(t *testing.T) {
	p := testParams()
	backing := uint256.NewInt(10) // capacity = 50
	initial := uint256.NewInt(100)
	created := time.Unix(0, 0)

	got := CurrentValue(initial, backing, created, created, p)
	if got.Uint64() != 50 {
		t.Errorf("value = %s, want clamp to capacity 50", got)
	}
}

func TestTimeToCapacity(t *testing.T) {
	p := testParams()
	backing := uint256.NewInt(1000) // rate 100/s, cap 5000
	created := time.Unix(1_000_000, 0)

	d, finite := TimeToCapacity(uint256.NewInt(0), backing, created, created, p)
	if !finite || d != 50*time.Second {
		t.Errorf("TimeToCapacity = %v, %v; want 50s, true", d, finite)
	}

	// Partially grown: 10s in, 40s remain.
	d, finite = TimeToCapacity(uint256.NewInt(0), backing, created, created.Add(10*time.Second), p)
	if !finite || d != 40*time.Second {
		t.Errorf("TimeToCapacity = %v, %v; want 40s, true", d, finite)
	}

	// Already full.
	d, finite = TimeToCapacity(uint256.NewInt(5000), backing, created, created, p)
	if !finite || d != 0 {
		t.Errorf("TimeToCapacity = %v, %v; want 0, true", d, finite)
	}
}

func TestTimeToCapacityCeiling(t *testing.T) {
	// rate = 3/s, capacity = 10: 10/3 rounds up to 4 seconds.
	p := Params{NightDustRatio: 10, GenerationRateNum: 3, GenerationRateDen: 1}
	backing := uint256.NewInt(1)
	created := time.Unix(0, 0)

	d, finite := TimeToCapacity(uint256.NewInt(0), backing, created, created, p)
	if !finite || d != 4*time.Second {
		t.Errorf("TimeToCapacity = %v, %v; want 4s (ceiling), true", d, finite)
	}
}

func TestTimeToCapacityZeroRate(t *testing.T) {
	p := Params{NightDustRatio: 5, GenerationRateNum: 0, GenerationRateDen: 10}
	backing := uint256.NewInt(1000)
	created := time.Unix(0, 0)

	if _, finite := TimeToCapacity(uint256.NewInt(1), backing, created, created, p); finite {
		t.Error("zero rate should report infinite time to capacity")
	}

	// Zero rate also means zero growth.
	v := CurrentValue(uint256.NewInt(7), backing, created, created.Add(time.Hour), p)
	if v.Uint64() != 7 {
		t.Errorf("value = %s, want 7 (no growth)", v)
	}
}

func TestRateMalformedDenominator(t *testing.T) {
	p := Params{NightDustRatio: 5, GenerationRateNum: 1, GenerationRateDen: 0}
	r := Rate(uint256.NewInt(1000), p)
	if !r.IsZero() {
		t.Errorf("rate = %s, want 0 for den=0", r)
	}
}
