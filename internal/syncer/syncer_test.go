package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/umbra-network/umbra-wallet/internal/dust"
	"github.com/umbra-network/umbra-wallet/internal/indexer"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/internal/manager"
	"github.com/umbra-network/umbra-wallet/internal/reorg"
	"github.com/umbra-network/umbra-wallet/internal/storage"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

var testAddr = types.Address{0xAA}

// fakeStream is a channel-backed UpdateStream.
type fakeStream struct {
	ch  chan ledger.Update
	err chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		ch:  make(chan ledger.Update, 64),
		err: make(chan error, 1),
	}
}

func (s *fakeStream) Next(ctx context.Context) (ledger.Update, error) {
	select {
	case u := <-s.ch:
		return u, nil
	case err := <-s.err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	select {
	case s.err <- errors.New("connection closed"):
	default:
	}
	return nil
}

func (s *fakeStream) fail(err error) {
	s.err <- err
}

// fakeBlockStream is a channel-backed BlockStream.
type fakeBlockStream struct {
	ch  chan reorg.BlockDigest
	err chan error
}

func newFakeBlockStream() *fakeBlockStream {
	return &fakeBlockStream{
		ch:  make(chan reorg.BlockDigest, 64),
		err: make(chan error, 1),
	}
}

func (s *fakeBlockStream) Next(ctx context.Context) (reorg.BlockDigest, error) {
	select {
	case b := <-s.ch:
		return b, nil
	case err := <-s.err:
		return reorg.BlockDigest{}, err
	case <-ctx.Done():
		return reorg.BlockDigest{}, ctx.Err()
	}
}

func (s *fakeBlockStream) Close() error {
	select {
	case s.err <- errors.New("connection closed"):
	default:
	}
	return nil
}

// fakeSource hands out preloaded streams per subscription, recording
// each fromSeq. When the preload runs dry it hands out fresh idle
// streams so reconnect loops stay quiet.
type fakeSource struct {
	mu      sync.Mutex
	fromSeq []uint64
	streams []*fakeStream
	subErrs []error
	blocks  *fakeBlockStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{blocks: newFakeBlockStream()}
}

func (s *fakeSource) preload(streams ...*fakeStream) {
	s.mu.Lock()
	s.streams = append(s.streams, streams...)
	s.mu.Unlock()
}

func (s *fakeSource) failNextSubscribe(err error) {
	s.mu.Lock()
	s.subErrs = append(s.subErrs, err)
	s.mu.Unlock()
}

func (s *fakeSource) SubscribeTransactions(ctx context.Context, addr types.Address, fromSeq uint64) (indexer.UpdateStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fromSeq = append(s.fromSeq, fromSeq)
	if len(s.subErrs) > 0 {
		err := s.subErrs[0]
		s.subErrs = s.subErrs[1:]
		return nil, err
	}
	if len(s.streams) > 0 {
		st := s.streams[0]
		s.streams = s.streams[1:]
		return st, nil
	}
	return newFakeStream(), nil
}

func (s *fakeSource) SubscribeBlocks(ctx context.Context) (indexer.BlockStream, error) {
	return s.blocks, nil
}

func (s *fakeSource) Health(ctx context.Context) error { return nil }

func (s *fakeSource) subscriptions() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.fromSeq))
	copy(out, s.fromSeq)
	return out
}

type fixture struct {
	coord   *Coordinator
	source  *fakeSource
	store   *ledger.Store
	mgr     *manager.Manager
	cursors *CursorStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemory()
	store := ledger.NewStore(db)
	mgr := manager.New(store, dust.DefaultParams(), zerolog.Nop())
	cursors := NewCursorStore(db)
	detector, err := reorg.NewDetector(100, 10, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	source := newFakeSource()
	cfg := Config{
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
	coord := New(source, mgr, cursors, detector, cfg, zerolog.Nop())
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)
	return &fixture{coord: coord, source: source, store: store, mgr: mgr, cursors: cursors}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func txUpdate(seq uint64, id byte, height uint64) *ledger.TransactionUpdate {
	return &ledger.TransactionUpdate{
		Seq:    seq,
		TxID:   types.Hash{0x70, byte(seq)},
		Height: height,
		Status: ledger.StatusSuccess,
		Created: []*ledger.Record{{
			ID:        types.Hash{id},
			Owner:     testAddr,
			Kind:      types.KindNight,
			Value:     uint256.NewInt(100),
			Nullifier: types.Hash{0xF0, id},
			CreatedAt: time.Unix(1_700_000_000, 0),
			Height:    height,
		}},
	}
}

func TestSyncAppliesUpdatesAndAdvancesCursor(t *testing.T) {
	f := newFixture(t)
	st := newFakeStream()
	f.source.preload(st)
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	st.ch <- txUpdate(1, 0x01, 10)
	st.ch <- txUpdate(2, 0x02, 11)
	st.ch <- &ledger.ProgressUpdate{HighestSeq: 2}

	waitFor(t, "synced state", func() bool {
		s, err := f.coord.StateOf(testAddr)
		if err != nil {
			return false
		}
		synced, ok := s.(Synced)
		return ok && synced.Seq == 2
	})

	// The state carries a balance snapshot: two created outputs of 100.
	s, err := f.coord.StateOf(testAddr)
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if synced, ok := s.(Synced); !ok || synced.Balance.Night.Uint64() != 200 {
		t.Errorf("state = %v, want synced with night balance 200", s)
	}

	for _, id := range []byte{0x01, 0x02} {
		r, err := f.store.GetByID(types.Hash{id})
		if err != nil {
			t.Fatalf("record %#x missing: %v", id, err)
		}
		if r.State != ledger.StateAvailable {
			t.Errorf("record %#x state = %s", id, r.State)
		}
	}

	seq, ok, err := f.cursors.Get(testAddr)
	if err != nil || !ok || seq != 2 {
		t.Errorf("cursor = %d/%v/%v, want 2/true/nil", seq, ok, err)
	}

	subs := f.source.subscriptions()
	if len(subs) != 1 || subs[0] != 0 {
		t.Errorf("subscriptions = %v, want [0]", subs)
	}
}

func TestWatchResumesFromDurableCursor(t *testing.T) {
	f := newFixture(t)
	if err := f.cursors.Set(testAddr, 42); err != nil {
		t.Fatalf("cursor set: %v", err)
	}
	f.source.preload(newFakeStream())
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	waitFor(t, "subscription", func() bool { return len(f.source.subscriptions()) == 1 })
	if subs := f.source.subscriptions(); subs[0] != 42 {
		t.Errorf("fromSeq = %d, want 42", subs[0])
	}
}

func TestReconnectAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	first := newFakeStream()
	second := newFakeStream()
	f.source.preload(first, second)
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	first.ch <- txUpdate(1, 0x01, 10)
	waitFor(t, "first update applied", func() bool {
		seq, ok, _ := f.cursors.Get(testAddr)
		return ok && seq == 1
	})

	// Drop the connection with a transient error; the loop reconnects
	// from the applied cursor.
	first.fail(errors.New("tcp reset"))
	waitFor(t, "resubscription", func() bool { return len(f.source.subscriptions()) >= 2 })
	subs := f.source.subscriptions()
	if subs[1] != 1 {
		t.Errorf("reconnect fromSeq = %d, want 1", subs[1])
	}

	second.ch <- txUpdate(2, 0x02, 11)
	waitFor(t, "second update applied", func() bool {
		_, err := f.store.GetByID(types.Hash{0x02})
		return err == nil
	})
}

func TestPermanentSubscribeErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.source.failNextSubscribe(&indexer.RPCError{Code: -32000, Message: "unknown address"})
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	waitFor(t, "fatal state", func() bool {
		s, err := f.coord.StateOf(testAddr)
		if err != nil {
			return false
		}
		failed, ok := s.(Failed)
		return ok && failed.Fatal
	})
}

func TestRetriesExhaustedIsFatal(t *testing.T) {
	db := storage.NewMemory()
	store := ledger.NewStore(db)
	mgr := manager.New(store, dust.DefaultParams(), zerolog.Nop())
	detector, _ := reorg.NewDetector(100, 10, zerolog.Nop())
	source := newFakeSource()
	cfg := Config{
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  time.Millisecond,
		MaxRetries:     3,
	}
	coord := New(source, mgr, NewCursorStore(db), detector, cfg, zerolog.Nop())
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)

	for i := 0; i < 3; i++ {
		source.failNextSubscribe(errors.New("connection refused"))
	}
	if err := coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	waitFor(t, "retries exhausted", func() bool {
		s, err := coord.StateOf(testAddr)
		if err != nil {
			return false
		}
		failed, ok := s.(Failed)
		return ok && failed.Fatal
	})
}

func TestShallowReorgRollsBackLedger(t *testing.T) {
	f := newFixture(t)
	st := newFakeStream()
	f.source.preload(st)
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// A record created at height 12 and one at height 5.
	st.ch <- txUpdate(1, 0x01, 5)
	st.ch <- txUpdate(2, 0x02, 12)
	waitFor(t, "updates applied", func() bool {
		_, err := f.store.GetByID(types.Hash{0x02})
		return err == nil
	})

	// Feed a chain 10..12, then a fork at height 13 whose parent is
	// block 10: rollback above height 10.
	blocks := f.source.blocks
	blocks.ch <- reorg.BlockDigest{Height: 10, Hash: types.Hash{'a', 10}}
	blocks.ch <- reorg.BlockDigest{Height: 11, Hash: types.Hash{'a', 11}, ParentHash: types.Hash{'a', 10}}
	blocks.ch <- reorg.BlockDigest{Height: 12, Hash: types.Hash{'a', 12}, ParentHash: types.Hash{'a', 11}}
	blocks.ch <- reorg.BlockDigest{Height: 13, Hash: types.Hash{'b', 13}, ParentHash: types.Hash{'a', 10}}

	waitFor(t, "reorg rollback", func() bool {
		_, err := f.store.GetByID(types.Hash{0x02})
		return errors.Is(err, ledger.ErrNotFound)
	})
	// The record below the fork point survives.
	if _, err := f.store.GetByID(types.Hash{0x01}); err != nil {
		t.Errorf("record below fork should survive: %v", err)
	}
}

func TestDeepReorgIsFatal(t *testing.T) {
	f := newFixture(t)
	f.source.preload(newFakeStream())
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	blocks := f.source.blocks
	parent := types.Hash{}
	for h := uint64(1); h <= 20; h++ {
		b := reorg.BlockDigest{Height: h, Hash: types.Hash{'a', byte(h)}, ParentHash: parent}
		blocks.ch <- b
		parent = b.Hash
	}
	// Fork from height 2: depth 19, far past the finality threshold 10.
	blocks.ch <- reorg.BlockDigest{Height: 21, Hash: types.Hash{'b', 21}, ParentHash: types.Hash{'a', 2}}

	waitFor(t, "fatal state after deep reorg", func() bool {
		s, err := f.coord.StateOf(testAddr)
		if err != nil {
			return false
		}
		failed, ok := s.(Failed)
		return ok && failed.Fatal
	})
}

func TestFullResyncClearsStateAndReplays(t *testing.T) {
	f := newFixture(t)
	st := newFakeStream()
	f.source.preload(st)
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	st.ch <- txUpdate(1, 0x01, 10)
	waitFor(t, "update applied", func() bool {
		seq, ok, _ := f.cursors.Get(testAddr)
		return ok && seq == 1
	})

	replay := newFakeStream()
	f.source.preload(replay)
	if err := f.coord.FullResync(testAddr); err != nil {
		t.Fatalf("FullResync: %v", err)
	}

	// Ledger wiped, cursor cleared, resubscribed from zero.
	if _, err := f.store.GetByID(types.Hash{0x01}); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("ledger should be wiped, err = %v", err)
	}
	waitFor(t, "replay subscription from 0", func() bool {
		subs := f.source.subscriptions()
		return len(subs) >= 2 && subs[len(subs)-1] == 0
	})

	replay.ch <- txUpdate(1, 0x01, 10)
	waitFor(t, "replayed record", func() bool {
		_, err := f.store.GetByID(types.Hash{0x01})
		return err == nil
	})
}

func TestResetConnectionResubscribes(t *testing.T) {
	f := newFixture(t)
	st := newFakeStream()
	f.source.preload(st)
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitFor(t, "first subscription", func() bool { return len(f.source.subscriptions()) == 1 })

	if err := f.coord.ResetConnection(testAddr); err != nil {
		t.Fatalf("ResetConnection: %v", err)
	}
	waitFor(t, "resubscription", func() bool { return len(f.source.subscriptions()) >= 2 })
}

func TestUnwatch(t *testing.T) {
	f := newFixture(t)
	f.source.preload(newFakeStream())
	if err := f.coord.Watch(testAddr); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := f.coord.Unwatch(testAddr); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}
	if _, err := f.coord.StateOf(testAddr); !errors.Is(err, ErrNotWatched) {
		t.Errorf("err = %v, want ErrNotWatched", err)
	}
	if err := f.coord.Unwatch(testAddr); !errors.Is(err, ErrNotWatched) {
		t.Errorf("double unwatch: err = %v, want ErrNotWatched", err)
	}
}

func TestWatchRequiresStart(t *testing.T) {
	db := storage.NewMemory()
	store := ledger.NewStore(db)
	mgr := manager.New(store, dust.DefaultParams(), zerolog.Nop())
	detector, _ := reorg.NewDetector(100, 10, zerolog.Nop())
	coord := New(newFakeSource(), mgr, NewCursorStore(db), detector, DefaultConfig(), zerolog.Nop())
	if err := coord.Watch(testAddr); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}
