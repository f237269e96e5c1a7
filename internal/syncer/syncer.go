// Package syncer keeps the local ledger converged with the remote
// indexer. A coordinator runs one receive/apply loop pair per watched
// address plus a shared block watcher feeding the reorg detector.
//
// The receive loop reads the websocket stream and buffers into an
// unbounded queue so it never backpressures the server; the apply loop
// drains the queue, applies updates through the manager, and advances
// the durable cursor only after each update is committed. A crash
// between the two replays the update on restart, which the ledger
// absorbs idempotently.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/umbra-network/umbra-wallet/internal/indexer"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/internal/manager"
	"github.com/umbra-network/umbra-wallet/internal/reorg"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// ErrNotWatched is returned for operations on an address the
// coordinator is not watching.
var ErrNotWatched = errors.New("syncer: address not watched")

// ErrNotStarted is returned when Watch is called before Start.
var ErrNotStarted = errors.New("syncer: coordinator not started")

// Source is the remote indexer surface the coordinator consumes.
// *indexer.Client implements it; tests substitute fakes.
type Source interface {
	SubscribeTransactions(ctx context.Context, addr types.Address, fromSeq uint64) (indexer.UpdateStream, error)
	SubscribeBlocks(ctx context.Context) (indexer.BlockStream, error)
	Health(ctx context.Context) error
}

// Config tunes the reconnect behavior.
type Config struct {
	// RetryBaseDelay is the first reconnect delay; it doubles per
	// consecutive failure up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// MaxRetries is the number of consecutive transient failures
	// tolerated before the address is marked fatally failed.
	// 0 means retry forever.
	MaxRetries int
}

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  30 * time.Second,
		MaxRetries:     0,
	}
}

// Coordinator drives sync for a set of watched addresses.
type Coordinator struct {
	source   Source
	manager  *manager.Manager
	cursors  *CursorStore
	detector *reorg.Detector
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	states   map[types.Address]State
	watchers map[types.Address]*watcher
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// watcher is the per-address loop pair.
type watcher struct {
	addr   types.Address
	queue  *queue
	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup

	mu     sync.Mutex
	stream indexer.UpdateStream
}

func (w *watcher) setStream(s indexer.UpdateStream) {
	w.mu.Lock()
	w.stream = s
	w.mu.Unlock()
}

// closeStream drops the live connection, forcing the receive loop to
// reconnect from the durable cursor.
func (w *watcher) closeStream() {
	w.mu.Lock()
	s := w.stream
	w.stream = nil
	w.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// New creates a coordinator. Call Start before Watch.
func New(source Source, mgr *manager.Manager, cursors *CursorStore, detector *reorg.Detector, cfg Config, log zerolog.Logger) *Coordinator {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	return &Coordinator{
		source:   source,
		manager:  mgr,
		cursors:  cursors,
		detector: detector,
		cfg:      cfg,
		log:      log,
		states:   make(map[types.Address]State),
		watchers: make(map[types.Address]*watcher),
	}
}

// Start launches the block watcher. It returns immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.blockLoop()
	}()
}

// Stop cancels all loops and waits for them to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	watchers := make([]*watcher, 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, w := range watchers {
		w.queue.Close()
		w.closeStream()
	}
	c.wg.Wait()
}

// Watch begins syncing an address, resuming from its durable cursor.
func (c *Coordinator) Watch(addr types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return ErrNotStarted
	}
	if _, ok := c.watchers[addr]; ok {
		return nil // already watching
	}

	wctx, wcancel := context.WithCancel(c.ctx)
	w := &watcher{
		addr:   addr,
		queue:  newQueue(),
		ctx:    wctx,
		cancel: wcancel,
	}
	c.watchers[addr] = w
	c.states[addr] = Syncing{Balance: c.balances(addr)}

	w.done.Add(2)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer w.done.Done()
		c.receiveLoop(w)
	}()
	go func() {
		defer c.wg.Done()
		defer w.done.Done()
		c.applyLoop(w)
	}()

	c.log.Info().Str("address", addr.String()).Msg("watching address")
	return nil
}

// Unwatch stops syncing an address. Ledger records and the cursor are
// kept; Watch resumes where it left off.
func (c *Coordinator) Unwatch(addr types.Address) error {
	c.mu.Lock()
	w, ok := c.watchers[addr]
	if ok {
		delete(c.watchers, addr)
		delete(c.states, addr)
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotWatched
	}

	w.cancel()
	w.queue.Close()
	w.closeStream()
	w.done.Wait()
	return nil
}

// StateOf reports the sync state of a watched address.
func (c *Coordinator) StateOf(addr types.Address) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[addr]
	if !ok {
		return nil, ErrNotWatched
	}
	return s, nil
}

// ResetConnection drops the address's live stream; the receive loop
// reconnects from the durable cursor. No ledger state is touched.
func (c *Coordinator) ResetConnection(addr types.Address) error {
	c.mu.Lock()
	w, ok := c.watchers[addr]
	c.mu.Unlock()
	if !ok {
		return ErrNotWatched
	}
	w.closeStream()
	c.log.Info().Str("address", addr.String()).Msg("connection reset requested")
	return nil
}

// HealthCheck probes the indexer.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	return c.source.Health(ctx)
}

// FullResync discards the address's ledger records and cursor, then
// re-watches it so the whole history replays. This is the recovery
// path for fatal failures (deep reorg, lost ancestor).
func (c *Coordinator) FullResync(addr types.Address) error {
	if err := c.Unwatch(addr); err != nil {
		return err
	}
	if err := c.cursors.Clear(addr); err != nil {
		return err
	}
	if err := c.manager.Reset(addr); err != nil {
		return err
	}
	c.log.Warn().Str("address", addr.String()).Msg("full resync")
	return c.Watch(addr)
}

// balances snapshots the address's spendable funds for a state change.
// A read failure is logged and reported as zero rather than masking the
// sync state itself.
func (c *Coordinator) balances(addr types.Address) Balances {
	b := zeroBalances()
	night, err := c.manager.Balance(addr, types.KindNight)
	if err != nil {
		c.log.Error().Err(err).Str("address", addr.String()).Msg("night balance read failed")
	} else {
		b.Night = night
	}
	d, err := c.manager.Balance(addr, types.KindDust)
	if err != nil {
		c.log.Error().Err(err).Str("address", addr.String()).Msg("dust balance read failed")
	} else {
		b.Dust = d
	}
	return b
}

func (c *Coordinator) setState(addr types.Address, s State) {
	c.mu.Lock()
	if _, ok := c.states[addr]; ok {
		c.states[addr] = s
	}
	c.mu.Unlock()
}

// fatalAll marks every watched address fatally failed and stops its
// loops. Sync cannot safely continue on a ledger that may disagree
// with the chain past the finality threshold.
func (c *Coordinator) fatalAll(err error) {
	c.mu.Lock()
	watchers := make([]*watcher, 0, len(c.watchers))
	for addr, w := range c.watchers {
		c.states[addr] = Failed{Err: err, Fatal: true}
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	for _, w := range watchers {
		w.cancel()
		w.queue.Close()
		w.closeStream()
	}
	c.log.Error().Err(err).Msg("fatal sync failure, all addresses stopped")
}

// sleep waits for the delay or context cancellation. Returns false
// when the context ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// receiveLoop owns the websocket connection: subscribe from the
// durable cursor, push every element into the queue, reconnect with
// exponential backoff on transient failures.
func (c *Coordinator) receiveLoop(w *watcher) {
	log := c.log.With().Str("address", w.addr.String()).Logger()
	attempts := 0
	delay := c.cfg.RetryBaseDelay

	fail := func(err error, fatal bool) bool {
		if fatal {
			c.setState(w.addr, Failed{Err: err, Fatal: true})
			log.Error().Err(err).Msg("sync stopped")
			return false
		}
		attempts++
		if c.cfg.MaxRetries > 0 && attempts >= c.cfg.MaxRetries {
			c.setState(w.addr, Failed{Err: fmt.Errorf("retries exhausted: %w", err), Fatal: true})
			log.Error().Err(err).Int("attempts", attempts).Msg("retries exhausted")
			return false
		}
		c.setState(w.addr, Failed{Err: err, Fatal: false})
		log.Warn().Err(err).Dur("retry_in", delay).Msg("stream failure, reconnecting")
		if !sleep(w.ctx, delay) {
			return false
		}
		delay = nextDelay(delay, c.cfg.RetryMaxDelay)
		return true
	}

	for w.ctx.Err() == nil {
		seq, _, err := c.cursors.Get(w.addr)
		if err != nil {
			c.setState(w.addr, Failed{Err: err, Fatal: true})
			return
		}

		stream, err := c.source.SubscribeTransactions(w.ctx, w.addr, seq)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			if !fail(err, indexer.Classify(err) == indexer.ClassPermanent) {
				return
			}
			continue
		}
		w.setStream(stream)
		attempts = 0
		delay = c.cfg.RetryBaseDelay

		for {
			u, err := stream.Next(w.ctx)
			if err != nil {
				w.closeStream()
				if w.ctx.Err() != nil {
					return
				}
				if !fail(err, indexer.Classify(err) == indexer.ClassPermanent) {
					return
				}
				break // reconnect
			}
			w.queue.Push(u)
		}
	}
}

// applyLoop drains the queue in order, applying each update and then
// advancing the durable cursor.
func (c *Coordinator) applyLoop(w *watcher) {
	log := c.log.With().Str("address", w.addr.String()).Logger()
	var highest uint64

	for {
		u, err := w.queue.Pop(w.ctx)
		if err != nil {
			return
		}

		switch upd := u.(type) {
		case *ledger.ProgressUpdate:
			if upd.HighestSeq > highest {
				highest = upd.HighestSeq
			}
			// The stream is ordered: every transaction at or below
			// HighestSeq has already been applied, so the cursor may
			// jump ahead over gap-free quiet stretches.
			if err := c.cursors.Set(w.addr, highest); err != nil {
				c.setState(w.addr, Failed{Err: err, Fatal: true})
				return
			}
			c.setState(w.addr, Synced{Seq: highest, Balance: c.balances(w.addr)})

		case *ledger.TransactionUpdate:
			if err := c.manager.ApplyUpdate(upd); err != nil {
				c.setState(w.addr, Failed{Err: err, Fatal: true})
				log.Error().Err(err).Uint64("seq", upd.Seq).Msg("apply failed")
				return
			}
			if err := c.cursors.Set(w.addr, upd.Seq); err != nil {
				c.setState(w.addr, Failed{Err: err, Fatal: true})
				return
			}
			bal := c.balances(w.addr)
			if highest > 0 && upd.Seq >= highest {
				c.setState(w.addr, Synced{Seq: upd.Seq, Balance: bal})
			} else {
				c.setState(w.addr, Syncing{AppliedSeq: upd.Seq, HighestSeq: highest, Balance: bal})
			}

		default:
			c.setState(w.addr, Failed{Err: fmt.Errorf("syncer: unknown update %T", u), Fatal: true})
			return
		}
	}
}

// blockLoop feeds the shared block stream into the reorg detector and
// triggers rollbacks on shallow reorgs.
func (c *Coordinator) blockLoop() {
	attempts := 0
	delay := c.cfg.RetryBaseDelay

	for c.ctx.Err() == nil {
		stream, err := c.source.SubscribeBlocks(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if indexer.Classify(err) == indexer.ClassPermanent {
				c.fatalAll(fmt.Errorf("block stream: %w", err))
				return
			}
			attempts++
			if c.cfg.MaxRetries > 0 && attempts >= c.cfg.MaxRetries {
				c.fatalAll(fmt.Errorf("block stream retries exhausted: %w", err))
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("block stream failure, reconnecting")
			if !sleep(c.ctx, delay) {
				return
			}
			delay = nextDelay(delay, c.cfg.RetryMaxDelay)
			continue
		}
		attempts = 0
		delay = c.cfg.RetryBaseDelay

		for {
			b, err := stream.Next(c.ctx)
			if err != nil {
				stream.Close()
				if c.ctx.Err() != nil {
					return
				}
				if indexer.Classify(err) == indexer.ClassPermanent {
					c.fatalAll(fmt.Errorf("block stream: %w", err))
					return
				}
				break // reconnect
			}
			if !c.handleBlock(b) {
				stream.Close()
				return
			}
		}
	}
}

// handleBlock runs one digest through the detector. Returns false when
// sync must stop (deep reorg or lost ancestor).
func (c *Coordinator) handleBlock(b reorg.BlockDigest) bool {
	ev, err := c.detector.RecordBlock(b)
	if err != nil {
		c.fatalAll(err)
		return false
	}
	if ev == nil {
		return true
	}
	if ev.Deep {
		c.fatalAll(fmt.Errorf("deep reorg: depth %d past ancestor %d", ev.Depth, ev.CommonAncestorHeight))
		return false
	}

	deleted, revived, err := c.manager.RollbackAbove(ev.CommonAncestorHeight)
	if err != nil {
		c.fatalAll(fmt.Errorf("reorg rollback: %w", err))
		return false
	}
	c.log.Warn().
		Uint64("ancestor", ev.CommonAncestorHeight).
		Int("deleted", deleted).
		Int("revived", revived).
		Msg("rolled back after shallow reorg")
	return true
}
