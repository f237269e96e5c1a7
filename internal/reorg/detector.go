// Package reorg detects chain reorganizations from the remote block
// stream. The detector keeps a bounded window of recent block digests
// and classifies each incoming block as a normal extension, a shallow
// reorg (recoverable by rolling back the discarded branch), or a deep
// reorg past the finality threshold (a fatal anomaly).
//
// The detector only signals: rolling back ledger records on the
// discarded branch is the subscriber's job (syncer → manager).
package reorg

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// ErrNoCommonAncestor is returned when the fork point of a reorg lies
// below the detector's history window. The local history is then
// insufficient to identify what to roll back; the only recovery is a
// full resync. This is a fatal condition, not a retryable error.
var ErrNoCommonAncestor = errors.New("reorg: no common ancestor within history window")

// BlockDigest is the summary of a block as reported by the indexer's
// block stream.
type BlockDigest struct {
	Height     uint64     `json:"height"`
	Hash       types.Hash `json:"hash"`
	ParentHash types.Hash `json:"parent_hash"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Event describes a detected reorganization.
type Event struct {
	// Deep marks a fork point beyond the finality threshold. Deep
	// reorgs violate the local finality assumption and are not
	// auto-recovered.
	Deep bool

	// Depth is incomingHeight − commonAncestorHeight.
	Depth uint64

	// CommonAncestorHeight is the height of the last block shared by
	// both branches.
	CommonAncestorHeight uint64

	// OldBranch lists the previously recorded blocks on the discarded
	// branch, ascending by height. Empty for deep reorgs (the caller
	// resyncs instead of rolling back).
	OldBranch []BlockDigest
}

// Detector maintains the bounded block window and the current tip.
// RecordBlock is safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	window map[uint64]BlockDigest
	tip    uint64
	hasTip bool

	historyDepth      uint64
	finalityThreshold uint64
	log               zerolog.Logger
}

// NewDetector creates a detector. historyDepth must exceed
// finalityThreshold so that the window can always find ancestors at
// least as deep as what is still considered non-final.
func NewDetector(historyDepth, finalityThreshold uint64, log zerolog.Logger) (*Detector, error) {
	if finalityThreshold == 0 {
		return nil, fmt.Errorf("reorg: finality threshold must be positive")
	}
	if historyDepth <= finalityThreshold {
		return nil, fmt.Errorf("reorg: history depth %d must exceed finality threshold %d",
			historyDepth, finalityThreshold)
	}
	return &Detector{
		window:            make(map[uint64]BlockDigest),
		historyDepth:      historyDepth,
		finalityThreshold: finalityThreshold,
		log:               log,
	}, nil
}

// Tip returns the current tip height and whether one is recorded.
func (d *Detector) Tip() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tip, d.hasTip
}

// Reset discards the window and tip. Used before a full resync.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = make(map[uint64]BlockDigest)
	d.tip = 0
	d.hasTip = false
}

// RecordBlock classifies an incoming block.
//
// Returns (nil, nil) for a normal extension or a bootstrap accept
// (nothing recorded at height−1). Returns a shallow-reorg Event after
// truncating the window above the common ancestor and inserting the
// new block. Returns a deep-reorg Event (window untouched) when the
// fork is deeper than the finality threshold. Returns
// ErrNoCommonAncestor when the fork point is below the window.
func (d *Detector) RecordBlock(b BlockDigest) (*Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	parent, ok := d.window[b.Height-1]
	if !ok || parent.Hash == b.ParentHash {
		// Bootstrap (unknown parent height) or normal extension.
		d.accept(b)
		return nil, nil
	}

	// The declared parent contradicts our record at height−1: a reorg.
	// Search the window backward from the tip for the fork point.
	ancestorHeight, found := d.findAncestor(b.ParentHash, b.Height)
	if !found {
		d.log.Error().
			Uint64("height", b.Height).
			Str("parent", b.ParentHash.Short()).
			Msg("reorg fork point below history window")
		return nil, ErrNoCommonAncestor
	}

	depth := b.Height - ancestorHeight
	if depth > d.finalityThreshold {
		d.log.Error().
			Uint64("depth", depth).
			Uint64("finality_threshold", d.finalityThreshold).
			Uint64("ancestor_height", ancestorHeight).
			Msg("deep reorg past finality threshold")
		return &Event{Deep: true, Depth: depth, CommonAncestorHeight: ancestorHeight}, nil
	}

	// Shallow reorg: collect the discarded branch, truncate, insert.
	var oldBranch []BlockDigest
	for h := ancestorHeight + 1; h < b.Height; h++ {
		if blk, ok := d.window[h]; ok {
			oldBranch = append(oldBranch, blk)
		}
	}
	for h := ancestorHeight + 1; h <= d.tip; h++ {
		delete(d.window, h)
	}
	d.accept(b)

	d.log.Warn().
		Uint64("depth", depth).
		Uint64("ancestor_height", ancestorHeight).
		Int("old_branch", len(oldBranch)).
		Msg("shallow reorg")

	return &Event{
		Depth:                depth,
		CommonAncestorHeight: ancestorHeight,
		OldBranch:            oldBranch,
	}, nil
}

// findAncestor scans from just below the incoming height down through
// the window for a recorded block matching the declared parent hash.
func (d *Detector) findAncestor(parentHash types.Hash, incomingHeight uint64) (uint64, bool) {
	if !d.hasTip {
		return 0, false
	}
	start := d.tip
	if incomingHeight-1 < start {
		start = incomingHeight - 1
	}
	low := uint64(0)
	if d.tip > d.historyDepth {
		low = d.tip - d.historyDepth
	}
	for h := start; ; h-- {
		if blk, ok := d.window[h]; ok && blk.Hash == parentHash {
			return h, true
		}
		if h == low || h == 0 {
			break
		}
	}
	return 0, false
}

// accept inserts the block, advances the tip, and prunes the window to
// the configured history depth. Callers hold the mutex.
func (d *Detector) accept(b BlockDigest) {
	d.window[b.Height] = b
	if !d.hasTip || b.Height > d.tip {
		d.tip = b.Height
	}
	d.hasTip = true

	if d.tip > d.historyDepth {
		floor := d.tip - d.historyDepth
		for h := range d.window {
			if h < floor {
				delete(d.window, h)
			}
		}
	}
}
