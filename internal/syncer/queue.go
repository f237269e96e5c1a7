package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/umbra-network/umbra-wallet/internal/ledger"
)

// errQueueClosed is returned by Pop after Close.
var errQueueClosed = errors.New("syncer: queue closed")

// queue is an unbounded FIFO of stream updates. The receive loop must
// never block on a slow apply loop (backpressure on the websocket
// would stall the server's feed), so the buffer grows as needed.
type queue struct {
	mu     sync.Mutex
	items  []ledger.Update
	wake   chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

// Push appends an update. Push never blocks.
func (q *queue) Push(u ledger.Update) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the oldest update, blocking until one is available, the
// context is done, or the queue is closed.
func (q *queue) Pop(ctx context.Context) (ledger.Update, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return u, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, errQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of buffered updates.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes any blocked Pop. Buffered items remain poppable.
func (q *queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
