package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/umbra-network/umbra-wallet/internal/ledger"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	for i := uint64(1); i <= 3; i++ {
		q.Push(&ledger.ProgressUpdate{HighestSeq: i})
	}
	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}
	for i := uint64(1); i <= 3; i++ {
		u, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if u.Sequence() != i {
			t.Errorf("popped seq %d, want %d", u.Sequence(), i)
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	done := make(chan ledger.Update, 1)
	go func() {
		u, err := q.Pop(context.Background())
		if err != nil {
			t.Errorf("Pop: %v", err)
		}
		done <- u
	}()

	time.Sleep(5 * time.Millisecond)
	q.Push(&ledger.ProgressUpdate{HighestSeq: 9})

	select {
	case u := <-done:
		if u.Sequence() != 9 {
			t.Errorf("seq = %d, want 9", u.Sequence())
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestQueuePopRespectsContext(t *testing.T) {
	q := newQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	q := newQueue()
	q.Push(&ledger.ProgressUpdate{HighestSeq: 1})
	q.Close()

	// Buffered item still pops.
	if _, err := q.Pop(context.Background()); err != nil {
		t.Fatalf("Pop after close: %v", err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, errQueueClosed) {
		t.Errorf("err = %v, want errQueueClosed", err)
	}
}
