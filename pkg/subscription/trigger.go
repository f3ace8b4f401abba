package subscription

import (
	"sync"

	"github.com/ngas-archive/ngas/pkg/log"
)

// Entry identifies one newly archived file awaiting subscriber delivery.
type Entry struct {
	FileID      string
	FileVersion int
}

// Trigger queues newly archived files and wakes the subscription worker.
// The worker itself, which delivers to downstream subscribers, lives
// outside the archive core; this side only enqueues and signals.
type Trigger struct {
	mu      sync.Mutex
	pending []Entry
	wakeCh  chan struct{}
}

// NewTrigger creates an empty trigger.
func NewTrigger() *Trigger {
	return &Trigger{
		wakeCh: make(chan struct{}, 1),
	}
}

// Enqueue adds entries to the pending queue and wakes the worker. The wake
// is level-triggered: many enqueues before the worker drains collapse into
// one signal.
func (t *Trigger) Enqueue(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	t.mu.Lock()
	t.pending = append(t.pending, entries...)
	n := len(t.pending)
	t.mu.Unlock()

	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
	log.WithComponent("subscription").Debug().
		Int("pending", n).
		Msg("subscription worker triggered")
}

// Wake returns the channel the worker blocks on.
func (t *Trigger) Wake() <-chan struct{} {
	return t.wakeCh
}

// Drain removes and returns all pending entries.
func (t *Trigger) Drain() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.pending
	t.pending = nil
	return entries
}

// Pending returns the number of queued entries.
func (t *Trigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
