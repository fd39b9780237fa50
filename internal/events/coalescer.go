package events

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"vrdl/internal/queue"
)

// DefaultWindow is the coalescing window used when none is configured.
const DefaultWindow = 250 * time.Millisecond

// Coalescer collapses bursts of queue change signals into at most one
// queue-changed event per window. The snapshot is taken when the event is
// emitted, so the last event of a burst always reflects the final state.
type Coalescer struct {
	hub      *Hub
	snapshot func() []queue.Item
	limiter  *rate.Limiter
	pending  chan struct{}
}

// NewCoalescer builds a coalescer publishing snapshot() to hub.
func NewCoalescer(hub *Hub, snapshot func() []queue.Item, window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		hub:      hub,
		snapshot: snapshot,
		limiter:  rate.NewLimiter(rate.Every(window), 1),
		pending:  make(chan struct{}, 1),
	}
}

// Notify records that the queue changed. It never blocks.
func (c *Coalescer) Notify() {
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Run emits coalesced events until ctx is done. Signals still pending at
// shutdown are flushed once.
func (c *Coalescer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			select {
			case <-c.pending:
				c.emit()
			default:
			}
			return
		case <-c.pending:
		}
		if err := c.limiter.Wait(ctx); err != nil {
			c.emit()
			return
		}
		// Signals raised while waiting are covered by this snapshot.
		select {
		case <-c.pending:
		default:
		}
		c.emit()
	}
}

func (c *Coalescer) emit() {
	c.hub.Publish(Event{Kind: KindQueueChanged, Queue: c.snapshot()})
}
