package act

import (
	"context"
	"sync"
)

// Notifier fans a published tick out to every waiter. All waiters
// registered before a Publish observe the same tick.
type Notifier struct {
	mu      sync.Mutex
	waiters map[chan Ticks]struct{}
	last    Ticks
}

func NewNotifier() *Notifier {
	return &Notifier{waiters: make(map[chan Ticks]struct{})}
}

// Publish records t as the most recent tick and resolves every
// current waiter with it.
func (n *Notifier) Publish(t Ticks) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = t
	for ch := range n.waiters {
		ch <- t
		delete(n.waiters, ch)
	}
}

// LastTick is the most recently published tick, zero before the
// first publish.
func (n *Notifier) LastTick() Ticks {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// WaitNext blocks until the next Publish and returns its tick, or the
// context error on cancellation.
func (n *Notifier) WaitNext(ctx context.Context) (Ticks, error) {
	ch := make(chan Ticks, 1)
	n.mu.Lock()
	n.waiters[ch] = struct{}{}
	n.mu.Unlock()

	select {
	case t := <-ch:
		return t, nil
	case <-ctx.Done():
		n.mu.Lock()
		delete(n.waiters, ch)
		n.mu.Unlock()
		// Publish may have raced the cancellation.
		select {
		case t := <-ch:
			return t, nil
		default:
		}
		return 0, ctx.Err()
	}
}
