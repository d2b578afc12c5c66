package act

import "context"

// Actor is an entity driven by the scheduler. Hooks run on the tick
// goroutine only, so actor state needs no locking; cross-actor
// communication goes through mailboxes.
type Actor interface {
	Name() string
	OnTick(now Ticks)
	OnTickEnd(now Ticks)
}

// DefaultMailboxSize is the per-actor queue bound used when a caller
// does not pick one.
const DefaultMailboxSize = 256

// Base carries the name and mailbox shared by every actor
// implementation. Embedders drain the mailbox at the top of OnTick and
// then run their per-tick work.
type Base struct {
	name  string
	inbox *Mailbox
}

// NewBase names an actor and sizes its mailbox. capacity <= 0 selects
// DefaultMailboxSize.
func NewBase(name string, capacity int, policy OverflowPolicy) Base {
	if capacity <= 0 {
		capacity = DefaultMailboxSize
	}
	return Base{name: name, inbox: NewMailbox(capacity, policy)}
}

func (b *Base) Name() string { return b.name }

// TryPost delivers a message to this actor without blocking.
func (b *Base) TryPost(msg Message) bool { return b.inbox.TryPost(msg) }

// Post delivers a message, honoring the mailbox policy.
func (b *Base) Post(ctx context.Context, msg Message) error {
	return b.inbox.Post(ctx, msg)
}

// Drain dispatches every pending message in arrival order.
func (b *Base) Drain(fn func(Message)) { b.inbox.Drain(fn) }

// MailboxDrops counts messages lost to overflow.
func (b *Base) MailboxDrops() uint64 { return b.inbox.Drops() }
