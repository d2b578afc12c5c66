package game

import (
	"context"
	"log"

	"shroomd.gg/internal/act"
)

// TimedAction is a unit of deferred room work.
type TimedAction func(r *Room, now act.Ticks)

// RoomTimer is the timing substrate of one room: a delay queue keyed
// by absolute tick, drained on every published tick and translated
// into RoomAction commands.
type RoomTimer struct {
	room     *Room
	notifier *act.Notifier
	queue    *act.DelayQueue[TimedAction]
	log      *log.Logger
}

func NewRoomTimer(room *Room, notifier *act.Notifier, logger *log.Logger) *RoomTimer {
	return &RoomTimer{
		room:     room,
		notifier: notifier,
		queue:    act.NewDelayQueue[TimedAction](),
		log:      logger,
	}
}

// ScheduleAt queues the action for due. It is posted to the room once
// the first tick at or after due has published, so it runs in the
// drain phase of a later tick.
func (t *RoomTimer) ScheduleAt(due act.Ticks, action TimedAction) {
	t.queue.Enqueue(due, action)
}

// ScheduleAfterMilliseconds runs the action once the given delay has
// passed, measured from the most recently published tick.
func (t *RoomTimer) ScheduleAfterMilliseconds(delayMs uint64, action TimedAction) {
	t.queue.Enqueue(t.notifier.LastTick().AddMillis(delayMs), action)
}

// Pending is the number of scheduled actions not yet dispatched.
func (t *RoomTimer) Pending() int { return t.queue.Len() }

// Run forwards due actions to the room until the context is
// cancelled. Posts try the fast path first and fall back to blocking
// so a burst of due actions cannot be silently lost.
func (t *RoomTimer) Run(ctx context.Context) error {
	for {
		now, err := t.notifier.WaitNext(ctx)
		if err != nil {
			return err
		}
		for _, action := range t.queue.DrainDue(now) {
			cmd := RoomAction{Run: action}
			if t.room.TryPost(cmd) {
				continue
			}
			if err := t.room.Post(ctx, cmd); err != nil {
				return err
			}
		}
	}
}
