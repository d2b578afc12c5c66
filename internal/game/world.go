package game

import (
	"fmt"
	"log"

	"shroomd.gg/internal/act"
)

// World commands.
type (
	// RegisterChannel attaches a channel actor to the world.
	RegisterChannel struct {
		ID      ChannelID
		Channel *Channel
	}
	// RemoveChannel detaches a channel.
	RemoveChannel struct {
		ID ChannelID
	}
	// WorldAction runs inside the world's tick.
	WorldAction struct {
		Run func(w *World, now act.Ticks)
	}
)

// World is the root topology actor. It owns the channel registry;
// membership changes only ever happen inside its own tick.
type World struct {
	act.Base
	id       WorldID
	log      *log.Logger
	channels map[ChannelID]*Channel
	deferred []WorldAction
}

func NewWorld(id WorldID, mailbox int, logger *log.Logger) *World {
	return &World{
		Base:     act.NewBase(fmt.Sprintf("world/%d", id), mailbox, act.DropOldest),
		id:       id,
		log:      logger,
		channels: make(map[ChannelID]*Channel),
	}
}

func (w *World) ID() WorldID { return w.id }

// Channel looks up a registered channel. Tick-goroutine only.
func (w *World) Channel(id ChannelID) (*Channel, bool) {
	ch, ok := w.channels[id]
	return ch, ok
}

// ChannelCount is the number of registered channels. Tick-goroutine
// only.
func (w *World) ChannelCount() int { return len(w.channels) }

func (w *World) OnTick(now act.Ticks) {
	w.Drain(func(m act.Message) { w.onMessage(m, now) })
	w.onTickCore(now)
}

func (w *World) OnTickEnd(now act.Ticks) {}

func (w *World) onMessage(m act.Message, now act.Ticks) {
	switch cmd := m.(type) {
	case RegisterChannel:
		w.channels[cmd.ID] = cmd.Channel
	case RemoveChannel:
		delete(w.channels, cmd.ID)
	case WorldAction:
		w.deferred = append(w.deferred, cmd)
	default:
		w.log.Printf("world %d: dropping unknown command %T", w.id, m)
	}
}

func (w *World) onTickCore(now act.Ticks) {
	if len(w.deferred) == 0 {
		return
	}
	actions := w.deferred
	w.deferred = w.deferred[:0]
	for _, a := range actions {
		a.Run(w, now)
	}
}
