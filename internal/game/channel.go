package game

import (
	"fmt"
	"log"

	"shroomd.gg/internal/act"
)

// Channel commands.
type (
	RegisterRoom struct {
		ID   RoomID
		Room *Room
	}
	RemoveRoom struct {
		ID RoomID
	}
	ChannelAction struct {
		Run func(ch *Channel, now act.Ticks)
	}
)

// Channel is the mid-level topology actor. Each channel belongs to
// exactly one world and owns its room registry.
type Channel struct {
	act.Base
	id       ChannelID
	world    WorldID
	log      *log.Logger
	rooms    map[RoomID]*Room
	deferred []ChannelAction
}

func NewChannel(world WorldID, id ChannelID, mailbox int, logger *log.Logger) *Channel {
	return &Channel{
		Base:  act.NewBase(fmt.Sprintf("world/%d/channel/%d", world, id), mailbox, act.DropOldest),
		id:    id,
		world: world,
		log:   logger,
		rooms: make(map[RoomID]*Room),
	}
}

func (c *Channel) ID() ChannelID { return c.id }

// Room looks up a registered room. Tick-goroutine only.
func (c *Channel) Room(id RoomID) (*Room, bool) {
	r, ok := c.rooms[id]
	return r, ok
}

// RoomCount is the number of registered rooms. Tick-goroutine only.
func (c *Channel) RoomCount() int { return len(c.rooms) }

func (c *Channel) OnTick(now act.Ticks) {
	c.Drain(func(m act.Message) { c.onMessage(m, now) })
	c.onTickCore(now)
}

func (c *Channel) OnTickEnd(now act.Ticks) {}

func (c *Channel) onMessage(m act.Message, now act.Ticks) {
	switch cmd := m.(type) {
	case RegisterRoom:
		c.rooms[cmd.ID] = cmd.Room
	case RemoveRoom:
		delete(c.rooms, cmd.ID)
	case ChannelAction:
		c.deferred = append(c.deferred, cmd)
	default:
		c.log.Printf("channel %d: dropping unknown command %T", c.id, m)
	}
}

func (c *Channel) onTickCore(now act.Ticks) {
	if len(c.deferred) == 0 {
		return
	}
	actions := c.deferred
	c.deferred = c.deferred[:0]
	for _, a := range actions {
		a.Run(c, now)
	}
}
