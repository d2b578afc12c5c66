package game

import (
	"fmt"
	"log"

	"shroomd.gg/internal/act"
)

// RoomSession is what a room drives each tick. *Session is the
// production implementation; tests substitute their own.
type RoomSession interface {
	ID() uint32
	Tick(now act.Ticks)
	TickEnd(now act.Ticks)
	Close()
}

// Room commands.
type (
	AddSession struct {
		Session RoomSession
	}
	RemoveSession struct {
		ID uint32
	}
	RoomAction struct {
		Run func(r *Room, now act.Ticks)
	}
)

// Room is the leaf topology actor: an ordered set of sessions driven
// through the two tick phases. Membership changes arrive as commands
// and are applied during the drain, so session state is only ever
// touched from the room's tick.
type Room struct {
	act.Base
	id       RoomID
	channel  ChannelID
	log      *log.Logger
	sessions []RoomSession
	byID     map[uint32]RoomSession
}

func NewRoom(channel ChannelID, id RoomID, mailbox int, logger *log.Logger) *Room {
	return &Room{
		Base:    act.NewBase(fmt.Sprintf("channel/%d/room/%d:%d", channel, id.Instance, id.Map), mailbox, act.DropOldest),
		id:      id,
		channel: channel,
		log:     logger,
		byID:    make(map[uint32]RoomSession),
	}
}

func (r *Room) RoomID() RoomID { return r.id }

// SessionCount is the number of registered sessions. Tick-goroutine
// only.
func (r *Room) SessionCount() int { return len(r.sessions) }

func (r *Room) OnTick(now act.Ticks) {
	r.Drain(func(m act.Message) { r.onMessage(m, now) })
	for _, s := range r.sessions {
		s.Tick(now)
	}
}

func (r *Room) OnTickEnd(now act.Ticks) {
	for _, s := range r.sessions {
		s.TickEnd(now)
	}
}

func (r *Room) onMessage(m act.Message, now act.Ticks) {
	switch cmd := m.(type) {
	case AddSession:
		id := cmd.Session.ID()
		if _, dup := r.byID[id]; dup {
			return
		}
		r.byID[id] = cmd.Session
		r.sessions = append(r.sessions, cmd.Session)
	case RemoveSession:
		s, ok := r.byID[cmd.ID]
		if !ok {
			return
		}
		delete(r.byID, cmd.ID)
		for i, cur := range r.sessions {
			if cur == s {
				r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
				break
			}
		}
		s.Close()
	case RoomAction:
		cmd.Run(r, now)
	default:
		r.log.Printf("room %d:%d: dropping unknown command %T", r.id.Instance, r.id.Map, m)
	}
}
