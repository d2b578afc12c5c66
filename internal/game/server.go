package game

import (
	"context"
	"log"
	"sync"

	"shroomd.gg/internal/act"
)

// RoomServer composes the tick scheduler with topology creation. Each
// create call registers the new actor with the scheduler, announces it
// to its parent, and returns a dispose func that undoes both — remove
// command to the parent first, then the scheduler subscription.
type RoomServer struct {
	sched *act.Scheduler
	log   *log.Logger

	mu     sync.Mutex
	timers []timerEntry
}

type timerEntry struct {
	timer  *RoomTimer
	cancel context.CancelFunc
}

func NewRoomServer(sched *act.Scheduler, logger *log.Logger) *RoomServer {
	return &RoomServer{sched: sched, log: logger}
}

// Scheduler exposes the underlying tick scheduler.
func (s *RoomServer) Scheduler() *act.Scheduler { return s.sched }

// CreateWorld registers a world actor.
func (s *RoomServer) CreateWorld(id WorldID, mailbox int) (*World, func(), error) {
	w := NewWorld(id, mailbox, s.log)
	sub, err := s.sched.Register(w)
	if err != nil {
		return nil, nil, err
	}
	dispose := func() { sub.Unregister() }
	return w, dispose, nil
}

// CreateChannel registers a channel actor under a world.
func (s *RoomServer) CreateChannel(w *World, id ChannelID, mailbox int) (*Channel, func(), error) {
	ch := NewChannel(w.ID(), id, mailbox, s.log)
	sub, err := s.sched.Register(ch)
	if err != nil {
		return nil, nil, err
	}
	w.TryPost(RegisterChannel{ID: id, Channel: ch})
	dispose := func() {
		w.TryPost(RemoveChannel{ID: id})
		sub.Unregister()
	}
	return ch, dispose, nil
}

// CreateRoom registers a room actor under a channel and starts its
// timer loop on the scheduler's tick notifier.
func (s *RoomServer) CreateRoom(ctx context.Context, ch *Channel, id RoomID, mailbox int) (*Room, *RoomTimer, func(), error) {
	r := NewRoom(ch.ID(), id, mailbox, s.log)
	sub, err := s.sched.Register(r)
	if err != nil {
		return nil, nil, nil, err
	}
	ch.TryPost(RegisterRoom{ID: id, Room: r})

	timer := NewRoomTimer(r, s.sched.Notifier(), s.log)
	tctx, tcancel := context.WithCancel(ctx)
	go func() {
		if err := timer.Run(tctx); err != nil && tctx.Err() == nil {
			s.log.Printf("room %d:%d timer: %v", id.Instance, id.Map, err)
		}
	}()
	s.mu.Lock()
	s.timers = append(s.timers, timerEntry{timer: timer, cancel: tcancel})
	s.mu.Unlock()

	dispose := func() {
		tcancel()
		ch.TryPost(RemoveRoom{ID: id})
		sub.Unregister()
	}
	return r, timer, dispose, nil
}

// Close stops every room timer loop.
func (s *RoomServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.timers {
		e.cancel()
	}
	s.timers = nil
}
