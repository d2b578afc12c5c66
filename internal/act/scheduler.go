package act

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDuplicateActor = errors.New("act: actor name already registered")

// TickInfo summarises one completed tick for observers.
type TickInfo struct {
	Tick     Ticks
	Duration time.Duration
	Actors   int
}

// Scheduler drives registered actors on a fixed interval. Each tick
// runs two phases over a snapshot of the actor list: OnTick for every
// actor in registration order, then OnTickEnd in the same order. A
// panicking hook is logged with the actor name and tick and never
// stops the loop.
type Scheduler struct {
	clock    *Clock
	interval time.Duration
	log      *log.Logger

	mu     sync.Mutex
	actors []Actor
	names  map[string]struct{}

	notifier *Notifier
	observe  func(TickInfo)

	lastTick     atomic.Uint64
	lastDuration atomic.Int64
}

// NewScheduler needs a started clock and a positive tick interval.
func NewScheduler(clock *Clock, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("act: tick interval must be positive, got %v", interval)
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		log:      logger,
		names:    make(map[string]struct{}),
		notifier: NewNotifier(),
	}, nil
}

// Notifier exposes the tick fan-out fed at the end of every tick.
func (s *Scheduler) Notifier() *Notifier { return s.notifier }

// Interval is the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// OnTickDone installs an observer called after each tick with its
// timing. Install before Run; the callback runs on the tick goroutine
// and must not block.
func (s *Scheduler) OnTickDone(fn func(TickInfo)) { s.observe = fn }

// Subscription undoes one actor registration.
type Subscription struct {
	once sync.Once
	s    *Scheduler
	a    Actor
}

// Unregister removes the actor; the current tick still sees the old
// snapshot.
func (sub *Subscription) Unregister() {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		defer sub.s.mu.Unlock()
		for i, a := range sub.s.actors {
			if a == sub.a {
				sub.s.actors = append(sub.s.actors[:i], sub.s.actors[i+1:]...)
				break
			}
		}
		delete(sub.s.names, sub.a.Name())
	})
}

// Register adds an actor to the tick order. Names are unique; a second
// registration under the same name fails.
func (s *Scheduler) Register(a Actor) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.names[a.Name()]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActor, a.Name())
	}
	s.names[a.Name()] = struct{}{}
	s.actors = append(s.actors, a)
	return &Subscription{s: s, a: a}, nil
}

func (s *Scheduler) snapshot(buf []Actor) []Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(buf[:0], s.actors...)
}

// Stats reports the most recent tick and its duration.
func (s *Scheduler) Stats() TickInfo {
	return TickInfo{
		Tick:     Ticks(s.lastTick.Load()),
		Duration: time.Duration(s.lastDuration.Load()),
	}
}

func (s *Scheduler) invoke(phase string, a Actor, now Ticks, fn func(Ticks)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("actor %s: %s at tick %d panicked: %v\n%s", a.Name(), phase, now, r, debug.Stack())
		}
	}()
	fn(now)
}

// Run loops until the context is cancelled, finishing the tick in
// flight before returning. A tick that overruns its interval is
// followed immediately by the next; ticks are never skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	var snap []Actor
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	target := s.clock.Now().Add(TicksFromDuration(s.interval))
	for {
		wait := target.Duration() - s.clock.Now().Duration()
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		now := target

		snap = s.snapshot(snap)
		for _, a := range snap {
			s.invoke("OnTick", a, now, a.OnTick)
		}
		for _, a := range snap {
			s.invoke("OnTickEnd", a, now, a.OnTickEnd)
		}

		s.notifier.Publish(now)

		elapsed := time.Since(started)
		s.lastTick.Store(uint64(now))
		s.lastDuration.Store(int64(elapsed))
		if s.observe != nil {
			s.observe(TickInfo{Tick: now, Duration: elapsed, Actors: len(snap)})
		}

		target = target.Add(TicksFromDuration(s.interval))
	}
}
