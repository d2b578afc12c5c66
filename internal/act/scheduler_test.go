package act

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"
)

type probeActor struct {
	Base
	mu     sync.Mutex
	events []string
	ticks  int
	done   chan struct{}
	panics bool
}

func newProbeActor(name string) *probeActor {
	return &probeActor{
		Base: NewBase(name, 16, DropOldest),
		done: make(chan struct{}),
	}
}

func (p *probeActor) record(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *probeActor) OnTick(now Ticks) {
	if p.panics {
		panic("boom")
	}
	p.Drain(func(m Message) { p.record("message:" + m.(string)) })
	p.record("tick")
}

func (p *probeActor) OnTickEnd(now Ticks) {
	p.record("end")
	p.mu.Lock()
	p.ticks++
	n := p.ticks
	p.mu.Unlock()
	if n == 1 {
		close(p.done)
	}
}

func (p *probeActor) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func TestScheduler_MessageBeforeTickBeforeEnd(t *testing.T) {
	s, err := NewScheduler(NewClock(), 5*time.Millisecond, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	probe := newProbeActor("probe")
	if _, err := s.Register(probe); err != nil {
		t.Fatal(err)
	}
	probe.TryPost("hello")

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()
	<-probe.done
	cancel()
	<-stopped

	got := probe.snapshot()
	if len(got) < 3 {
		t.Fatalf("events: %v", got)
	}
	first3 := got[:3]
	if first3[0] != "message:hello" || first3[1] != "tick" || first3[2] != "end" {
		t.Fatalf("ordering: %v", first3)
	}
	// The message never reappears on a later tick.
	for _, ev := range got[3:] {
		if ev == "message:hello" {
			t.Fatalf("message delivered twice: %v", got)
		}
	}
}

func TestScheduler_PanicIsolatedToActor(t *testing.T) {
	s, err := NewScheduler(NewClock(), 5*time.Millisecond, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	bad := newProbeActor("bad")
	bad.panics = true
	good := newProbeActor("good")
	if _, err := s.Register(bad); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(good); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()
	<-good.done
	cancel()
	<-stopped

	if len(good.snapshot()) == 0 {
		t.Fatal("healthy actor starved by panicking peer")
	}
}

func TestScheduler_DuplicateNameRejected(t *testing.T) {
	s, err := NewScheduler(NewClock(), time.Millisecond, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	a := newProbeActor("dup")
	b := newProbeActor("dup")
	sub, err := s.Register(a)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(b); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	sub.Unregister()
	if _, err := s.Register(b); err != nil {
		t.Fatalf("re-register after unregister: %v", err)
	}
}

func TestScheduler_NotifierPublishes(t *testing.T) {
	s, err := NewScheduler(NewClock(), 5*time.Millisecond, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	tick, err := s.Notifier().WaitNext(wctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	next, err := s.Notifier().WaitNext(wctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if next <= tick {
		t.Fatalf("ticks not increasing: %d then %d", tick, next)
	}
}

func TestScheduler_RejectsBadInterval(t *testing.T) {
	if _, err := NewScheduler(NewClock(), 0, testLogger()); err == nil {
		t.Fatal("zero interval accepted")
	}
}
