package game

import (
	"context"

	"shroomd.gg/internal/act"
	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/transport/tcp"
)

// PlayerLogic is the gameplay side of a session. Its hooks run only
// from the owning room's tick, never concurrently.
type PlayerLogic interface {
	// HandlePacket consumes one inbound packet. The reader's backing
	// packet is disposed by the session after the call returns.
	HandlePacket(r *protocol.Reader, now act.Ticks) error
	OnTick(now act.Ticks)
	OnTickEnd(now act.Ticks)
	// OnSlowConsumer fires at tick end when a TrySend was refused
	// during the tick.
	OnSlowConsumer(now act.Ticks)
	OnSendSucceeded()
	// OnClose fires once when the session leaves its room.
	OnClose()
}

// Session binds a connection pump to its gameplay logic. It is owned
// by exactly one room after registration; all methods except the send
// paths run on the tick goroutine.
type Session struct {
	id    uint32
	pump  *tcp.Pump
	logic PlayerLogic
	slow  bool
}

func NewSession(id uint32, pump *tcp.Pump, logic PlayerLogic) *Session {
	return &Session{id: id, pump: pump, logic: logic}
}

func (s *Session) ID() uint32 { return s.id }

// Pump exposes the underlying connection pump.
func (s *Session) Pump() *tcp.Pump { return s.pump }

// Tick drains the inbound queue through the logic, then runs the
// logic's own tick. Each packet is disposed here regardless of
// handler outcome, and inbound wire order is preserved.
func (s *Session) Tick(now act.Ticks) {
	for {
		select {
		case p, ok := <-s.pump.Inbound():
			if !ok {
				s.logic.OnTick(now)
				return
			}
			err := s.logic.HandlePacket(protocol.NewReader(p), now)
			p.Dispose()
			if err != nil {
				// A decode error poisons the whole frame stream.
				s.pump.Close()
			}
		default:
			s.logic.OnTick(now)
			return
		}
	}
}

// TickEnd resolves the slow-consumer flag, then runs the logic's tick
// end.
func (s *Session) TickEnd(now act.Ticks) {
	if s.slow {
		s.slow = false
		s.logic.OnSlowConsumer(now)
	}
	s.logic.OnTickEnd(now)
}

// TrySend queues a packet without blocking. A full queue marks the
// session slow and disposes the packet; the logic decides at tick end
// how to react.
func (s *Session) TrySend(p *protocol.Packet) bool {
	if s.pump.TrySend(p) {
		s.logic.OnSendSucceeded()
		return true
	}
	s.slow = true
	p.Dispose()
	return false
}

// SendAsync queues a packet, blocking until there is room.
func (s *Session) SendAsync(ctx context.Context, p *protocol.Packet) error {
	if err := s.pump.Send(ctx, p); err != nil {
		return err
	}
	s.logic.OnSendSucceeded()
	return nil
}

// Close tears the pump down and notifies the logic. Called by the
// room on removal.
func (s *Session) Close() {
	s.pump.Close()
	s.logic.OnClose()
}
