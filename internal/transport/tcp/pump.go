package tcp

import (
	"context"
	"errors"
	"log"
	"sync"

	"shroomd.gg/internal/protocol"
)

// ErrPumpClosed reports a send into a pump that has shut down.
var ErrPumpClosed = errors.New("tcp: pump closed")

// Default channel bounds. The inbound bound is the per-tick budget a
// session can drain; a full inbound channel blocks the receive loop,
// which surfaces as TCP backpressure to the peer. A full outbound
// channel is the slow-consumer signal.
const (
	DefaultInboundSize  = 64
	DefaultOutboundSize = 64
)

// Pump runs a framed connection's two loops and exposes them as
// bounded channels. Inbound: receive loop produces, session logic
// consumes. Outbound: session produces, send loop consumes and
// disposes after each write.
type Pump struct {
	conn *Conn
	log  *log.Logger

	in  chan *protocol.Packet
	out chan *protocol.Packet

	cancel  context.CancelFunc
	done    chan struct{}
	errOnce sync.Once
	err     error
}

// NewPump wraps a framed connection. Non-positive sizes select the
// defaults.
func NewPump(conn *Conn, inSize, outSize int, logger *log.Logger) *Pump {
	if inSize <= 0 {
		inSize = DefaultInboundSize
	}
	if outSize <= 0 {
		outSize = DefaultOutboundSize
	}
	return &Pump{
		conn: conn,
		log:  logger,
		in:   make(chan *protocol.Packet, inSize),
		out:  make(chan *protocol.Packet, outSize),
		done: make(chan struct{}),
	}
}

func (p *Pump) setErr(err error) {
	p.errOnce.Do(func() { p.err = err })
}

// Start launches both loops. Cancelling ctx (or Close) tears the
// connection down; Done resolves once both loops have exited.
func (p *Pump) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	// Closing the raw stream is what unblocks the loops.
	go func() {
		<-ctx.Done()
		_ = p.conn.Close()
	}()

	// Either loop exiting takes the other one down with it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		p.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		p.writeLoop(ctx)
	}()
	go func() {
		wg.Wait()
		cancel()
		// Dispose whatever never reached the wire.
		for {
			select {
			case q := <-p.out:
				q.Dispose()
			default:
				close(p.done)
				return
			}
		}
	}()
}

func (p *Pump) readLoop(ctx context.Context) {
	defer close(p.in)
	for {
		pkt, err := p.conn.ReadPacket()
		if err != nil {
			p.setErr(err)
			return
		}
		select {
		case p.in <- pkt:
		case <-ctx.Done():
			pkt.Dispose()
			p.setErr(ctx.Err())
			return
		}
	}
}

func (p *Pump) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.setErr(ctx.Err())
			return
		case pkt := <-p.out:
			err := p.conn.WritePacket(pkt)
			pkt.Dispose()
			if err != nil {
				p.setErr(err)
				return
			}
		}
	}
}

// Inbound is the receive channel. It closes when the receive loop
// exits; packets read from it are owned by the consumer.
func (p *Pump) Inbound() <-chan *protocol.Packet { return p.in }

// TrySend queues a packet without blocking. On success the pump owns
// the packet; on failure (queue full or pump closed) the caller keeps
// ownership — a full queue is the slow-consumer signal.
func (p *Pump) TrySend(pkt *protocol.Packet) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- pkt:
		return true
	default:
		return false
	}
}

// Send queues a packet, blocking until there is room. On error the
// packet is disposed here so the caller never leaks it.
func (p *Pump) Send(ctx context.Context, pkt *protocol.Packet) error {
	select {
	case p.out <- pkt:
		return nil
	case <-p.done:
		pkt.Dispose()
		return ErrPumpClosed
	case <-ctx.Done():
		pkt.Dispose()
		return ctx.Err()
	}
}

// Done resolves when both loops have exited and queued outbound
// packets are disposed.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Err is the first failure observed by either loop; cancellation
// surfaces as the context error.
func (p *Pump) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Close cancels both loops and disposes the framed connection.
func (p *Pump) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}
