package session

import (
	"fmt"
	"log"

	"shroomd.gg/internal/act"
	"shroomd.gg/internal/game"
	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/store"
)

// slowStrikeLimit is how many consecutive slow ticks a session gets
// before the player schedules its own removal.
const slowStrikeLimit = 3

// Player is the gameplay logic behind one migrated session. Real
// gameplay handlers hang off HandlePacket; this implementation covers
// the channel baseline: keepalive, echo, and slow-consumer shedding.
type Player struct {
	log       *log.Logger
	sessionID uint32
	room      *game.Room
	char      store.Character

	session     *game.Session
	slowStrikes int
	slowTick    bool
	packetsIn   uint64
	packetsOut  uint64
}

func NewPlayer(sessionID uint32, room *game.Room, char store.Character, logger *log.Logger) *Player {
	return &Player{log: logger, sessionID: sessionID, room: room, char: char}
}

// Bind attaches the owning session. Must happen before the session
// joins its room.
func (p *Player) Bind(s *game.Session) { p.session = s }

// Character is the loaded character this player entered with.
func (p *Player) Character() store.Character { return p.char }

func (p *Player) HandlePacket(r *protocol.Reader, now act.Ticks) error {
	p.packetsIn++
	op, err := r.ReadOpcode()
	if err != nil {
		return err
	}
	switch op {
	case protocol.OpPing:
		return p.reply(protocol.NewWriter(protocol.OpPong))
	case protocol.OpEcho:
		w := protocol.NewWriter(protocol.OpEcho)
		rest, err := r.ReadBytes(r.Remaining())
		if err != nil {
			return err
		}
		w.WriteBytes(rest)
		return p.reply(w)
	default:
		p.log.Printf("session %d: unhandled opcode %v", p.sessionID, op)
		return nil
	}
}

func (p *Player) reply(w *protocol.Writer) error {
	pkt, err := w.Packet()
	if err != nil {
		return fmt.Errorf("session %d: build reply: %w", p.sessionID, err)
	}
	p.session.TrySend(pkt)
	return nil
}

func (p *Player) OnTick(now act.Ticks) {}

func (p *Player) OnTickEnd(now act.Ticks) {
	// A clean tick forgives earlier strikes.
	if !p.slowTick {
		p.slowStrikes = 0
	}
	p.slowTick = false
}

// OnSlowConsumer sheds the session after repeated full-queue ticks
// rather than letting it pin pooled buffers forever.
func (p *Player) OnSlowConsumer(now act.Ticks) {
	p.slowTick = true
	p.slowStrikes++
	if p.slowStrikes < slowStrikeLimit {
		return
	}
	p.log.Printf("session %d: slow consumer for %d ticks, removing", p.sessionID, p.slowStrikes)
	p.room.TryPost(game.RemoveSession{ID: p.sessionID})
}

func (p *Player) OnSendSucceeded() { p.packetsOut++ }

func (p *Player) OnClose() {
	p.log.Printf("session %d: closed (in=%d out=%d)", p.sessionID, p.packetsIn, p.packetsOut)
}
