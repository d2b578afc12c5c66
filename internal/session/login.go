package session

import (
	"context"
	"log"
	"net"
	"sync/atomic"

	"shroomd.gg/internal/game"
	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/store"
	"shroomd.gg/internal/transport/tcp"
)

// Login result codes.
const (
	loginOK           uint8 = 0
	loginBadRequest   uint8 = 1
	loginStoreFailure uint8 = 2
)

// ChannelEndpoint is where a login client is sent after a successful
// login.
type ChannelEndpoint struct {
	ID   game.ChannelID
	Host string
	Port uint16
}

// LoginHandler drives connections on the login port: it resolves the
// account, ensures a character, issues a migration ticket, and points
// the client at a channel. Login connections never enter a room; the
// handler's own loop drains the pump directly.
type LoginHandler struct {
	log      *log.Logger
	mgr      *Manager
	hs       HandshakeConfig
	channels []ChannelEndpoint
	next     atomic.Uint32
}

func NewLoginHandler(mgr *Manager, hs HandshakeConfig, channels []ChannelEndpoint, logger *log.Logger) *LoginHandler {
	return &LoginHandler{log: logger, mgr: mgr, hs: hs, channels: channels}
}

// pickChannel round-robins clients across channels.
func (h *LoginHandler) pickChannel() ChannelEndpoint {
	n := h.next.Add(1)
	return h.channels[int(n-1)%len(h.channels)]
}

// Handle runs one accepted login connection to completion.
func (h *LoginHandler) Handle(ctx context.Context, raw net.Conn) {
	remote := raw.RemoteAddr()

	hs := h.hs.fresh()
	conn, err := tcp.ServerConn(raw, &hs)
	if err != nil {
		_ = raw.Close()
		h.log.Printf("login conn %v: handshake: %v", remote, err)
		return
	}

	pump := tcp.NewPump(conn, 0, 0, h.log)
	pump.Start(ctx)
	defer func() {
		pump.Close()
		<-pump.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-pump.Inbound():
			if !ok {
				return
			}
			err := h.handlePacket(ctx, pump, remote, p)
			p.Dispose()
			if err != nil {
				h.log.Printf("login conn %v: %v", remote, err)
				return
			}
		}
	}
}

func (h *LoginHandler) handlePacket(ctx context.Context, pump *tcp.Pump, remote net.Addr, p *protocol.Packet) error {
	r := protocol.NewReader(p)
	op, err := r.ReadOpcode()
	if err != nil {
		return err
	}
	switch op {
	case protocol.OpPing:
		return h.send(ctx, pump, protocol.NewWriter(protocol.OpPong))

	case protocol.OpEcho:
		rest, err := r.ReadBytes(r.Remaining())
		if err != nil {
			return err
		}
		w := protocol.NewWriter(protocol.OpEcho)
		w.WriteBytes(rest)
		return h.send(ctx, pump, w)

	case protocol.OpLoginRequest:
		username, err := r.ReadString()
		if err != nil {
			return err
		}
		if username == "" {
			return h.sendResult(ctx, pump, loginBadRequest, nil, ChannelEndpoint{})
		}
		account, err := h.mgr.GetOrCreateAccount(ctx, username)
		if err != nil {
			h.log.Printf("login %v: account %q: %v", remote, username, err)
			return h.sendResult(ctx, pump, loginStoreFailure, nil, ChannelEndpoint{})
		}
		return h.admit(ctx, pump, remote, account)

	case protocol.OpGuestLogin:
		account, err := h.mgr.CreateGuestAccount(ctx)
		if err != nil {
			h.log.Printf("login %v: guest account: %v", remote, err)
			return h.sendResult(ctx, pump, loginStoreFailure, nil, ChannelEndpoint{})
		}
		return h.admit(ctx, pump, remote, account)

	default:
		h.log.Printf("login %v: unhandled opcode %v", remote, op)
		return nil
	}
}

// admit finishes a successful login: default character, ticket,
// channel assignment.
func (h *LoginHandler) admit(ctx context.Context, pump *tcp.Pump, remote net.Addr, account store.Account) error {
	char, err := h.mgr.EnsureDefaultCharacter(ctx, account.ID)
	if err != nil {
		h.log.Printf("login %v: character for account %d: %v", remote, account.ID, err)
		return h.sendResult(ctx, pump, loginStoreFailure, nil, ChannelEndpoint{})
	}
	ticket, err := h.mgr.CreateTicket(account.ID, char.ID, remote)
	if err != nil {
		h.log.Printf("login %v: ticket: %v", remote, err)
		return h.sendResult(ctx, pump, loginStoreFailure, nil, ChannelEndpoint{})
	}
	ep := h.pickChannel()
	h.log.Printf("login %v: account %d -> character %d via channel %d", remote, account.ID, char.ID, ep.ID)
	return h.sendResult(ctx, pump, loginOK, &ticket, ep)
}

func (h *LoginHandler) sendResult(ctx context.Context, pump *tcp.Pump, code uint8, ticket *Ticket, ep ChannelEndpoint) error {
	w := protocol.NewWriter(protocol.OpLoginResult)
	w.WriteUint8(code)
	if code == loginOK {
		w.WriteUint64(ticket.ClientSessionID).
			WriteInt32(int32(ticket.AccountID)).
			WriteInt32(int32(ticket.CharacterID)).
			WriteString(ep.Host).
			WriteUint16(ep.Port)
	}
	return h.send(ctx, pump, w)
}

func (h *LoginHandler) send(ctx context.Context, pump *tcp.Pump, w *protocol.Writer) error {
	pkt, err := w.Packet()
	if err != nil {
		return err
	}
	return pump.Send(ctx, pkt)
}
