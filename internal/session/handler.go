package session

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"shroomd.gg/internal/crypto"
	"shroomd.gg/internal/game"
	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/transport/tcp"
)

// migrationPacketSize is the minimum first packet on a channel
// connection: client session id plus account and character ids.
const migrationPacketSize = 8 + 4 + 4

// migrationTimeout bounds how long a fresh channel connection may
// stall before sending its migration packet.
const migrationTimeout = 10 * time.Second

var (
	errMigrationShort   = errors.New("session: migration packet too short")
	errMigrationTimeout = errors.New("session: migration packet never arrived")
	errTicketRejected   = errors.New("session: migration ticket rejected")
	errTicketMismatch   = errors.New("session: ticket ids do not match packet")
	errCharacterMissing = errors.New("session: character not found")
)

// HandshakeConfig is the identity the server presents in its
// plaintext handshake.
type HandshakeConfig struct {
	Version    crypto.Version
	SubVersion string
	Locale     protocol.Locale
}

// fresh mints a handshake with newly drawn round keys. Every
// connection gets its own key pair.
func (c HandshakeConfig) fresh() protocol.Handshake {
	return protocol.Handshake{
		Version:    c.Version,
		SubVersion: c.SubVersion,
		SendKey:    randomRoundKey(),
		RecvKey:    randomRoundKey(),
		Locale:     c.Locale,
	}
}

func randomRoundKey() crypto.RoundKey {
	var b [4]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("session: crypto/rand: " + err.Error())
	}
	return crypto.RoundKey(binary.LittleEndian.Uint32(b[:]))
}

// ChannelHandler authenticates migrating connections against the
// ticket store and pins the resulting session to one room.
type ChannelHandler struct {
	log  *log.Logger
	mgr  *Manager
	hs   HandshakeConfig
	room *game.Room
}

func NewChannelHandler(mgr *Manager, hs HandshakeConfig, room *game.Room, logger *log.Logger) *ChannelHandler {
	return &ChannelHandler{log: logger, mgr: mgr, hs: hs, room: room}
}

// Handle runs one accepted channel connection to completion.
func (h *ChannelHandler) Handle(ctx context.Context, raw net.Conn) {
	remote := raw.RemoteAddr()

	hs := h.hs.fresh()
	conn, err := tcp.ServerConn(raw, &hs)
	if err != nil {
		_ = raw.Close()
		h.log.Printf("channel conn %v: handshake: %v", remote, err)
		return
	}

	pump := tcp.NewPump(conn, 0, 0, h.log)
	pump.Start(ctx)

	sess, err := h.authenticate(ctx, pump, remote)
	if err != nil {
		pump.Close()
		<-pump.Done()
		h.log.Printf("channel conn %v: rejected: %v", remote, err)
		return
	}

	// Normal lifetime: until the client disconnects or the server
	// shuts down.
	select {
	case <-pump.Done():
	case <-ctx.Done():
		pump.Close()
		<-pump.Done()
	}

	h.room.TryPost(game.RemoveSession{ID: sess.ID()})
	h.mgr.NotifyClosed(sess.ID())
}

// authenticate reads and validates the migration packet, then builds
// and registers the session.
func (h *ChannelHandler) authenticate(ctx context.Context, pump *tcp.Pump, remote net.Addr) (*game.Session, error) {
	var first *protocol.Packet
	timeout := time.NewTimer(migrationTimeout)
	defer timeout.Stop()
	select {
	case p, ok := <-pump.Inbound():
		if !ok {
			return nil, fmt.Errorf("connection closed before migration: %w", pump.Err())
		}
		first = p
	case <-timeout.C:
		return nil, errMigrationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer first.Dispose()

	if first.Len() < migrationPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", errMigrationShort, first.Len())
	}
	r := protocol.NewReader(first)
	clientSessionID, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	accountID, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	characterID, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}

	ticket, ok := h.mgr.TryConsumeTicket(clientSessionID, remote)
	if !ok {
		return nil, errTicketRejected
	}
	if ticket.AccountID != game.AccountID(accountID) || ticket.CharacterID != game.CharacterID(characterID) {
		return nil, errTicketMismatch
	}

	char, err := h.mgr.LoadCharacter(ctx, ticket.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("%w: id %d: %v", errCharacterMissing, characterID, err)
	}

	sessionID := h.mgr.NextSessionID()
	player := h.mgr.CreatePlayerSession(sessionID, h.room, char)
	sess := game.NewSession(sessionID, pump, player)
	player.Bind(sess)
	h.mgr.Register(sess)
	h.room.TryPost(game.AddSession{Session: sess})
	h.log.Printf("session %d: %q entered map %d from %v", sessionID, char.Name, char.MapID, remote)
	return sess, nil
}
