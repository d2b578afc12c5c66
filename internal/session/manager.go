package session

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"shroomd.gg/internal/game"
	"shroomd.gg/internal/journal"
	"shroomd.gg/internal/store"
)

// DefaultTicketTTL bounds how long a migration ticket stays valid.
const DefaultTicketTTL = 30 * time.Second

var ErrNoEndpointIP = errors.New("session: endpoint has no IP address")

// Ticket authorises exactly one channel handshake. It is bound to the
// client IP observed by the login service and expires after its TTL.
type Ticket struct {
	ClientSessionID uint64
	AccountID       game.AccountID
	CharacterID     game.CharacterID
	RemoteIP        string
	ExpiresAt       time.Time
}

// Manager tracks the live sessions of one server process, fronts the
// character store, and owns the migration ticket lifecycle. The
// session registry and ticket map are the only mutable state shared
// between connection goroutines; everything else lives inside actors.
type Manager struct {
	log   *log.Logger
	store store.Store
	sink  journal.Sink
	ttl   time.Duration

	nextID atomic.Uint32

	smu      sync.Mutex
	sessions map[uint32]*game.Session

	tmu     sync.Mutex
	tickets map[uint64]Ticket
}

func NewManager(st store.Store, ttl time.Duration, logger *log.Logger, sink journal.Sink) *Manager {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &Manager{
		log:      logger,
		store:    st,
		sink:     sink,
		ttl:      ttl,
		sessions: make(map[uint32]*game.Session),
		tickets:  make(map[uint64]Ticket),
	}
}

// NextSessionID mints a process-unique session id.
func (m *Manager) NextSessionID() uint32 { return m.nextID.Add(1) }

// Register makes a session observable. The channel handler calls it
// just before posting AddSession, so a session is observable here from
// that point on, before the room has drained the command and added it.
func (m *Manager) Register(s *game.Session) {
	m.smu.Lock()
	m.sessions[s.ID()] = s
	m.smu.Unlock()
	m.record(journal.SessionEntry{Event: "open", SessionID: s.ID()})
}

// NotifyClosed removes a session from the registry. Idempotent.
func (m *Manager) NotifyClosed(id uint32) {
	m.smu.Lock()
	_, present := m.sessions[id]
	delete(m.sessions, id)
	m.smu.Unlock()
	if present {
		m.record(journal.SessionEntry{Event: "close", SessionID: id})
	}
}

// Session looks a live session up by id.
func (m *Manager) Session(id uint32) (*game.Session, bool) {
	m.smu.Lock()
	defer m.smu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionCount is the number of registered sessions.
func (m *Manager) SessionCount() int {
	m.smu.Lock()
	defer m.smu.Unlock()
	return len(m.sessions)
}

func (m *Manager) record(v any) {
	if m.sink != nil {
		m.sink.Record(v)
	}
}

// Character store façade.

func (m *Manager) GetOrCreateAccount(ctx context.Context, username string) (store.Account, error) {
	return m.store.GetOrCreateAccount(ctx, username)
}

func (m *Manager) CreateGuestAccount(ctx context.Context) (store.Account, error) {
	return m.store.CreateGuestAccount(ctx)
}

func (m *Manager) EnsureDefaultCharacter(ctx context.Context, accountID game.AccountID) (store.Character, error) {
	return m.store.EnsureDefaultCharacter(ctx, accountID)
}

func (m *Manager) LoadCharacter(ctx context.Context, id game.CharacterID) (store.Character, error) {
	return m.store.LoadCharacter(ctx, id)
}

func (m *Manager) GetCharacters(ctx context.Context, accountID game.AccountID) ([]store.Character, error) {
	return m.store.GetCharacters(ctx, accountID)
}

// Migration tickets.

func ipOf(addr net.Addr) (string, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), nil
	case *net.UDPAddr:
		return a.IP.String(), nil
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		// Not host:port shaped; treat the whole string as the host.
		// net.Pipe addresses land here.
		return addr.String(), nil
	}
	if host == "" {
		return "", ErrNoEndpointIP
	}
	return host, nil
}

func randomTicketID() uint64 {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			panic("session: crypto/rand: " + err.Error())
		}
		if v := binary.LittleEndian.Uint64(b[:]); v != 0 {
			return v
		}
	}
}

// sweepLocked drops expired tickets. Callers hold tmu.
func (m *Manager) sweepLocked(now time.Time) {
	for id, tk := range m.tickets {
		if now.After(tk.ExpiresAt) {
			delete(m.tickets, id)
		}
	}
}

// CreateTicket issues a single-use migration ticket bound to the
// client's IP. Expired tickets are swept before the insert.
func (m *Manager) CreateTicket(accountID game.AccountID, characterID game.CharacterID, endpoint net.Addr) (Ticket, error) {
	ip, err := ipOf(endpoint)
	if err != nil {
		return Ticket{}, err
	}
	now := time.Now()
	tk := Ticket{
		ClientSessionID: randomTicketID(),
		AccountID:       accountID,
		CharacterID:     characterID,
		RemoteIP:        ip,
		ExpiresAt:       now.Add(m.ttl),
	}

	m.tmu.Lock()
	defer m.tmu.Unlock()
	m.sweepLocked(now)
	m.tickets[tk.ClientSessionID] = tk
	return tk, nil
}

// TryConsumeTicket atomically removes and returns the ticket. It
// fails when the ticket is absent, expired, or presented from a
// different IP than it was issued to.
func (m *Manager) TryConsumeTicket(clientSessionID uint64, endpoint net.Addr) (Ticket, bool) {
	ip, err := ipOf(endpoint)
	if err != nil {
		return Ticket{}, false
	}
	now := time.Now()

	m.tmu.Lock()
	defer m.tmu.Unlock()
	m.sweepLocked(now)
	tk, ok := m.tickets[clientSessionID]
	if !ok {
		return Ticket{}, false
	}
	if tk.RemoteIP != ip {
		return Ticket{}, false
	}
	delete(m.tickets, clientSessionID)
	return tk, true
}

// TicketCount is the number of outstanding tickets, expired included
// until the next sweep.
func (m *Manager) TicketCount() int {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	return len(m.tickets)
}

// CreatePlayerSession builds the gameplay logic for a freshly
// migrated connection.
func (m *Manager) CreatePlayerSession(sessionID uint32, room *game.Room, char store.Character) *Player {
	return NewPlayer(sessionID, room, char, m.log)
}
