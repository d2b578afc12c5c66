package obs

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Version is the observer protocol version.
const Version = "1.0"

// Message types.
const (
	TypeHello = "HELLO"
	TypeStats = "STATS"
)

// HelloMsg is the first message an observer client sends.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name,omitempty"`
}

// StatsMsg is a per-interval runtime snapshot pushed to observers.
type StatsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	TickDurationUs  int64  `json:"tick_duration_us"`
	Actors          int    `json:"actors"`
	Sessions        int    `json:"sessions"`
	Tickets         int    `json:"tickets"`
}

// Provider supplies the snapshot behind each STATS push.
type Provider interface {
	RuntimeStats() StatsMsg
}

// Server is the read-only websocket observer endpoint. Game traffic
// stays on raw TCP; this side channel only streams runtime stats.
type Server struct {
	provider Provider
	log      *log.Logger
	interval time.Duration

	upgrader websocket.Upgrader
}

func NewServer(provider Provider, interval time.Duration, logger *log.Logger) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		provider: provider,
		log:      logger,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // ops-only endpoint
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.handshake(conn) {
			return
		}

		stop := make(chan struct{})
		// Reader: only there to notice the peer going away.
		go func() {
			defer close(stop)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				msg := s.provider.RuntimeStats()
				msg.Type = TypeStats
				msg.ProtocolVersion = Version
				b, err := json.Marshal(msg)
				if err != nil {
					s.log.Printf("observer: marshal stats: %v", err)
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})

	var hello HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return false
	}
	if hello.ProtocolVersion != Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"),
			time.Now().Add(time.Second))
		return false
	}
	return true
}
