// Command probe is a smoke-test client: it logs in as a guest,
// migrates onto a channel, and round-trips an echo packet.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"shroomd.gg/internal/protocol"
	"shroomd.gg/internal/transport/tcp"
)

func main() {
	var (
		loginAddr = flag.String("login", "127.0.0.1:8484", "login server address")
		message   = flag.String("message", "Hello World", "echo payload")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[probe] ", log.LstdFlags)

	ticketID, accountID, characterID, channelAddr, err := login(*loginAddr, logger)
	if err != nil {
		logger.Fatalf("login: %v", err)
	}
	logger.Printf("ticket %#x for account %d character %d via %s", ticketID, accountID, characterID, channelAddr)

	if err := playEcho(channelAddr, ticketID, accountID, characterID, *message, logger); err != nil {
		logger.Fatalf("channel: %v", err)
	}
}

func login(addr string, logger *log.Logger) (ticketID uint64, accountID, characterID int32, channelAddr string, err error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, 0, 0, "", err
	}
	defer raw.Close()

	conn, hs, err := tcp.ClientConn(raw)
	if err != nil {
		return 0, 0, 0, "", fmt.Errorf("handshake: %w", err)
	}
	logger.Printf("login handshake: v%d.%s locale %d", hs.Version, hs.SubVersion, hs.Locale)

	req, err := protocol.NewWriter(protocol.OpGuestLogin).Packet()
	if err != nil {
		return 0, 0, 0, "", err
	}
	err = conn.WritePacket(req)
	req.Dispose()
	if err != nil {
		return 0, 0, 0, "", err
	}

	resp, err := conn.ReadPacket()
	if err != nil {
		return 0, 0, 0, "", err
	}
	defer resp.Dispose()

	r := protocol.NewReader(resp)
	op, err := r.ReadOpcode()
	if err != nil || op != protocol.OpLoginResult {
		return 0, 0, 0, "", fmt.Errorf("unexpected reply %v (%v)", op, err)
	}
	code, err := r.ReadUint8()
	if err != nil {
		return 0, 0, 0, "", err
	}
	if code != 0 {
		return 0, 0, 0, "", fmt.Errorf("login rejected with code %d", code)
	}
	if ticketID, err = r.ReadUint64(); err != nil {
		return 0, 0, 0, "", err
	}
	if accountID, err = r.ReadInt32(); err != nil {
		return 0, 0, 0, "", err
	}
	if characterID, err = r.ReadInt32(); err != nil {
		return 0, 0, 0, "", err
	}
	host, err := r.ReadString()
	if err != nil {
		return 0, 0, 0, "", err
	}
	port, err := r.ReadUint16()
	if err != nil {
		return 0, 0, 0, "", err
	}
	return ticketID, accountID, characterID, fmt.Sprintf("%s:%d", host, port), nil
}

func playEcho(addr string, ticketID uint64, accountID, characterID int32, message string, logger *log.Logger) error {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer raw.Close()

	conn, _, err := tcp.ClientConn(raw)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	mig := protocol.NewRawWriter()
	mig.WriteUint64(ticketID).WriteInt32(accountID).WriteInt32(characterID)
	migPkt, err := mig.Packet()
	if err != nil {
		return err
	}
	err = conn.WritePacket(migPkt)
	migPkt.Dispose()
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	w := protocol.NewWriter(protocol.OpEcho)
	w.WriteString(message)
	echo, err := w.Packet()
	if err != nil {
		return err
	}
	err = conn.WritePacket(echo)
	echo.Dispose()
	if err != nil {
		return err
	}

	reply, err := conn.ReadPacket()
	if err != nil {
		return err
	}
	defer reply.Dispose()

	r := protocol.NewReader(reply)
	op, err := r.ReadOpcode()
	if err != nil || op != protocol.OpEcho {
		return fmt.Errorf("unexpected reply %v (%v)", op, err)
	}
	got, err := r.ReadString()
	if err != nil {
		return err
	}
	if got != message {
		return fmt.Errorf("echo mismatch: sent %q, got %q", message, got)
	}
	logger.Printf("echo ok: %q", got)
	return nil
}
