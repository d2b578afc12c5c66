package tcp

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"shroomd.gg/internal/crypto"
	"shroomd.gg/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[tcp-test] ", log.LstdFlags)
}

func testHandshake() *protocol.Handshake {
	return &protocol.Handshake{
		Version:    95,
		SubVersion: "1",
		SendKey:    crypto.RoundKey(0x12345678),
		RecvKey:    crypto.RoundKey(0x9ABCDEF0),
		Locale:     protocol.LocaleGlobal,
	}
}

// connPair completes a handshake over an in-memory pipe.
func connPair(t *testing.T) (server, client *Conn) {
	t.Helper()
	rawServer, rawClient := net.Pipe()
	t.Cleanup(func() {
		rawServer.Close()
		rawClient.Close()
	})

	done := make(chan error, 1)
	go func() {
		var err error
		server, err = ServerConn(rawServer, testHandshake())
		done <- err
	}()
	c, hs, err := ClientConn(rawClient)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	if hs.Version != 95 || hs.SubVersion != "1" || hs.Locale != protocol.LocaleGlobal {
		t.Fatalf("handshake seen by client: %+v", hs)
	}
	client = c
	return server, client
}

func TestConn_FramedEcho(t *testing.T) {
	server, client := connPair(t)

	// Client sends a string packet; server echoes the same bytes.
	w := protocol.NewWriter(protocol.OpEcho)
	w.WriteString("Hello World")
	out, err := w.Packet()
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		defer out.Dispose()
		if err := client.WritePacket(out); err != nil {
			t.Errorf("client write: %v", err)
		}
	}()

	got, err := server.ReadPacket()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}

	go func() {
		defer got.Dispose()
		if err := server.WritePacket(got); err != nil {
			t.Errorf("server write: %v", err)
		}
	}()

	back, err := client.ReadPacket()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	defer back.Dispose()

	r := protocol.NewReader(back)
	op, err := r.ReadOpcode()
	if err != nil || op != protocol.OpEcho {
		t.Fatalf("opcode: %v %v", op, err)
	}
	s, err := r.ReadString()
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	if s != "Hello World" {
		t.Fatalf("echo = %q", s)
	}
}

func TestConn_ManyPacketsKeepKeysInStep(t *testing.T) {
	server, client := connPair(t)

	go func() {
		for i := 0; i < 32; i++ {
			w := protocol.NewWriter(protocol.OpPing)
			w.WriteInt32(int32(i))
			p, err := w.Packet()
			if err != nil {
				t.Errorf("build %d: %v", i, err)
				return
			}
			err = client.WritePacket(p)
			p.Dispose()
			if err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < 32; i++ {
		p, err := server.ReadPacket()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		r := protocol.NewReader(p)
		if _, err := r.ReadOpcode(); err != nil {
			t.Fatal(err)
		}
		v, err := r.ReadInt32()
		p.Dispose()
		if err != nil || v != int32(i) {
			t.Fatalf("packet %d decoded as %d (%v)", i, v, err)
		}
	}
}

func TestConn_DesyncedCipherRejected(t *testing.T) {
	rawServer, rawClient := net.Pipe()
	defer rawServer.Close()
	defer rawClient.Close()

	go func() {
		_, _ = ServerConn(rawServer, testHandshake())
		// Write garbage that cannot be a valid header for the
		// client's receive key.
		_, _ = rawServer.Write([]byte{0, 0, 0, 0, 1, 2, 3, 4})
	}()

	client, _, err := ClientConn(rawClient)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if _, err := client.ReadPacket(); !errors.Is(err, crypto.ErrHeaderMismatch) {
		t.Fatalf("err = %v", err)
	}
}

func TestPump_EchoAndShutdown(t *testing.T) {
	server, client := connPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sp := NewPump(server, 0, 0, testLogger())
	cp := NewPump(client, 0, 0, testLogger())
	sp.Start(ctx)
	cp.Start(ctx)

	w := protocol.NewWriter(protocol.OpEcho)
	w.WriteString("ping")
	out, err := w.Packet()
	if err != nil {
		t.Fatal(err)
	}
	if err := cp.Send(ctx, out); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case pkt := <-sp.Inbound():
		r := protocol.NewReader(pkt)
		if _, err := r.ReadOpcode(); err != nil {
			t.Fatal(err)
		}
		if s, _ := r.ReadString(); s != "ping" {
			t.Fatalf("got %q", s)
		}
		pkt.Dispose()
	case <-time.After(time.Second):
		t.Fatal("inbound packet never arrived")
	}

	cp.Close()
	select {
	case <-cp.Done():
	case <-time.After(time.Second):
		t.Fatal("client pump never finished")
	}
	select {
	case <-sp.Done():
	case <-time.After(time.Second):
		t.Fatal("server pump never finished after peer closed")
	}
}

func TestPump_TrySendBackpressure(t *testing.T) {
	server, client := connPair(t)
	_ = server // never reads: the peer's write loop stalls

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tiny outbound queue, and nothing draining the peer side.
	cp := NewPump(client, 1, 1, testLogger())
	cp.Start(ctx)

	saw := false
	for i := 0; i < 64; i++ {
		w := protocol.NewWriter(protocol.OpPing)
		w.WriteInt32(int32(i))
		p, err := w.Packet()
		if err != nil {
			t.Fatal(err)
		}
		if cp.TrySend(p) {
			continue
		}
		saw = true
		p.Dispose()
		break
	}
	if !saw {
		t.Fatal("trySend never reported a full queue")
	}
}
