package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"shroomd.gg/internal/crypto"
	"shroomd.gg/internal/protocol"
)

var ErrBadHandshakeFrame = errors.New("tcp: handshake length out of range")

// Conn frames encrypted packets over a byte stream. The handshake
// binds one cipher per direction; after that every frame is a 4-byte
// integrity header followed by the ciphertext payload.
//
// Reads must come from a single goroutine, and writes from a single
// goroutine; the pump provides that serialisation.
type Conn struct {
	raw  net.Conn
	send *crypto.PacketCipher
	recv *crypto.PacketCipher

	hdr  [crypto.HeaderSize]byte
	wbuf [crypto.HeaderSize + protocol.MaxPacketSize]byte
}

// ServerConn completes the server side of a new connection: it writes
// the plaintext handshake and derives the cipher pair. The server's
// send direction is the client's receive direction, so it takes the
// receive key and the inverted version.
func ServerConn(raw net.Conn, hs *protocol.Handshake) (*Conn, error) {
	w := protocol.NewRawWriter()
	if err := w.Encode(hs).Err(); err != nil {
		w.Discard()
		return nil, err
	}
	p, err := w.Packet()
	if err != nil {
		return nil, err
	}
	defer p.Dispose()

	if p.Len() < 1 || p.Len() > protocol.MaxHandshakeSize {
		return nil, fmt.Errorf("%w: %d", ErrBadHandshakeFrame, p.Len())
	}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(p.Len()))
	if _, err := raw.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := raw.Write(p.Bytes()); err != nil {
		return nil, err
	}

	return &Conn{
		raw:  raw,
		send: crypto.NewPacketCipher(hs.RecvKey, hs.Version, crypto.ServerToClient),
		recv: crypto.NewPacketCipher(hs.SendKey, hs.Version, crypto.ClientToServer),
	}, nil
}

// ClientConn completes the client side: it reads the plaintext
// handshake and derives the mirrored cipher pair.
func ClientConn(raw net.Conn) (*Conn, *protocol.Handshake, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(raw, prefix[:]); err != nil {
		return nil, nil, err
	}
	n := int(binary.LittleEndian.Uint16(prefix[:]))
	if n < 1 || n > protocol.MaxHandshakeSize {
		return nil, nil, fmt.Errorf("%w: %d", ErrBadHandshakeFrame, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(raw, buf); err != nil {
		return nil, nil, err
	}
	var hs protocol.Handshake
	if err := protocol.NewBytesReader(buf).Decode(&hs); err != nil {
		return nil, nil, err
	}

	return &Conn{
		raw:  raw,
		send: crypto.NewPacketCipher(hs.SendKey, hs.Version, crypto.ClientToServer),
		recv: crypto.NewPacketCipher(hs.RecvKey, hs.Version, crypto.ServerToClient),
	}, &hs, nil
}

// ReadPacket reads one frame: header, validation, payload, decrypt.
// The returned packet owns a pooled buffer; the caller disposes it.
// Any buffer rented during a failed read is returned before the error
// propagates.
func (c *Conn) ReadPacket() (*protocol.Packet, error) {
	if _, err := io.ReadFull(c.raw, c.hdr[:]); err != nil {
		return nil, err
	}
	length, err := c.recv.DecryptHeader(c.hdr)
	if err != nil {
		return nil, err
	}
	p, err := protocol.NewPacket(length)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(c.raw, p.Bytes()); err != nil {
		p.Dispose()
		return nil, err
	}
	c.recv.Decrypt(p.Bytes())
	return p, nil
}

// WritePacket encrypts and writes one frame as a single write. The
// packet is not consumed; the caller still owns it.
func (c *Conn) WritePacket(p *protocol.Packet) error {
	n := p.Len()
	hdr, err := c.send.EncryptHeader(n)
	if err != nil {
		return err
	}
	copy(c.wbuf[:], hdr[:])
	body := c.wbuf[crypto.HeaderSize : crypto.HeaderSize+n]
	p.CopyTo(body)
	c.send.Encrypt(body)
	_, err = c.raw.Write(c.wbuf[:crypto.HeaderSize+n])
	return err
}

// RemoteAddr is the peer address of the underlying stream.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Close closes the underlying stream. Blocked reads and writes fail.
func (c *Conn) Close() error { return c.raw.Close() }
