package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the 16-bit protocol version carried in the handshake.
// Frames flowing toward the client are bound to its bitwise inversion;
// frames flowing toward the server use it as-is.
type Version uint16

// Invert flips the version for the opposite wire direction.
func (v Version) Invert() Version { return ^v }

// Direction tags which way a cipher's frames travel. Callers never
// compute the inverted version themselves; they pick a direction.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
)

// MaxPayload is the largest frame payload the codec accepts.
const MaxPayload = 32767

// HeaderSize is the encrypted frame header length in bytes.
const HeaderSize = 4

var (
	ErrHeaderMismatch = errors.New("crypto: frame header does not match round key")
	ErrPayloadSize    = errors.New("crypto: frame payload size out of range")
)

// PacketCipher is the per-direction cipher state of one connection:
// the current round key and the direction-bound version. One instance
// serves exactly one direction and is not safe for concurrent use.
type PacketCipher struct {
	key     RoundKey
	version uint16
}

// NewPacketCipher binds a starting key and handshake version to a wire
// direction.
func NewPacketCipher(key RoundKey, version Version, dir Direction) *PacketCipher {
	if dir == ServerToClient {
		version = version.Invert()
	}
	return &PacketCipher{key: key, version: uint16(version)}
}

// Key reports the current round key.
func (c *PacketCipher) Key() RoundKey { return c.key }

// EncryptHeader builds the 4-byte frame header for a payload of the
// given length. The header carries the payload length XOR-folded with
// the key's high half, which lets the receiver detect a desynced or
// foreign cipher before renting any buffer.
func (c *PacketCipher) EncryptHeader(length int) ([HeaderSize]byte, error) {
	var hdr [HeaderSize]byte
	if length <= 0 || length > MaxPayload {
		return hdr, fmt.Errorf("%w: %d", ErrPayloadSize, length)
	}
	low := c.key.HeaderKey() ^ c.version
	high := low ^ uint16(length)
	binary.LittleEndian.PutUint32(hdr[:], uint32(low)|uint32(high)<<16)
	return hdr, nil
}

// DecryptHeader validates a frame header and extracts the payload
// length. A mismatched header is indistinguishable from a desynced
// cipher; the caller must close the connection.
func (c *PacketCipher) DecryptHeader(hdr [HeaderSize]byte) (int, error) {
	length, ok := c.TryDecryptHeader(hdr)
	if !ok {
		return 0, ErrHeaderMismatch
	}
	if length <= 0 || length > MaxPayload {
		return 0, fmt.Errorf("%w: %d", ErrPayloadSize, length)
	}
	return length, nil
}

// TryDecryptHeader is DecryptHeader without the error: it reports
// whether the header matches the current key, and the decoded length
// when it does.
func (c *PacketCipher) TryDecryptHeader(hdr [HeaderSize]byte) (int, bool) {
	word := binary.LittleEndian.Uint32(hdr[:])
	low := uint16(word)
	high := uint16(word >> 16)
	if low^c.version != c.key.HeaderKey() {
		return 0, false
	}
	return int(low ^ high), true
}

// Encrypt transforms a plaintext payload in place and advances the
// round key: scramble, then keystream, then key step.
func (c *PacketCipher) Encrypt(data []byte) {
	ShandaEncrypt(data)
	XORKeystream(c.key, data)
	c.key = c.key.Next()
}

// Decrypt transforms a ciphertext payload in place and advances the
// round key: keystream, key step, then unscramble.
func (c *PacketCipher) Decrypt(data []byte) {
	XORKeystream(c.key, data)
	c.key = c.key.Next()
	ShandaDecrypt(data)
}
