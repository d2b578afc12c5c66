package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrShortPacket  = errors.New("protocol: not enough data")
	ErrBadStringLen = errors.New("protocol: negative string length")
	ErrNotLatin1    = errors.New("protocol: string is not latin-1")
)

// Uint128 is a 128-bit value serialised as 16 little-endian bytes.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Decoder is implemented by composite wire messages.
type Decoder interface {
	DecodeFrom(r *Reader) error
}

// Reader walks a packet payload front to back, little-endian. All
// reads fail with ErrShortPacket when the payload runs out; a failed
// read leaves the offset unchanged.
type Reader struct {
	data []byte
	off  int
}

// NewReader reads the payload of p. The packet retains buffer
// ownership; the reader must not outlive it.
func NewReader(p *Packet) *Reader { return &Reader{data: p.Bytes()} }

// NewBytesReader reads a raw byte slice.
func NewBytesReader(b []byte) *Reader { return &Reader{data: b} }

// Remaining reports how many bytes are left.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrShortPacket, n, r.Remaining())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadUint128() (Uint128, error) {
	b, err := r.take(16)
	if err != nil {
		return Uint128{}, err
	}
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[:8]),
		Hi: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

// ReadBytes returns a view of the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadStringLen, n)
	}
	return r.take(n)
}

// ReadOpcode reads the leading opcode.
func (r *Reader) ReadOpcode() (Opcode, error) {
	v, err := r.ReadUint16()
	return Opcode(v), err
}

// ReadString reads a 16-bit-signed length prefix followed by that many
// Latin-1 bytes. A negative length is a format error; zero is the
// empty string.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	n, err := r.ReadInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		r.off = start
		return "", fmt.Errorf("%w: %d", ErrBadStringLen, n)
	}
	b, err := r.take(int(n))
	if err != nil {
		r.off = start
		return "", err
	}
	return latin1Decode(b), nil
}

// ReadFixedString reads exactly n Latin-1 bytes, trimming at the first
// null.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return latin1Decode(b), nil
}

// ReadBool reads one byte; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

// ReadDuration16 reads a 16-bit millisecond count as a span.
func (r *Reader) ReadDuration16() (time.Duration, error) {
	v, err := r.ReadInt16()
	return time.Duration(v) * time.Millisecond, err
}

// ReadDuration32 reads a 32-bit millisecond count as a span.
func (r *Reader) ReadDuration32() (time.Duration, error) {
	v, err := r.ReadInt32()
	return time.Duration(v) * time.Millisecond, err
}

// Decode hands the reader to a composite message.
func (r *Reader) Decode(d Decoder) error { return d.DecodeFrom(r) }
