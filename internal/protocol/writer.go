package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPacketTooLarge = errors.New("protocol: packet exceeds maximum size")
	ErrStringTooLong  = errors.New("protocol: string does not fit field")
)

// Encoder is implemented by composite wire messages.
type Encoder interface {
	EncodeTo(w *Writer) error
}

// Writer builds a packet payload into a pooled buffer, little-endian.
// The first write failure sticks: every later operation returns the
// same error, so call sites can chain writes and check once.
//
// Finish with Packet to detach the buffer without copying, or Discard
// to return it to the pool.
type Writer struct {
	buf *[]byte
	n   int
	err error
}

// NewWriter starts a packet with the given opcode.
func NewWriter(op Opcode) *Writer {
	w := &Writer{buf: bufPool.Get().(*[]byte)}
	w.WriteUint16(uint16(op))
	return w
}

// NewRawWriter starts an empty payload with no opcode, for messages
// outside the framed-packet convention.
func NewRawWriter() *Writer {
	return &Writer{buf: bufPool.Get().(*[]byte)}
}

// Len is the number of bytes written so far.
func (w *Writer) Len() int { return w.n }

// Err reports the sticky error, if any.
func (w *Writer) Err() error { return w.err }

func (w *Writer) room(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.n+n > MaxPacketSize {
		w.err = fmt.Errorf("%w: %d", ErrPacketTooLarge, w.n+n)
		return nil
	}
	b := (*w.buf)[w.n : w.n+n]
	w.n += n
	return b
}

func (w *Writer) WriteUint8(v uint8) *Writer {
	if b := w.room(1); b != nil {
		b[0] = v
	}
	return w
}

func (w *Writer) WriteInt8(v int8) *Writer { return w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16) *Writer {
	if b := w.room(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
	return w
}

func (w *Writer) WriteInt16(v int16) *Writer { return w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) *Writer {
	if b := w.room(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
	return w
}

func (w *Writer) WriteInt32(v int32) *Writer { return w.WriteUint32(uint32(v)) }

func (w *Writer) WriteUint64(v uint64) *Writer {
	if b := w.room(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
	return w
}

func (w *Writer) WriteInt64(v int64) *Writer { return w.WriteUint64(uint64(v)) }

func (w *Writer) WriteUint128(v Uint128) *Writer {
	if b := w.room(16); b != nil {
		binary.LittleEndian.PutUint64(b[:8], v.Lo)
		binary.LittleEndian.PutUint64(b[8:], v.Hi)
	}
	return w
}

func (w *Writer) WriteBytes(p []byte) *Writer {
	if b := w.room(len(p)); b != nil {
		copy(b, p)
	}
	return w
}

// WriteString writes a 16-bit-signed Latin-1 length prefix followed by
// the encoded bytes.
func (w *Writer) WriteString(s string) *Writer {
	if w.err != nil {
		return w
	}
	enc, err := latin1Encode(s)
	if err != nil {
		w.err = err
		return w
	}
	if len(enc) > 0x7FFF {
		w.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(enc))
		return w
	}
	w.WriteInt16(int16(len(enc)))
	return w.WriteBytes(enc)
}

// WriteFixedString writes s into a field of exactly n bytes, padded
// with zeros. The value plus a trailing null must fit.
func (w *Writer) WriteFixedString(s string, n int) *Writer {
	if w.err != nil {
		return w
	}
	enc, err := latin1Encode(s)
	if err != nil {
		w.err = err
		return w
	}
	if len(enc)+1 > n {
		w.err = fmt.Errorf("%w: %q in %d bytes", ErrStringTooLong, s, n)
		return w
	}
	if b := w.room(n); b != nil {
		copy(b, enc)
		for i := len(enc); i < n; i++ {
			b[i] = 0
		}
	}
	return w
}

func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteDuration16(d time.Duration) *Writer {
	return w.WriteInt16(int16(d / time.Millisecond))
}

func (w *Writer) WriteDuration32(d time.Duration) *Writer {
	return w.WriteInt32(int32(d / time.Millisecond))
}

// Encode lets a composite message write itself.
func (w *Writer) Encode(e Encoder) *Writer {
	if w.err == nil {
		if err := e.EncodeTo(w); err != nil {
			w.err = err
		}
	}
	return w
}

// Packet finalises the written bytes into a Packet, transferring
// buffer ownership without a copy. The writer is spent afterwards.
func (w *Writer) Packet() (*Packet, error) {
	if w.err != nil {
		w.Discard()
		return nil, w.err
	}
	p := packetFromBuffer(w.buf, w.n)
	w.buf = nil
	return p, nil
}

// Discard returns the buffer to the pool without producing a packet.
func (w *Writer) Discard() {
	if w.buf != nil {
		bufPool.Put(w.buf)
		w.buf = nil
	}
}
