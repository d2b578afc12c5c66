package protocol

import (
	"errors"
	"testing"
	"time"

	"shroomd.gg/internal/crypto"
)

func TestWriterReader_Primitives(t *testing.T) {
	w := NewWriter(OpEcho)
	w.WriteUint8(0xAB).
		WriteInt8(-5).
		WriteUint16(0xBEEF).
		WriteInt16(-12345).
		WriteUint32(0xDEADBEEF).
		WriteInt32(-2000000000).
		WriteUint64(0x1122334455667788).
		WriteInt64(-42).
		WriteUint128(Uint128{Lo: 1, Hi: 2}).
		WriteBool(true).
		WriteBool(false).
		WriteDuration16(1500 * time.Millisecond).
		WriteDuration32(75 * time.Second)
	p, err := w.Packet()
	if err != nil {
		t.Fatalf("packet: %v", err)
	}
	defer p.Dispose()

	r := NewReader(p)
	if op, err := r.ReadOpcode(); err != nil || op != OpEcho {
		t.Fatalf("opcode: %v %v", op, err)
	}
	if v, _ := r.ReadUint8(); v != 0xAB {
		t.Fatalf("u8 = %#x", v)
	}
	if v, _ := r.ReadInt8(); v != -5 {
		t.Fatalf("i8 = %d", v)
	}
	if v, _ := r.ReadUint16(); v != 0xBEEF {
		t.Fatalf("u16 = %#x", v)
	}
	if v, _ := r.ReadInt16(); v != -12345 {
		t.Fatalf("i16 = %d", v)
	}
	if v, _ := r.ReadUint32(); v != 0xDEADBEEF {
		t.Fatalf("u32 = %#x", v)
	}
	if v, _ := r.ReadInt32(); v != -2000000000 {
		t.Fatalf("i32 = %d", v)
	}
	if v, _ := r.ReadUint64(); v != 0x1122334455667788 {
		t.Fatalf("u64 = %#x", v)
	}
	if v, _ := r.ReadInt64(); v != -42 {
		t.Fatalf("i64 = %d", v)
	}
	if v, _ := r.ReadUint128(); v.Lo != 1 || v.Hi != 2 {
		t.Fatalf("u128 = %+v", v)
	}
	if v, _ := r.ReadBool(); !v {
		t.Fatal("bool true lost")
	}
	if v, _ := r.ReadBool(); v {
		t.Fatal("bool false lost")
	}
	if v, _ := r.ReadDuration16(); v != 1500*time.Millisecond {
		t.Fatalf("dur16 = %v", v)
	}
	if v, _ := r.ReadDuration32(); v != 75*time.Second {
		t.Fatalf("dur32 = %v", v)
	}
	if r.Remaining() != 0 {
		t.Fatalf("%d trailing bytes", r.Remaining())
	}
}

func TestWriterReader_Strings(t *testing.T) {
	w := NewWriter(OpEcho)
	w.WriteString("Hello World").
		WriteString("").
		WriteFixedString("Mush", 13)
	p, err := w.Packet()
	if err != nil {
		t.Fatalf("packet: %v", err)
	}
	defer p.Dispose()

	r := NewReader(p)
	if _, err := r.ReadOpcode(); err != nil {
		t.Fatal(err)
	}
	if s, err := r.ReadString(); err != nil || s != "Hello World" {
		t.Fatalf("string = %q, %v", s, err)
	}
	if s, err := r.ReadString(); err != nil || s != "" {
		t.Fatalf("empty string = %q, %v", s, err)
	}
	if s, err := r.ReadFixedString(13); err != nil || s != "Mush" {
		t.Fatalf("fixed string = %q, %v", s, err)
	}
}

func TestReader_NegativeStringLength(t *testing.T) {
	r := NewBytesReader([]byte{0xFF, 0xFF})
	if _, err := r.ReadString(); !errors.Is(err, ErrBadStringLen) {
		t.Fatalf("err = %v", err)
	}
}

func TestReader_Truncated(t *testing.T) {
	r := NewBytesReader([]byte{0x01})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("err = %v", err)
	}
	// Offset must be intact after a failed read.
	if v, err := r.ReadUint8(); err != nil || v != 1 {
		t.Fatalf("offset moved: %v %v", v, err)
	}
}

func TestWriter_FixedStringOverflow(t *testing.T) {
	w := NewWriter(OpEcho)
	w.WriteFixedString("twelvebytes!", 12) // needs 13 with the null
	if _, err := w.Packet(); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriter_NonLatin1(t *testing.T) {
	w := NewWriter(OpEcho)
	w.WriteString("日本語")
	if _, err := w.Packet(); !errors.Is(err, ErrNotLatin1) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriter_Overflow(t *testing.T) {
	w := NewWriter(OpEcho)
	big := make([]byte, MaxPacketSize)
	w.WriteBytes(big)
	if _, err := w.Packet(); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("err = %v", err)
	}
}

func TestPacket_DoubleDisposePanics(t *testing.T) {
	p, err := NewPacket(4)
	if err != nil {
		t.Fatal(err)
	}
	p.Dispose()
	defer func() {
		if recover() == nil {
			t.Fatal("second dispose did not panic")
		}
	}()
	p.Dispose()
}

func TestHandshake_RoundTrip(t *testing.T) {
	hs := Handshake{
		Version:    95,
		SubVersion: "1",
		SendKey:    crypto.RoundKey(0x11223344),
		RecvKey:    crypto.RoundKey(0x55667788),
		Locale:     LocaleGlobal,
	}
	w := NewRawWriter()
	if err := w.Encode(&hs).Err(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	p, err := w.Packet()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Dispose()

	if p.Len() > MaxHandshakeSize {
		t.Fatalf("handshake too large: %d", p.Len())
	}

	var got Handshake
	if err := NewReader(p).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != hs {
		t.Fatalf("round trip: %+v != %+v", got, hs)
	}
}

func TestHandshake_BadLocale(t *testing.T) {
	hs := Handshake{Version: 95, SubVersion: "1", Locale: 11}
	w := NewRawWriter()
	defer w.Discard()
	if err := w.Encode(&hs).Err(); !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("encode err = %v", err)
	}

	raw := NewRawWriter()
	raw.WriteUint16(95).WriteString("1").WriteUint32(1).WriteUint32(2).WriteUint8(0)
	p, err := raw.Packet()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Dispose()
	var got Handshake
	if err := NewReader(p).Decode(&got); !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("decode err = %v", err)
	}
}
