package crypto

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestShanda_KnownVector(t *testing.T) {
	data := []byte("abcdef")
	ShandaEncrypt(data)
	want := []byte{0x1D, 0x70, 0xA7, 0xA0, 0x8C, 0xD3}
	if !bytes.Equal(data, want) {
		t.Fatalf("encrypt: got % X want % X", data, want)
	}
	ShandaDecrypt(data)
	if !bytes.Equal(data, []byte("abcdef")) {
		t.Fatalf("decrypt: got % X", data)
	}
}

func TestShanda_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 2, 3, 15, 16, 17, 255, 256, 257, 4096} {
		data := make([]byte, n)
		rng.Read(data)
		orig := append([]byte(nil), data...)
		ShandaEncrypt(data)
		if n >= 4 && bytes.Equal(data, orig) {
			t.Fatalf("len %d: encrypt left data unchanged", n)
		}
		ShandaDecrypt(data)
		if !bytes.Equal(data, orig) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestRoundKey_SeedAndHeaderKey(t *testing.T) {
	k := RoundKeyFromBytes([4]byte{0x52, 0x30, 0x78, 0xE8})
	if uint32(k) != 0xE8783052 {
		t.Fatalf("key = %#x", uint32(k))
	}
	if k.HeaderKey() != 0xE878 {
		t.Fatalf("header key = %#x", k.HeaderKey())
	}
	seed := k.Seed()
	for i := 0; i < 16; i += 4 {
		if !bytes.Equal(seed[i:i+4], []byte{0x52, 0x30, 0x78, 0xE8}) {
			t.Fatalf("seed = % X", seed)
		}
	}
}

func TestRoundKey_NextDeterministic(t *testing.T) {
	k := RoundKey(0x12345678)
	a, b := k.Next(), k.Next()
	if a != b {
		t.Fatalf("progression not deterministic: %#x vs %#x", a, b)
	}
	if a == k {
		t.Fatalf("progression is a fixed point at %#x", k)
	}
	// A short walk should not cycle immediately.
	seen := map[RoundKey]bool{k: true}
	cur := k
	for i := 0; i < 64; i++ {
		cur = cur.Next()
		if seen[cur] {
			t.Fatalf("cycle after %d steps", i+1)
		}
		seen[cur] = true
	}
}

func TestHeader_KnownVector(t *testing.T) {
	key := RoundKeyFromBytes([4]byte{0x52, 0x30, 0x78, 0xE8})
	c := NewPacketCipher(key, Version(65470), ClientToServer)

	hdr, err := c.EncryptHeader(44)
	if err != nil {
		t.Fatalf("encrypt header: %v", err)
	}
	word := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16 | uint32(hdr[3])<<24
	if word != 401217478 {
		t.Fatalf("header word = %d (%#x)", word, word)
	}

	n, err := c.DecryptHeader(hdr)
	if err != nil {
		t.Fatalf("decrypt header: %v", err)
	}
	if n != 44 {
		t.Fatalf("length = %d", n)
	}
}

func TestHeader_RoundTripAndRejection(t *testing.T) {
	key := RoundKey(0xCAFEBABE)
	for _, length := range []int{1, 2, 44, 1000, MaxPayload} {
		c := NewPacketCipher(key, 95, ServerToClient)
		hdr, err := c.EncryptHeader(length)
		if err != nil {
			t.Fatalf("encrypt %d: %v", length, err)
		}
		got, err := c.DecryptHeader(hdr)
		if err != nil || got != length {
			t.Fatalf("decrypt %d: got %d err %v", length, got, err)
		}

		// A round key with a different high half must reject the
		// same header.
		other := NewPacketCipher(key^0xFFFF0000, 95, ServerToClient)
		if _, ok := other.TryDecryptHeader(hdr); ok {
			t.Fatalf("length %d: foreign key accepted header", length)
		}
	}

	c := NewPacketCipher(key, 95, ServerToClient)
	if _, err := c.EncryptHeader(0); err == nil {
		t.Fatal("zero length accepted")
	}
	if _, err := c.EncryptHeader(MaxPayload + 1); err == nil {
		t.Fatal("oversized length accepted")
	}
}

func TestXORKeystream_SymmetricAcrossFragments(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	key := RoundKey(0x0BADF00D)
	for _, n := range []int{1, 15, 16, 17, 1455, 1456, 1457, 1456 + 1460, 1456 + 1460 + 333} {
		data := make([]byte, n)
		rng.Read(data)
		orig := append([]byte(nil), data...)
		XORKeystream(key, data)
		if bytes.Equal(data, orig) {
			t.Fatalf("len %d: keystream left data unchanged", n)
		}
		XORKeystream(key, data)
		if !bytes.Equal(data, orig) {
			t.Fatalf("len %d: double application is not identity", n)
		}
	}
}

func TestXORKeystream_KeyDependent(t *testing.T) {
	a := make([]byte, 64)
	b := make([]byte, 64)
	XORKeystream(RoundKey(1), a)
	XORKeystream(RoundKey(2), b)
	if bytes.Equal(a, b) {
		t.Fatal("distinct keys produced identical keystream")
	}
}

func TestPacketCipher_EndToEnd(t *testing.T) {
	// Server send and client receive share the same key and direction.
	key := RoundKey(0xDEADBEEF)
	send := NewPacketCipher(key, 95, ServerToClient)
	recv := NewPacketCipher(key, 95, ServerToClient)

	for i := 0; i < 8; i++ {
		payload := []byte("Hello World")
		wire := append([]byte(nil), payload...)

		hdr, err := send.EncryptHeader(len(wire))
		if err != nil {
			t.Fatalf("packet %d: header: %v", i, err)
		}
		send.Encrypt(wire)

		n, err := recv.DecryptHeader(hdr)
		if err != nil {
			t.Fatalf("packet %d: decrypt header: %v", i, err)
		}
		if n != len(payload) {
			t.Fatalf("packet %d: length %d", i, n)
		}
		recv.Decrypt(wire)
		if !bytes.Equal(wire, payload) {
			t.Fatalf("packet %d: payload mismatch: %q", i, wire)
		}

		// Exactly one key step per packet, applied on both ends.
		if send.Key() != recv.Key() {
			t.Fatalf("packet %d: keys diverged: %#x vs %#x", i, send.Key(), recv.Key())
		}
	}
}

func TestVersion_Invert(t *testing.T) {
	if Version(95).Invert() != Version(65440) {
		t.Fatalf("invert(95) = %d", Version(95).Invert())
	}
	if Version(65470).Invert() != Version(65) {
		t.Fatalf("invert(65470) = %d", Version(65470).Invert())
	}
}
