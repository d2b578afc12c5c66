package crypto

import "crypto/aes"

// streamKey is the fixed 256-bit key behind the keystream generator.
var streamKey = [32]byte{
	0x13, 0x00, 0x00, 0x00,
	0x08, 0x00, 0x00, 0x00,
	0x06, 0x00, 0x00, 0x00,
	0xB4, 0x00, 0x00, 0x00,
	0x1B, 0x00, 0x00, 0x00,
	0x0F, 0x00, 0x00, 0x00,
	0x33, 0x00, 0x00, 0x00,
	0x52, 0x00, 0x00, 0x00,
}

// Payload fragment sizes. The first fragment of every packet is four
// bytes shorter than the rest; the legacy client counts its frame
// header against the first fragment.
const (
	firstFragment = 1456
	nextFragment  = 1460
)

// XORKeystream applies the keystream derived from key to data in
// place. Encrypt and decrypt are the same operation. The round key is
// read, never advanced; callers step it separately once per packet.
//
// Each fragment restarts from the expanded seed. Within a fragment the
// seed block is AES-encrypted in place to produce successive 16-byte
// keystream blocks which are XORed into the payload.
func XORKeystream(key RoundKey, data []byte) {
	block, err := aes.NewCipher(streamKey[:])
	if err != nil {
		// Key length is a compile-time constant; this cannot fail.
		panic("crypto: aes init: " + err.Error())
	}

	fragment := firstFragment
	for len(data) > 0 {
		n := fragment
		if n > len(data) {
			n = len(data)
		}
		seed := key.Seed()
		for off := 0; off < n; off += 16 {
			block.Encrypt(seed[:], seed[:])
			end := off + 16
			if end > n {
				end = n
			}
			for i := off; i < end; i++ {
				data[i] ^= seed[i-off]
			}
		}
		data = data[n:]
		fragment = nextFragment
	}
}
