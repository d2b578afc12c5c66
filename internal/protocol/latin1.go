package protocol

import "fmt"

// Wire strings are Latin-1: one byte per character, code points
// 0x00-0xFF. Encoding rejects anything outside that range rather than
// silently mangling names.

func latin1Encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("protocol: %w: %q", ErrNotLatin1, r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func latin1Decode(b []byte) string {
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return string(out)
}
