package protocol

import (
	"errors"
	"fmt"

	"shroomd.gg/internal/crypto"
)

// Locale identifies the client region in the handshake.
type Locale uint8

const (
	LocaleKorea     Locale = 1
	LocaleKoreaTest Locale = 2
	LocaleJapan     Locale = 3
	LocaleChina     Locale = 4
	LocaleChinaTest Locale = 5
	LocaleTaiwan    Locale = 6
	LocaleSEA       Locale = 7
	LocaleGlobal    Locale = 8
	LocaleEurope    Locale = 9
	LocaleBrazil    Locale = 10
)

// Valid reports whether the locale is one of the known regions.
func (l Locale) Valid() bool { return l >= LocaleKorea && l <= LocaleBrazil }

var ErrBadHandshake = errors.New("protocol: malformed handshake")

// Handshake is the plaintext first message from the server. It binds
// the connection's versions and round keys: the send key drives the
// client-to-server direction, the receive key the server-to-client
// direction.
type Handshake struct {
	Version    crypto.Version
	SubVersion string
	SendKey    crypto.RoundKey
	RecvKey    crypto.RoundKey
	Locale     Locale
}

// MaxHandshakeSize bounds the encoded handshake, prefix excluded.
const MaxHandshakeSize = 128

func (h *Handshake) EncodeTo(w *Writer) error {
	if !h.Locale.Valid() {
		return fmt.Errorf("%w: locale %d", ErrBadHandshake, h.Locale)
	}
	w.WriteUint16(uint16(h.Version)).
		WriteString(h.SubVersion).
		WriteUint32(uint32(h.SendKey)).
		WriteUint32(uint32(h.RecvKey)).
		WriteUint8(uint8(h.Locale))
	return w.Err()
}

func (h *Handshake) DecodeFrom(r *Reader) error {
	v, err := r.ReadUint16()
	if err != nil {
		return err
	}
	sub, err := r.ReadString()
	if err != nil {
		return err
	}
	sendKey, err := r.ReadUint32()
	if err != nil {
		return err
	}
	recvKey, err := r.ReadUint32()
	if err != nil {
		return err
	}
	locale, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if !Locale(locale).Valid() {
		return fmt.Errorf("%w: locale %d", ErrBadHandshake, locale)
	}
	h.Version = crypto.Version(v)
	h.SubVersion = sub
	h.SendKey = crypto.RoundKey(sendKey)
	h.RecvKey = crypto.RoundKey(recvKey)
	h.Locale = Locale(locale)
	return nil
}
