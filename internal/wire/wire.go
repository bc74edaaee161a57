// Package wire implements the on-wire format: handshake constants, the
// challenge transform, and signed length-prefixed message frames.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/cloudflare/circl/sign/ed448"
)

const (
	// KeyLen is the size of a peer id (an Ed448 public key).
	KeyLen = ed448.PublicKeySize
	// SigLen is the size of an Ed448 signature.
	SigLen = ed448.SignatureSize
	// ChallengeLen is the size of a handshake challenge.
	ChallengeLen = 16
	// MaxMsgLen bounds a frame's payload; a length is accepted iff it is
	// strictly below this.
	MaxMsgLen = 125000 + 2
)

// Message kinds carried in a frame payload.
const kindDirectMsg uint16 = 0

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum length")
	ErrBadSignature  = errors.New("wire: signature verification failed")
	ErrBadPayload    = errors.New("wire: malformed payload")
)

// GreetingAuth derives the bytes a handshake signature covers:
// the challenge is read as one big-endian unsigned 128-bit integer and
// re-emitted little-endian, reversing the 16 bytes. Both ends must
// apply the same transform or the signature cannot match.
func GreetingAuth(challenge []byte) []byte {
	out := make([]byte, ChallengeLen)
	for i, b := range challenge[:ChallengeLen] {
		out[ChallengeLen-1-i] = b
	}
	return out
}

// WriteFrame emits one frame: u64 big-endian payload length, the
// payload, and the sender's signature over exactly the payload bytes.
func WriteFrame(w io.Writer, priv ed448.PrivateKey, payload []byte) error {
	if len(payload) >= MaxMsgLen {
		return ErrFrameTooLarge
	}
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(ed448.Sign(priv, payload, ""))
	return err
}

// ReadFrame reads one frame and verifies its signature under the peer
// key fixed at handshake time. The length is checked before the payload
// is read; the signature is checked before the payload is decoded.
func ReadFrame(r io.Reader, from ed448.PublicKey) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(hdr[:])
	if n >= MaxMsgLen {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, int(n)+SigLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	payload, sig := buf[:n], buf[n:]
	if !ed448.Verify(from, payload, sig, "") {
		return nil, ErrBadSignature
	}
	return payload, nil
}

// EncodeDirectMsg serializes a direct message payload: u16 big-endian
// kind tag followed by the UTF-8 text.
func EncodeDirectMsg(text string) []byte {
	b := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(b[:2], kindDirectMsg)
	copy(b[2:], text)
	return b
}

// DecodeDirectMsg parses a frame payload. Unknown kinds, invalid UTF-8
// and empty text are all protocol errors.
func DecodeDirectMsg(payload []byte) (string, error) {
	if len(payload) < 2 {
		return "", ErrBadPayload
	}
	if kind := binary.BigEndian.Uint16(payload[:2]); kind != kindDirectMsg {
		return "", fmt.Errorf("wire: unknown message kind %d", kind)
	}
	body := payload[2:]
	if len(body) == 0 || !utf8.Valid(body) {
		return "", ErrBadPayload
	}
	return string(body), nil
}
