package wire

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cloudflare/circl/sign/ed448"
)

func testKey(t *testing.T) (ed448.PublicKey, ed448.PrivateKey) {
	t.Helper()
	pub, priv, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func TestGreetingAuth(t *testing.T) {
	in := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	want := []byte{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	if got := GreetingAuth(in); !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestGreetingAuthInvolution(t *testing.T) {
	c := make([]byte, ChallengeLen)
	if _, err := rand.Read(c); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if got := GreetingAuth(GreetingAuth(c)); !bytes.Equal(got, c) {
		t.Fatalf("double transform changed the challenge")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	pub, priv := testKey(t)

	var b bytes.Buffer
	payload := EncodeDirectMsg("hello")
	if err := WriteFrame(&b, priv, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if b.Len() != 8+len(payload)+SigLen {
		t.Fatalf("frame is %d bytes, want %d", b.Len(), 8+len(payload)+SigLen)
	}

	got, err := ReadFrame(&b, pub)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
	text, err := DecodeDirectMsg(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "hello" {
		t.Fatalf("got %q, want %q", text, "hello")
	}
}

func TestFrameTamperedSignature(t *testing.T) {
	pub, priv := testKey(t)

	var b bytes.Buffer
	if err := WriteFrame(&b, priv, EncodeDirectMsg("hi")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	raw := b.Bytes()
	raw[len(raw)-1] ^= 0x01

	if _, err := ReadFrame(bytes.NewReader(raw), pub); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestFrameWrongKey(t *testing.T) {
	_, priv := testKey(t)
	other, _ := testKey(t)

	var b bytes.Buffer
	if err := WriteFrame(&b, priv, EncodeDirectMsg("hi")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := ReadFrame(&b, other); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestFrameOversizeRejectedBeforePayload(t *testing.T) {
	pub, _ := testKey(t)

	// Only the header is present; the length check must fire before any
	// payload byte is read.
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], 200000)
	if _, err := ReadFrame(bytes.NewReader(hdr[:]), pub); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestFrameLengthBoundary(t *testing.T) {
	pub, priv := testKey(t)

	if err := WriteFrame(&bytes.Buffer{}, priv, make([]byte, MaxMsgLen)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}

	payload := make([]byte, MaxMsgLen-1)
	binary.BigEndian.PutUint16(payload[:2], 0)
	var b bytes.Buffer
	if err := WriteFrame(&b, priv, payload); err != nil {
		t.Fatalf("write frame at limit: %v", err)
	}
	if _, err := ReadFrame(&b, pub); err != nil {
		t.Fatalf("read frame at limit: %v", err)
	}
}

func TestDecodeDirectMsgErrors(t *testing.T) {
	if _, err := DecodeDirectMsg([]byte{0}); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("short payload: got %v", err)
	}
	if _, err := DecodeDirectMsg([]byte{0, 0}); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("empty text: got %v", err)
	}
	if _, err := DecodeDirectMsg([]byte{0, 1, 'x'}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	if _, err := DecodeDirectMsg([]byte{0, 0, 0xff, 0xfe}); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("invalid utf-8: got %v", err)
	}
}
