package libtea

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/trendcreate/libtea/internal/wire"
)

// UserID is a peer's long-term identifier: its Ed448 public key.
type UserID [wire.KeyLen]byte

// UserIDFromBytes converts a raw 57-byte key into a UserID.
func UserIDFromBytes(b []byte) (UserID, bool) {
	var id UserID
	if len(b) != wire.KeyLen {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// PublicKey returns the id as a verifying key.
func (id UserID) PublicKey() ed448.PublicKey {
	return ed448.PublicKey(id[:])
}

// String is the base64url-no-pad form used inside printable addresses.
func (id UserID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// User is one address-book entry.
type User struct {
	ID         UserID
	Hostname   string
	Username   string // empty when unset
	LastUpdate time.Time
}

// Address returns the printable form exchanged out-of-band:
// base64url(pubkey) + "@" + hostname.
func (u *User) Address() string {
	return u.ID.String() + "@" + u.Hostname
}

// DecodeAddress parses a printable peer address. The part before the
// first '@' is the base64url-no-pad public key, the rest the hidden
// service hostname.
func DecodeAddress(address string) (*User, error) {
	address = strings.TrimSpace(address)
	key, hostname, ok := strings.Cut(address, "@")
	if !ok || hostname == "" {
		return nil, ErrInvalidAddress
	}
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	id, ok := UserIDFromBytes(raw)
	if !ok {
		return nil, ErrInvalidAddress
	}
	return &User{ID: id, Hostname: hostname}, nil
}
