package libtea

import "errors"

var (
	// ErrInvalidAddress means a printable peer address failed to decode.
	ErrInvalidAddress = errors.New("libtea: invalid peer address")
	// ErrUnknownUser means the referenced peer is not in the address book.
	ErrUnknownUser = errors.New("libtea: user is not in the address book")
	// ErrUserExists means the peer is already in the address book.
	ErrUserExists = errors.New("libtea: user is already in the address book")
	// ErrEmptyMessage means the message trimmed to nothing.
	ErrEmptyMessage = errors.New("libtea: empty message")
	// ErrConnect means a peer could not be reached through the overlay.
	ErrConnect = errors.New("libtea: could not connect")
)
