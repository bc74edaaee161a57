// Package libtea is the RYOKUCHAT session core: anonymous,
// authenticated, bidirectional text messaging between Ed448 identities
// reachable as hidden-service hostnames. A Session owns the identity,
// the address book, the loopback listener and the table of live peer
// connections; the embedding client talks to peers only through it.
package libtea

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/trendcreate/libtea/internal/identity"
	"github.com/trendcreate/libtea/internal/overlay"
	"github.com/trendcreate/libtea/internal/store"
	"github.com/trendcreate/libtea/internal/wire"
)

// Message is a notification delivered to the embedding client.
type Message interface {
	message()
}

// DirectMsg is a text message received from a peer.
type DirectMsg struct {
	From UserID
	Text string
}

func (DirectMsg) message() {}

// Session is the long-lived core object.
type Session struct {
	dataDir   string
	chatPort  int
	socksPort int

	priv      ed448.PrivateKey
	pub       ed448.PublicKey
	myaddress string

	book  *store.Book
	conns *connTable
	dials singleflight.Group

	notifyMu sync.Mutex
	notify   chan<- Message

	pendingMu sync.Mutex
	pending   map[net.Conn]struct{}

	ln  net.Listener
	tor *overlay.Process

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a session rooted at dataDir. port is the loopback chat
// listener; the overlay's SOCKS5 interface is expected on port+1. New
// blocks until the overlay has published the local hidden-service
// hostname.
func New(dataDir string, port int) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		dataDir:   dataDir,
		chatPort:  port,
		socksPort: port + 1,
		conns:     newConnTable(),
		pending:   make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := os.MkdirAll(filepath.Join(dataDir, "tor", "hidden"), 0700); err != nil {
		cancel()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	overlay.Harden(dataDir)

	tor, err := overlay.Start(dataDir, s.socksPort, s.chatPort)
	if err != nil {
		log.WithError(err).Warn("overlay not started, assuming an external one")
	} else {
		s.tor = tor
	}

	s.priv, s.pub, err = identity.Load(dataDir)
	if err != nil {
		s.teardown()
		return nil, err
	}

	s.book, err = store.Open(filepath.Join(dataDir, "sqlite.db"))
	if err != nil {
		s.teardown()
		return nil, err
	}

	hostname, err := awaitHostname(ctx, filepath.Join(dataDir, "tor", "hidden", "hostname"))
	if err != nil {
		s.teardown()
		return nil, err
	}
	s.myaddress = base64.RawURLEncoding.EncodeToString(s.pub) + "@" + hostname

	s.ln, err = net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("bind listener: %w", err)
	}
	s.wg.Add(1)
	go s.acceptLoop(s.ln)

	log.WithField("address", s.myaddress).Info("session up")
	return s, nil
}

// awaitHostname polls the hostname file the overlay writes, once per
// second, until it holds a name ending in ".onion".
func awaitHostname(ctx context.Context, path string) (string, error) {
	for {
		if b, err := os.ReadFile(path); err == nil {
			if h := strings.TrimSpace(string(b)); strings.HasSuffix(h, ".onion") {
				return h, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// MyAddress returns the printable self-address to hand to other people.
func (s *Session) MyAddress() string {
	return s.myaddress
}

// GetUsers returns the address book, most recently active peers first.
func (s *Session) GetUsers() ([]*User, error) {
	rows, err := s.book.List()
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(rows))
	for _, r := range rows {
		u, ok := rowToUser(r)
		if !ok {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUserFromID returns one address-book entry.
func (s *Session) GetUserFromID(id UserID) (*User, error) {
	r, err := s.book.Get(id[:])
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrUnknownUser
	}
	u, ok := rowToUser(r)
	if !ok {
		return nil, ErrUnknownUser
	}
	return u, nil
}

// AddUser decodes a printable address and inserts it into the address
// book. Adding an id twice fails.
func (s *Session) AddUser(address string) error {
	u, err := DecodeAddress(address)
	if err != nil {
		return err
	}
	if err := s.book.Insert(u.ID[:], u.Hostname); err != nil {
		if errors.Is(err, store.ErrExists) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// DelUser removes a peer from the address book. A live connection to
// that peer is left alone; it retires itself on its next error.
func (s *Session) DelUser(id UserID) error {
	return s.book.Delete(id[:])
}

// SetUsername updates a peer's display name.
func (s *Session) SetUsername(id UserID, name string) error {
	return s.book.SetUsername(id[:], name)
}

// SendDM sends one text message to a peer, dialing it first if there is
// no live connection. The text is trimmed; empty messages are refused
// before any traffic happens.
func (s *Session) SendDM(id UserID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	if err := s.connect(id); err != nil {
		return err
	}
	pc := s.conns.get(id)
	if pc == nil {
		return ErrConnect
	}

	payload := wire.EncodeDirectMsg(text)
	pc.writeMu.Lock()
	err := wire.WriteFrame(pc.c, s.priv, payload)
	pc.writeMu.Unlock()
	if err != nil {
		s.conns.removeIf(id, pc)
		pc.close()
		return fmt.Errorf("send to %s: %w", id, err)
	}

	return s.book.Touch(id[:])
}

// SetNotify installs the channel receiving messages. The channel should
// be buffered: delivery never blocks, a full channel drops the message.
func (s *Session) SetNotify(ch chan<- Message) {
	s.notifyMu.Lock()
	s.notify = ch
	s.notifyMu.Unlock()
}

func (s *Session) dispatch(m Message) {
	s.notifyMu.Lock()
	ch := s.notify
	s.notifyMu.Unlock()

	if ch == nil {
		log.Warn("notify channel is not set")
		return
	}
	select {
	case ch <- m:
	default:
		log.Warn("notify channel is full, dropping message")
	}
}

// Close tears the session down: the listener, every peer connection,
// handshakes in flight and the overlay process. It returns after the
// last goroutine has exited.
func (s *Session) Close() error {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.closePending()
	s.conns.closeAll()
	s.wg.Wait()
	s.teardown()
	return nil
}

func (s *Session) teardown() {
	s.cancel()
	if s.tor != nil {
		s.tor.Stop()
		s.tor = nil
	}
	if s.book != nil {
		_ = s.book.Close()
		s.book = nil
	}
}

func (s *Session) trackPending(c net.Conn) {
	s.pendingMu.Lock()
	s.pending[c] = struct{}{}
	s.pendingMu.Unlock()
}

func (s *Session) untrackPending(c net.Conn) {
	s.pendingMu.Lock()
	delete(s.pending, c)
	s.pendingMu.Unlock()
}

func (s *Session) closePending() {
	s.pendingMu.Lock()
	for c := range s.pending {
		_ = c.Close()
	}
	s.pendingMu.Unlock()
}

func rowToUser(r *store.User) (*User, bool) {
	id, ok := UserIDFromBytes(r.ID)
	if !ok {
		return nil, false
	}
	return &User{
		ID:         id,
		Hostname:   r.Hostname,
		Username:   r.Username,
		LastUpdate: time.Unix(r.LastUpdate, 0),
	}, true
}
