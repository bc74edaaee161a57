package libtea

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/cloudflare/circl/sign/ed448"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/trendcreate/libtea/internal/wire"
)

// Peers always listen on this port at their hidden-service hostname;
// the overlay maps it back to the peer's local chat listener.
const peerPort = "4545"

// connect ensures a live authenticated connection to id, dialing
// through the overlay's SOCKS5 interface on a table miss. Concurrent
// calls for the same peer collapse into one dial.
func (s *Session) connect(id UserID) error {
	if s.conns.get(id) != nil {
		return nil
	}

	_, err, _ := s.dials.Do(string(id[:]), func() (interface{}, error) {
		if s.conns.get(id) != nil {
			return nil, nil
		}

		u, err := s.book.Get(id[:])
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUnknownUser
		}

		d, err := proxy.SOCKS5("tcp", net.JoinHostPort("localhost", strconv.Itoa(s.socksPort)), nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		c, err := d.Dial("tcp", net.JoinHostPort(u.Hostname, peerPort))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}

		if err := s.clientHandshake(c); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}

		log.WithField("peer", id.String()).Debug("connected")
		s.register(id, c)
		return nil, nil
	})
	return err
}

// clientHandshake runs the dialing side: present our key, receive the
// challenge, return a signature over its transformed form.
func (s *Session) clientHandshake(c net.Conn) error {
	if _, err := c.Write(s.pub); err != nil {
		return fmt.Errorf("send key: %w", err)
	}

	chal := make([]byte, wire.ChallengeLen)
	if _, err := io.ReadFull(c, chal); err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}

	sig := ed448.Sign(s.priv, wire.GreetingAuth(chal), "")
	if _, err := c.Write(sig); err != nil {
		return fmt.Errorf("send signature: %w", err)
	}
	return nil
}
