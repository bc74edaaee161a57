package libtea

import (
	"crypto/rand"
	"errors"
	"io"
	"net"

	"github.com/cloudflare/circl/sign/ed448"
	log "github.com/sirupsen/logrus"

	"github.com/trendcreate/libtea/internal/wire"
)

// acceptLoop serves the loopback listener the overlay forwards hidden
// service connections to. Accept errors never tear the listener down.
func (s *Session) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Debug("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// serveConn runs the receiving side of the handshake. Rejections are
// silent toward the peer: the socket just closes. The socket is tracked
// on the session until it is handed to the connection table, so closing
// the session unblocks handshakes still in flight.
func (s *Session) serveConn(c net.Conn) {
	s.trackPending(c)
	defer s.untrackPending(c)
	if s.ctx.Err() != nil {
		_ = c.Close()
		return
	}

	var key [wire.KeyLen]byte
	if _, err := io.ReadFull(c, key[:]); err != nil {
		_ = c.Close()
		return
	}
	id := UserID(key)

	// Only peers already in the address book may complete the handshake.
	u, err := s.book.Get(id[:])
	if err != nil || u == nil {
		log.WithField("peer", id.String()).Debug("rejected unknown peer")
		_ = c.Close()
		return
	}

	chal := make([]byte, wire.ChallengeLen)
	if _, err := rand.Read(chal); err != nil {
		log.WithError(err).Error("generate challenge")
		_ = c.Close()
		return
	}
	if _, err := c.Write(chal); err != nil {
		_ = c.Close()
		return
	}

	sig := make([]byte, wire.SigLen)
	if _, err := io.ReadFull(c, sig); err != nil {
		_ = c.Close()
		return
	}
	if !ed448.Verify(id.PublicKey(), wire.GreetingAuth(chal), sig, "") {
		log.WithField("peer", id.String()).Debug("rejected bad handshake signature")
		_ = c.Close()
		return
	}

	log.WithField("peer", id.String()).Debug("inbound connection authenticated")
	s.register(id, c)
}
