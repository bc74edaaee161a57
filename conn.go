package libtea

import (
	"bufio"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/trendcreate/libtea/internal/wire"
)

// peerConn is the live authenticated stream to one peer. The write side
// is shared and guarded for exactly one frame at a time; the read side
// belongs to the reader goroutine and never escapes it.
type peerConn struct {
	writeMu sync.Mutex
	c       net.Conn
}

func (pc *peerConn) close() {
	_ = pc.c.Close()
}

// connTable maps peer ids to live connections. At most one entry per
// peer: inserting over an existing entry retires it.
type connTable struct {
	mu    sync.RWMutex
	conns map[UserID]*peerConn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[UserID]*peerConn)}
}

func (t *connTable) get(id UserID) *peerConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[id]
}

// insert stores pc and returns the replaced entry, if any. Closing the
// replaced connection is the caller's job; its reader goroutine then
// unblocks and exits.
func (t *connTable) insert(id UserID, pc *peerConn) *peerConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.conns[id]
	t.conns[id] = pc
	return old
}

// removeIf deletes the entry for id only while it still maps to pc, so
// a reader retiring itself cannot evict a replacement connection.
func (t *connTable) removeIf(id UserID, pc *peerConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[id] == pc {
		delete(t.conns, id)
	}
}

func (t *connTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, pc := range t.conns {
		pc.close()
		delete(t.conns, id)
	}
}

// register records an authenticated connection and starts draining its
// read side. A previous connection to the same peer is replaced.
func (s *Session) register(id UserID, c net.Conn) {
	pc := &peerConn{c: c}
	if old := s.conns.insert(id, pc); old != nil {
		old.close()
	}
	if s.ctx.Err() != nil {
		// The session is closing; the table may already be drained.
		s.conns.removeIf(id, pc)
		pc.close()
		return
	}
	s.wg.Add(1)
	go s.readLoop(id, pc)
}

// readLoop drains one connection until the first transport, protocol or
// authentication failure, then retires its table entry.
func (s *Session) readLoop(id UserID, pc *peerConn) {
	defer s.wg.Done()
	defer func() {
		s.conns.removeIf(id, pc)
		pc.close()
		log.WithField("peer", id.String()).Debug("connection closed")
	}()

	pub := id.PublicKey()
	r := bufio.NewReader(pc.c)
	for {
		payload, err := wire.ReadFrame(r, pub)
		if err != nil {
			log.WithField("peer", id.String()).WithError(err).Debug("read frame")
			return
		}
		text, err := wire.DecodeDirectMsg(payload)
		if err != nil {
			log.WithField("peer", id.String()).WithError(err).Error("bad message")
			return
		}

		// stub: save message history
		if err := s.book.Touch(id[:]); err != nil {
			log.WithError(err).Error("touch lastupdate")
		}
		s.dispatch(DirectMsg{From: id, Text: text})
	}
}
