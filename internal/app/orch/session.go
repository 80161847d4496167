package orch

import (
	"sync"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

// Session is the protocol state of one signaling connection.
// It is unjoined until a join succeeds and is bound to at most one room.
type Session struct {
	ID   domain.PeerID
	Conn core.SignalConnection

	mu     sync.Mutex
	roomID domain.RoomID
	peer   domain.Peer
}

func NewSession(id domain.PeerID, conn core.SignalConnection) *Session {
	return &Session{ID: id, Conn: conn}
}

// Room returns the bound room, or false while unjoined.
func (s *Session) Room() (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.roomID != ""
}
