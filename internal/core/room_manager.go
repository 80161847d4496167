package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Buzzline/internal/domain"
)

var errRosterDropped = errors.New("roster dropped")

// Transition describes a membership change of one room. It is handed to
// hooks while the room's lock is held, so hooks observe changes of a room
// in the order they happen.
type Transition struct {
	RoomID domain.RoomID
	Peer   domain.Peer
	// Others are the members other than Peer after the change.
	Others []Member
	// Size is the roster size after the change.
	Size int
}

// Hook reacts to a membership change. A non-nil error from an admit hook
// vetoes the join; errors from leave hooks are ignored.
type Hook func(Transition) error

// PeerRegistry holds the per-room rosters of connected peers.
// Rooms are locked independently; the registry itself notifies nobody.
type PeerRegistry struct {
	rooms sync.Map // domain.RoomID -> *roster
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{}
}

func (p *PeerRegistry) roster(id domain.RoomID) *roster {
	if v, ok := p.rooms.Load(id); ok {
		return v.(*roster)
	}
	v, _ := p.rooms.LoadOrStore(id, newRoster(id))
	return v.(*roster)
}

// AddPeer admits m into the room unless the roster already holds
// maxParticipants members, in which case domain.ErrRoomFull is returned.
func (p *PeerRegistry) AddPeer(roomID domain.RoomID, m Member, maxParticipants int, admit Hook) (domain.Peer, error) {
	for {
		r := p.roster(roomID)
		err := r.add(m, maxParticipants, admit)
		if errors.Is(err, errRosterDropped) {
			continue
		}
		if err != nil {
			p.dropIfEmpty(r)
			return domain.Peer{}, err
		}
		return m.Peer, nil
	}
}

// RemovePeer removes the peer if present. Absent peers are not an error.
func (p *PeerRegistry) RemovePeer(roomID domain.RoomID, peerID domain.PeerID, leave Hook) bool {
	v, ok := p.rooms.Load(roomID)
	if !ok {
		return false
	}
	r := v.(*roster)
	removed, empty := r.remove(peerID, leave)
	if empty {
		p.dropIfEmpty(r)
	}
	return removed
}

// WhenEmpty runs fn under the room's lock if nobody is in the room, so no
// join can interleave with it. It reports whether fn ran.
func (p *PeerRegistry) WhenEmpty(roomID domain.RoomID, fn func() error) (bool, error) {
	for {
		r := p.roster(roomID)
		ran, err := r.whenEmpty(fn)
		if errors.Is(err, errRosterDropped) {
			continue
		}
		p.dropIfEmpty(r)
		return ran, err
	}
}

func (p *PeerRegistry) dropIfEmpty(r *roster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) == 0 && !r.dropped {
		r.dropped = true
		p.rooms.CompareAndDelete(r.roomID, r)
	}
}

// List returns a snapshot of the room's roster in no particular order.
func (p *PeerRegistry) List(roomID domain.RoomID) []domain.Peer {
	v, ok := p.rooms.Load(roomID)
	if !ok {
		return []domain.Peer{}
	}
	return v.(*roster).snapshot()
}

func (p *PeerRegistry) Count(roomID domain.RoomID) int {
	v, ok := p.rooms.Load(roomID)
	if !ok {
		return 0
	}
	return v.(*roster).size()
}

// Lookup returns the member currently bound to peerID in the room.
func (p *PeerRegistry) Lookup(roomID domain.RoomID, peerID domain.PeerID) (Member, bool) {
	v, ok := p.rooms.Load(roomID)
	if !ok {
		return Member{}, false
	}
	return v.(*roster).lookup(peerID)
}
