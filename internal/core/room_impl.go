package core

import (
	"sync"

	"github.com/dkeye/Buzzline/internal/domain"
	"github.com/rs/zerolog/log"
)

// roster is the threadsafe in-memory peer set of one room.
// It never closes adapter-owned resources.
type roster struct {
	roomID  domain.RoomID
	mu      sync.Mutex
	members map[domain.PeerID]Member
	// dropped is set once the registry has removed an empty roster;
	// a stale pointer must not accept new members.
	dropped bool
}

func newRoster(id domain.RoomID) *roster {
	return &roster{
		roomID:  id,
		members: make(map[domain.PeerID]Member),
	}
}

// othersLocked returns every member except id. Caller holds mu.
func (r *roster) othersLocked(id domain.PeerID) []Member {
	out := make([]Member, 0, len(r.members))
	for pid, m := range r.members {
		if pid == id {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *roster) add(m Member, maxParticipants int, admit Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped {
		return errRosterDropped
	}
	if _, ok := r.members[m.Peer.ID]; ok {
		return nil
	}
	if len(r.members) >= maxParticipants {
		return domain.ErrRoomFull
	}
	if admit != nil {
		if err := admit(Transition{
			RoomID: r.roomID,
			Peer:   m.Peer,
			Others: r.othersLocked(m.Peer.ID),
			Size:   len(r.members) + 1,
		}); err != nil {
			return err
		}
	}
	r.members[m.Peer.ID] = m
	log.Info().Str("module", "core.roster").Str("room", string(r.roomID)).Str("peer", string(m.Peer.ID)).Int("size", len(r.members)).Msg("peer added")
	return nil
}

// remove deletes id and reports whether it was present and whether the roster is now empty.
func (r *roster) remove(id domain.PeerID, leave Hook) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return false, len(r.members) == 0
	}
	delete(r.members, id)
	log.Info().Str("module", "core.roster").Str("room", string(r.roomID)).Str("peer", string(id)).Int("size", len(r.members)).Msg("peer removed")
	if leave != nil {
		_ = leave(Transition{
			RoomID: r.roomID,
			Peer:   m.Peer,
			Others: r.othersLocked(id),
			Size:   len(r.members),
		})
	}
	return true, len(r.members) == 0
}

// whenEmpty runs fn while holding the lock if the roster has no members.
func (r *roster) whenEmpty(fn func() error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped {
		return false, errRosterDropped
	}
	if len(r.members) > 0 {
		return false, nil
	}
	return true, fn()
}

func (r *roster) lookup(id domain.PeerID) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	return m, ok
}

func (r *roster) snapshot() []domain.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Peer, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Peer)
	}
	return out
}

func (r *roster) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
