package domain

import "errors"

const MaxDisplayNameLen = 64

var ErrDisplayNameTooLong = errors.New("display name too long")

type PeerID string

// Peer is one connected participant of a room.
// It lives only as long as its connection and is never persisted.
type Peer struct {
	ID          PeerID   `json:"peerId"`
	DisplayName string   `json:"displayName,omitempty"`
	Producers   []string `json:"producers"`
}

// NewPeer builds a peer with an empty producer list.
func NewPeer(id PeerID, displayName string) (Peer, error) {
	if len(displayName) > MaxDisplayNameLen {
		return Peer{}, ErrDisplayNameTooLong
	}
	return Peer{ID: id, DisplayName: displayName, Producers: []string{}}, nil
}
