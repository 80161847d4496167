package domain

import (
	"encoding/json"
	"time"
)

type (
	RoomID    string
	ProjectID string
)

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomClosed  RoomStatus = "closed"
)

const (
	DefaultMaxParticipants = 2
	DefaultRoomTTL         = 60 * time.Minute
)

// Room is the persisted record of a signaling room.
// A closed room is never modified again.
type Room struct {
	ID              RoomID          `json:"id"`
	ProjectID       ProjectID       `json:"projectId"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	MaxParticipants int             `json:"maxParticipants"`
	Status          RoomStatus      `json:"status"`
	Token           string          `json:"-"`
	TokenExpiresAt  time.Time       `json:"-"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	ActivatedAt     *time.Time      `json:"activatedAt,omitempty"`
	ClosedAt        *time.Time      `json:"closedAt,omitempty"`
}

func (r *Room) IsClosed() bool { return r.Status == RoomClosed }

// Clone returns a copy that shares no mutable state with r.
func (r *Room) Clone() *Room {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), r.Metadata...)
	}
	if r.ActivatedAt != nil {
		t := *r.ActivatedAt
		cp.ActivatedAt = &t
	}
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
