package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Buzzline/internal/domain"
)

// Frame is a raw encoded protocol message.
type Frame []byte

// SignalConnection abstracts the messaging transport of one peer.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Member binds a peer to its transport endpoint.
// This is what a roster stores and fans out to.
type Member struct {
	Peer domain.Peer
	Conn SignalConnection
}

// RoomRepository persists room records.
// Implementations return domain.ErrRoomNotFound for unknown ids.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// Update loads the room, applies fn and stores the result atomically.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error)
}

// UsageSource is the external plan and usage ledger consulted by the quota gate.
type UsageSource interface {
	PlanOf(ctx context.Context, user domain.UserID) (domain.PlanName, error)
	MinutesUsedSince(ctx context.Context, user domain.UserID, since time.Time) (int, error)
	RecordUsage(ctx context.Context, rec domain.UsageRecord) error
}

// ProjectResolver maps a project API key to its project.
type ProjectResolver interface {
	ByAPIKey(ctx context.Context, apiKey string) (*domain.Project, error)
}

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)
