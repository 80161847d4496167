package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

var errUnchanged = errors.New("unchanged")

type RoomDefaults struct {
	MaxParticipants int
	TTL             time.Duration
}

// RoomStore owns the persisted room lifecycle: creation with an initial
// token, status transitions and token rotation.
type RoomStore struct {
	repo     core.RoomRepository
	tokens   TokenIssuer
	events   *Notifier
	timeout  time.Duration
	defaults RoomDefaults
	now      func() time.Time
}

type RoomStoreOption func(*RoomStore)

func WithClock(now func() time.Time) RoomStoreOption {
	return func(s *RoomStore) { s.now = now }
}

func WithDefaults(d RoomDefaults) RoomStoreOption {
	return func(s *RoomStore) {
		if d.MaxParticipants > 0 {
			s.defaults.MaxParticipants = d.MaxParticipants
		}
		if d.TTL > 0 {
			s.defaults.TTL = d.TTL
		}
	}
}

func NewRoomStore(repo core.RoomRepository, tokens TokenIssuer, events *Notifier, timeout time.Duration, opts ...RoomStoreOption) *RoomStore {
	if repo == nil || tokens == nil {
		panic("room repository and token issuer are required")
	}
	s := &RoomStore{
		repo:    repo,
		tokens:  tokens,
		events:  events,
		timeout: timeout,
		defaults: RoomDefaults{
			MaxParticipants: domain.DefaultMaxParticipants,
			TTL:             domain.DefaultRoomTTL,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RoomStore) Defaults() RoomDefaults { return s.defaults }

func (s *RoomStore) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RoomStore) publish(t EventType, room *domain.Room) {
	s.events.Publish(RoomEvent{Type: t, Room: room, At: s.now()})
}

// CreateRoom persists a waiting room with a freshly minted token.
// Zero maxParticipants or ttl select the defaults.
func (s *RoomStore) CreateRoom(ctx context.Context, owner domain.ProjectID, maxParticipants int, ttl time.Duration, metadata json.RawMessage) (*domain.Room, string, time.Time, error) {
	if maxParticipants < 0 {
		return nil, "", time.Time{}, fmt.Errorf("%w: maxParticipants must be at least 1", domain.ErrValidation)
	}
	if ttl < 0 {
		return nil, "", time.Time{}, fmt.Errorf("%w: expiry must be positive", domain.ErrValidation)
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, "", time.Time{}, fmt.Errorf("%w: metadata must be valid JSON", domain.ErrValidation)
	}
	if maxParticipants == 0 {
		maxParticipants = s.defaults.MaxParticipants
	}
	if ttl == 0 {
		ttl = s.defaults.TTL
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	id := domain.RoomID(uuid.NewString())
	token, exp, err := s.tokens.Mint(ctx, id, ttl)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("mint token for room %s: %w", id, err)
	}
	room := &domain.Room{
		ID:              id,
		ProjectID:       owner,
		CreatedAt:       s.now(),
		ExpiresAt:       exp,
		MaxParticipants: maxParticipants,
		Status:          domain.RoomWaiting,
		Token:           token,
		TokenExpiresAt:  exp,
		Metadata:        metadata,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		_ = s.tokens.Revoke(ctx, id)
		return nil, "", time.Time{}, fmt.Errorf("create room %s: %w", id, err)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("project", string(owner)).Int("max", maxParticipants).Msg("room created")
	s.publish(EventRoomCreated, room.Clone())
	return room, token, exp, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return room, nil
}

// MarkActive moves a waiting room to active. Active rooms are left alone;
// a closed room yields domain.ErrRoomClosed.
func (s *RoomStore) MarkActive(ctx context.Context, id domain.RoomID) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	room, err := s.repo.Update(ctx, id, func(r *domain.Room) error {
		switch r.Status {
		case domain.RoomClosed:
			return domain.ErrRoomClosed
		case domain.RoomActive:
			return errUnchanged
		}
		now := s.now()
		r.Status = domain.RoomActive
		r.ActivatedAt = &now
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room active")
	s.publish(EventRoomActive, room)
	return nil
}

// MarkClosed closes the room. Closing a closed room is a no-op.
func (s *RoomStore) MarkClosed(ctx context.Context, id domain.RoomID, closedAt time.Time) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	room, err := s.repo.Update(ctx, id, func(r *domain.Room) error {
		if r.Status == domain.RoomClosed {
			return errUnchanged
		}
		r.Status = domain.RoomClosed
		r.ClosedAt = &closedAt
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return nil
	case err != nil:
		return err
	}
	if err := s.tokens.Revoke(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(id)).Msg("failed to revoke token")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room closed")
	s.publish(EventRoomClosed, room)
	return nil
}

// RotateToken replaces the room's current token. Zero ttl selects the default.
func (s *RoomStore) RotateToken(ctx context.Context, id domain.RoomID, ttl time.Duration) (string, time.Time, error) {
	if ttl < 0 {
		return "", time.Time{}, fmt.Errorf("%w: expiry must be positive", domain.ErrValidation)
	}
	if ttl == 0 {
		ttl = s.defaults.TTL
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if current.IsClosed() {
		return "", time.Time{}, domain.ErrRoomClosed
	}

	token, exp, err := s.tokens.Mint(ctx, id, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("mint token for room %s: %w", id, err)
	}
	room, err := s.repo.Update(ctx, id, func(r *domain.Room) error {
		if r.IsClosed() {
			return domain.ErrRoomClosed
		}
		r.Token = token
		r.TokenExpiresAt = exp
		return nil
	})
	if err != nil {
		_ = s.tokens.Revoke(ctx, id)
		return "", time.Time{}, err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("token rotated")
	s.publish(EventRoomTokenRotated, room)
	return token, exp, nil
}
