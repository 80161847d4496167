package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/app"
	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

// Orchestrator ties the room store, token issuer, peer registry and quota
// gate together for both the HTTP API and the signaling connections.
type Orchestrator struct {
	Rooms  *app.RoomStore
	Tokens app.TokenIssuer
	Peers  *core.PeerRegistry
	Quota  app.QuotaGate
	Policy app.Policy

	// NotifyUnavailable makes relays to absent peers answer PEER_UNAVAILABLE
	// instead of being dropped silently.
	NotifyUnavailable bool
	ICEServers        []webrtc.ICEServer
	Now               func() time.Time

	// Timeout bounds each token issuer call made while joining.
	Timeout time.Duration
	// CloseRetries and CloseBackoff control how a room whose close failed
	// is closed again once its last peer is gone.
	CloseRetries int
	CloseBackoff time.Duration

	closing sync.WaitGroup
}

const (
	defaultTimeout      = 3 * time.Second
	defaultCloseRetries = 5
	defaultCloseBackoff = 200 * time.Millisecond
)

func (o *Orchestrator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	d := o.Timeout
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Wait blocks until pending room closes have finished or given up.
func (o *Orchestrator) Wait() {
	o.closing.Wait()
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CreateRoomParams are the caller-supplied room options; nil selects the default.
type CreateRoomParams struct {
	MaxParticipants  *int
	ExpiresInMinutes *int
	Metadata         json.RawMessage
}

// Ticket is what an out-of-band caller hands to an end-user client.
type Ticket struct {
	RoomID    domain.RoomID `json:"roomId"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// CreateRoom checks the owner's quota and creates a room for the project.
func (o *Orchestrator) CreateRoom(ctx context.Context, project *domain.Project, p CreateRoomParams) (Ticket, error) {
	decision := o.Quota.CheckRoomCreationAllowed(ctx, project.UserID)
	if !decision.Allowed {
		return Ticket{}, fmt.Errorf("%w: %s", domain.ErrUsageLimit, decision.Reason)
	}

	seats := 0
	if p.MaxParticipants != nil {
		if *p.MaxParticipants < 1 {
			return Ticket{}, fmt.Errorf("%w: maxParticipants must be at least 1", domain.ErrValidation)
		}
		seats = *p.MaxParticipants
	}
	effective := seats
	if effective == 0 {
		effective = o.Rooms.Defaults().MaxParticipants
	}
	if decision.MaxParticipants > 0 && effective > decision.MaxParticipants {
		return Ticket{}, fmt.Errorf("%w: the %s plan allows at most %d participants", domain.ErrValidation, decision.Plan, decision.MaxParticipants)
	}

	var ttl time.Duration
	if p.ExpiresInMinutes != nil {
		if *p.ExpiresInMinutes < 1 {
			return Ticket{}, fmt.Errorf("%w: expiresInMinutes must be at least 1", domain.ErrValidation)
		}
		ttl = time.Duration(*p.ExpiresInMinutes) * time.Minute
	}

	room, token, exp, err := o.Rooms.CreateRoom(ctx, project.ID, seats, ttl, p.Metadata)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{RoomID: room.ID, Token: token, ExpiresAt: exp}, nil
}

// OwnedRoom returns the room if it belongs to the project. Rooms of other
// projects are reported as not found.
func (o *Orchestrator) OwnedRoom(ctx context.Context, project *domain.Project, id domain.RoomID) (*domain.Room, error) {
	room, err := o.Rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.ProjectID != project.ID {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// RoomView is a room together with its live roster.
type RoomView struct {
	*domain.Room
	Participants int           `json:"participants"`
	Peers        []domain.Peer `json:"peers"`
}

func (o *Orchestrator) DescribeRoom(ctx context.Context, project *domain.Project, id domain.RoomID) (RoomView, error) {
	room, err := o.OwnedRoom(ctx, project, id)
	if err != nil {
		return RoomView{}, err
	}
	peers := o.Peers.List(id)
	return RoomView{Room: room, Participants: len(peers), Peers: peers}, nil
}

func (o *Orchestrator) ListPeers(ctx context.Context, project *domain.Project, id domain.RoomID) ([]domain.Peer, error) {
	if _, err := o.OwnedRoom(ctx, project, id); err != nil {
		return nil, err
	}
	return o.Peers.List(id), nil
}

// IssueJoinToken mints a fresh token for an existing, open room that still
// has a free seat.
func (o *Orchestrator) IssueJoinToken(ctx context.Context, project *domain.Project, id domain.RoomID) (Ticket, error) {
	room, err := o.OwnedRoom(ctx, project, id)
	if err != nil {
		return Ticket{}, err
	}
	if room.IsClosed() {
		return Ticket{}, domain.ErrRoomClosed
	}
	if o.Peers.Count(id) >= room.MaxParticipants {
		return Ticket{}, domain.ErrRoomFull
	}
	token, exp, err := o.Rooms.RotateToken(ctx, id, 0)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{RoomID: id, Token: token, ExpiresAt: exp}, nil
}

func (o *Orchestrator) send(m core.Member, roomID domain.RoomID, frame core.Frame) {
	err := m.Conn.TrySend(frame)
	if err == nil || !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(roomID, m) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("room", string(roomID)).Str("peer", string(m.Peer.ID)).Msg("kicking slow member")
		m.Conn.Close()
	case app.DropFrame:
		log.Debug().Str("module", "orch").Str("room", string(roomID)).Str("peer", string(m.Peer.ID)).Msg("dropping frame for slow member")
	}
}

func (o *Orchestrator) fanOut(roomID domain.RoomID, members []core.Member, frame core.Frame) {
	for _, m := range members {
		o.send(m, roomID, frame)
	}
	log.Debug().Str("module", "orch").Str("room", string(roomID)).Int("sent_to", len(members)).Msg("broadcast")
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode message")
		return nil
	}
	return b
}
