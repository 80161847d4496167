package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

type EventType string

const (
	EventRoomCreated      EventType = "room.created"
	EventRoomActive       EventType = "room.active"
	EventRoomClosed       EventType = "room.closed"
	EventRoomTokenRotated EventType = "room.token_rotated"
)

// RoomEvent is a room state-change notification for collaborators.
type RoomEvent struct {
	Type EventType
	Room *domain.Room
	At   time.Time
}

// Notifier fans room events out to subscribers off the caller's goroutine.
// A panicking subscriber is recovered and logged.
type Notifier struct {
	mu       sync.RWMutex
	subs     []func(RoomEvent)
	inflight sync.WaitGroup
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(fn func(RoomEvent)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) Publish(ev RoomEvent) {
	if n == nil {
		return
	}
	n.mu.RLock()
	subs := slices.Clone(n.subs)
	n.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		var wg conc.WaitGroup
		for _, fn := range subs {
			wg.Go(func() { fn(ev) })
		}
		if r := wg.WaitAndRecover(); r != nil {
			log.Error().Str("module", "app.events").Str("event", string(ev.Type)).Str("panic", r.String()).Msg("subscriber panicked")
		}
	}()
}

// Wait blocks until every published event has been delivered.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

// LogEvents writes every room event to the log.
func LogEvents(ev RoomEvent) {
	log.Info().
		Str("module", "app.events").
		Str("event", string(ev.Type)).
		Str("room", string(ev.Room.ID)).
		Str("project", string(ev.Room.ProjectID)).
		Str("status", string(ev.Room.Status)).
		Msg("room event")
}

// UsageRecorder returns a subscriber that stores the billed duration of
// every room that closes after having been active.
func UsageRecorder(usage core.UsageSource, timeout time.Duration) func(RoomEvent) {
	return func(ev RoomEvent) {
		if ev.Type != EventRoomClosed || ev.Room.ActivatedAt == nil || ev.Room.ClosedAt == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		rec := domain.UsageRecord{
			RoomID:          ev.Room.ID,
			ProjectID:       ev.Room.ProjectID,
			DurationSeconds: int64(ev.Room.ClosedAt.Sub(*ev.Room.ActivatedAt).Seconds()),
			CreatedAt:       *ev.Room.ClosedAt,
		}
		if err := usage.RecordUsage(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "app.events").Str("room", string(rec.RoomID)).Msg("failed to record usage")
		}
	}
}
