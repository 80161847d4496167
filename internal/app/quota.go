package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Reason  string
	Plan    domain.PlanName
	// MaxParticipants is the largest room the owner's plan allows.
	MaxParticipants int
}

// QuotaGate approves room creation before any room is stored.
type QuotaGate interface {
	CheckRoomCreationAllowed(ctx context.Context, owner domain.UserID) Decision
}

// PlanQuota compares this month's consumed minutes with the owner's plan.
// Any failure of the usage source, including a timeout, denies.
type PlanQuota struct {
	usage   core.UsageSource
	timeout time.Duration
	now     func() time.Time
}

func NewPlanQuota(usage core.UsageSource, timeout time.Duration, now func() time.Time) *PlanQuota {
	if now == nil {
		now = time.Now
	}
	return &PlanQuota{usage: usage, timeout: timeout, now: now}
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func (q *PlanQuota) CheckRoomCreationAllowed(ctx context.Context, owner domain.UserID) Decision {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	logCtx := log.With().Str("module", "app.quota").Str("user", string(owner)).Logger()

	plan, err := q.usage.PlanOf(ctx, owner)
	if err != nil {
		logCtx.Error().Err(err).Msg("plan lookup failed, denying")
		return Decision{Reason: "usage check unavailable"}
	}
	limits := domain.LimitsFor(plan)
	used, err := q.usage.MinutesUsedSince(ctx, owner, startOfMonth(q.now()))
	if err != nil {
		logCtx.Error().Err(err).Msg("usage lookup failed, denying")
		return Decision{Reason: "usage check unavailable", Plan: plan}
	}
	if limits.MinutesPerMonth != domain.Unlimited && used >= limits.MinutesPerMonth {
		logCtx.Info().Str("plan", string(plan)).Int("used", used).Msg("monthly minutes exhausted")
		return Decision{
			Reason:          fmt.Sprintf("monthly limit of %d minutes reached on the %s plan", limits.MinutesPerMonth, plan),
			Plan:            plan,
			MaxParticipants: limits.MaxParticipants,
		}
	}
	return Decision{Allowed: true, Plan: plan, MaxParticipants: limits.MaxParticipants}
}
