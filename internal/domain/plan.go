package domain

import "math"

type PlanName string

const (
	PlanFree       PlanName = "free"
	PlanStarter    PlanName = "starter"
	PlanGrowth     PlanName = "growth"
	PlanEnterprise PlanName = "enterprise"
)

// Unlimited marks a plan limit that is never reached.
const Unlimited = math.MaxInt

type PlanLimit struct {
	MinutesPerMonth int
	MaxParticipants int
}

var planLimits = map[PlanName]PlanLimit{
	PlanFree:       {MinutesPerMonth: 100, MaxParticipants: 2},
	PlanStarter:    {MinutesPerMonth: 1_000, MaxParticipants: 4},
	PlanGrowth:     {MinutesPerMonth: 5_000, MaxParticipants: 10},
	PlanEnterprise: {MinutesPerMonth: Unlimited, MaxParticipants: 50},
}

// LimitsFor returns the limits of a plan; unknown plans get the free tier.
func LimitsFor(plan PlanName) PlanLimit {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}
