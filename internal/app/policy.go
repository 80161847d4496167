package app

import (
	"fmt"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

type BackpressureAction int

const (
	KickMember BackpressureAction = iota
	DropFrame
)

// Policy decides what happens to a member whose outbound queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, member core.Member) BackpressureAction
}

// SimplePolicy disconnects slow members; the disconnect path then removes them.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, member core.Member) BackpressureAction {
	return KickMember
}

// DropPolicy keeps slow members connected and discards the frames they
// cannot take. Peers may then miss roster or negotiation updates.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room domain.RoomID, member core.Member) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a configured backpressure mode to its policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
