package app

import (
	"fmt"

	"github.com/dkeye/callhub/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a receiver whose send queue is full.
type Policy interface {
	OnBackPressure(conn core.ConnID) BackpressureAction
}

// DropPolicy loses the frame and keeps the receiver. Real-time media
// tolerates loss.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.ConnID) BackpressureAction { return DropFrame }

// KickPolicy closes the slow receiver, which then runs the disconnect path.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.ConnID) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
