package app

import "github.com/dkeye/Parley/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a recipient whose send failed.
type Policy interface {
	OnBackPressure(id domain.ConnectionID, err error) BackpressureAction
}

// DropPolicy skips the frame and keeps the recipient.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ConnectionID, error) BackpressureAction {
	return DropFrame
}

// KickPolicy closes recipients that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.ConnectionID, error) BackpressureAction {
	return KickMember
}
