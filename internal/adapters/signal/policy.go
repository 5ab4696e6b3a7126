package signal

import (
	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what happens to a peer whose send queue is full during a
// broadcast.
type Policy interface {
	OnBackPressure(code domain.RoomCode, conn core.SignalConnection) BackpressureAction
}

// DropPolicy loses the frame and keeps the peer connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomCode, core.SignalConnection) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects peers that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomCode, core.SignalConnection) BackpressureAction {
	return KickPeer
}

// PolicyByName maps the slow_peer config value to a policy.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
