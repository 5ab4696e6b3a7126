package media

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type trackState int32

const (
	trackPending trackState = iota
	trackLive
	trackDelete
)

// outTrack is the producer-facing half of a consumer: the producer's relay
// loop writes into it while the consumer's sender drains it to the client.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // trackPending until the sender is bound
}

func newOutTrack(track *webrtc.TrackLocalStaticRTP) *outTrack {
	return &outTrack{track: track}
}

func (ot *outTrack) State() trackState { return trackState(ot.state.Load()) }

func (ot *outTrack) markLive() {
	ot.state.CompareAndSwap(int32(trackPending), int32(trackLive))
}

func (ot *outTrack) markDelete() { ot.state.Store(int32(trackDelete)) }
