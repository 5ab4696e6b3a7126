package media

import "errors"

var (
	ErrWorkerClosed       = errors.New("worker closed")
	ErrWorkerDied         = errors.New("worker died")
	ErrRouterClosed       = errors.New("router closed")
	ErrTransportClosed    = errors.New("transport closed")
	ErrAlreadyConnected   = errors.New("transport already connected")
	ErrUnsupportedKind    = errors.New("unsupported media kind")
	ErrUnsupportedCodec   = errors.New("unsupported codec")
	ErrMissingSsrc        = errors.New("rtp parameters carry no ssrc")
	ErrProducerNotFound   = errors.New("producer not found")
	ErrCannotConsume      = errors.New("receiver cannot consume producer")
	ErrGatheringTimedOut  = errors.New("ice gathering timed out")
	ErrNoRemoteCandidates = errors.New("remote ice parameters missing")
)
