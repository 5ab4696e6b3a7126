package core

import (
	"context"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// Worker is one media-processing unit. It owns every router it creates.
type Worker interface {
	Index() int
	// CreateRouter builds a routing context advertising exactly the given codecs.
	CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (Router, error)
	// Died yields once if the worker terminates unexpectedly.
	Died() <-chan error
	Close()
}

// Router is a per-room routing context bound to one worker.
type Router interface {
	ID() string
	WorkerIndex() int
	RtpCapabilities() domain.RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether a receiver with caps can decode producerID.
	CanConsume(producerID string, caps domain.RtpCapabilities) bool
	Close()
	Closed() bool
}

// Transport is a negotiated network path. Closing it closes every producer
// and consumer created on it before the close callbacks return.
type Transport interface {
	ID() string
	Info() domain.TransportInfo
	Connect(ctx context.Context, remote domain.RemoteParameters) error
	Produce(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps domain.RtpCapabilities) (Consumer, error)
	OnClose(func())
	Close()
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	OnTransportClose(func())
	Close()
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	OnTransportClose(func())
	OnProducerClose(func())
	Close()
}

// WorkerSource hands out workers for new routing contexts.
type WorkerSource interface {
	NextWorker() Worker
}
