package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking.
	TrySend(Frame) error
	// IsOpen reports whether the connection still accepts frames.
	IsOpen() bool
	Close()
}

// PublishResult reports delivery stats/backpressure of a broadcast.
type PublishResult struct {
	SendTo  int
	Skipped int
	Dropped []SignalConnection
}
