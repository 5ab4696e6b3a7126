package media

import "runtime"

const maxWorkers = 4

// Config holds engine-wide settings shared by all workers.
type Config struct {
	NumWorkers                      int
	ListenIP                        string
	AnnouncedIP                     string
	RTCMinPort                      uint16
	RTCMaxPort                      uint16
	MaxIncomingBitrate              int
	InitialAvailableOutgoingBitrate int
	LogLevel                        string
}

// WorkerCount is min(available parallelism, 4), optionally lowered by
// NumWorkers.
func (c Config) WorkerCount() int {
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	if c.NumWorkers > 0 && c.NumWorkers < n {
		n = c.NumWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// PortRange splits [RTCMinPort, RTCMaxPort] into n contiguous slices and
// returns slice idx. A zero range means "any port".
func (c Config) PortRange(idx, n int) (uint16, uint16) {
	if c.RTCMinPort == 0 || c.RTCMaxPort < c.RTCMinPort || n < 1 {
		return 0, 0
	}
	total := int(c.RTCMaxPort) - int(c.RTCMinPort) + 1
	span := total / n
	if span == 0 {
		return c.RTCMinPort, c.RTCMaxPort
	}
	lo := int(c.RTCMinPort) + idx*span
	hi := lo + span - 1
	if idx == n-1 {
		hi = int(c.RTCMaxPort)
	}
	return uint16(lo), uint16(hi)
}
