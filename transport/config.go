package transport

import "time"

// Config configures a Manager instance. Zero-value fields are filled in by
// DefaultConfig's values when passed through config.Load; constructing a
// Config directly expects the caller to set every field explicitly.
type Config struct {
	Device         string
	Baud           uint32
	RingBytes      int
	MaxBatchFrames int

	ReaderIdleMaxBackoff time.Duration
	DeliverWaitTimeout   time.Duration
	WriterDequeueTimeout time.Duration
	ShutdownJoinTimeout  time.Duration
}

// DefaultConfig returns the numeric defaults named throughout the design:
// a 1 MiB ring, 256-frame delivery batches, and the reader/writer timing
// constants the C reference implementation's threads use.
func DefaultConfig(device string, baud uint32) Config {
	return Config{
		Device:               device,
		Baud:                 baud,
		RingBytes:            1 << 20,
		MaxBatchFrames:       256,
		ReaderIdleMaxBackoff: 3 * time.Millisecond,
		DeliverWaitTimeout:   10 * time.Millisecond,
		WriterDequeueTimeout: time.Millisecond,
		ShutdownJoinTimeout:  200 * time.Millisecond,
	}
}
