// Package serialport provides the serial port adapter the transport workers
// drive directly: non-blocking reads, bounded-wait writes, and an RX-ready
// wait primitive, behind a small interface with a POSIX backend and a
// portable fallback.
package serialport

import "time"

// RXEvent is the result of WaitReadable.
type RXEvent int

const (
	EventTimeout RXEvent = iota
	EventData
	EventError
)

// Parity selects the serial line's parity bit, adapted from the teacher's
// types.Parity enum (same values and ordering, relocated here since the
// rest of that package's session/bus types don't apply to this domain).
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

// Config describes how to open a port.
type Config struct {
	Device   string
	Baud     uint32
	DataBits uint8 // 5..8, default 8
	StopBits uint8 // 1..2, default 1
	Parity   Parity
}

// SupportedBauds is the baud table this package accepts, extended beyond
// the original's 9600..115200 range with the higher rates the fallback
// backend's driver also supports.
var SupportedBauds = []uint32{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// BaudSupported reports whether b appears in SupportedBauds, so callers
// like config validation can reject an unsupported rate before Open does.
func BaudSupported(b uint32) bool {
	for _, v := range SupportedBauds {
		if v == b {
			return true
		}
	}
	return false
}

// Port is the capability surface the reader and writer workers use. A Port
// implementation must support concurrent use by one reader and one writer
// goroutine.
type Port interface {
	// Read performs a best-effort non-blocking drain of up to len(p) bytes,
	// bounded by a short internal wait for any in-flight completion. It
	// returns 0, nil if nothing was available.
	Read(p []byte) (int, error)
	// Write writes all of p, bounded by an internal timeout. It returns the
	// number of bytes actually written, which is less than len(p) only on
	// timeout or error.
	Write(p []byte) (int, error)
	// WaitReadable blocks up to timeout for incoming data.
	WaitReadable(timeout time.Duration) RXEvent
	// Cancel aborts any in-flight Read/Write/WaitReadable so they return
	// promptly; used during shutdown.
	Cancel()
	// Close releases the underlying device.
	Close() error
}

// Open opens cfg.Device at cfg.Baud using the best backend for the current
// platform.
func Open(cfg Config) (Port, error) {
	if !BaudSupported(cfg.Baud) {
		return nil, ErrUnsupportedBaud
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	return open(cfg)
}
