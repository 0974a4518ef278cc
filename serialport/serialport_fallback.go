//go:build !linux && !darwin

package serialport

import (
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// fallbackPort layers Port over github.com/goburrow/serial for platforms
// without a direct POSIX termios backend. It trades the precise
// cancel-on-timeout and RTS/DTR-pulse semantics of the unix backend for
// portability; WaitReadable degrades to a short poll-sleep since
// goburrow/serial exposes no event primitive.
type fallbackPort struct {
	mu     sync.Mutex
	port   serial.Port
	closed bool
}

func open(cfg Config) (Port, error) {
	parity := "N"
	switch cfg.Parity {
	case ParityEven:
		parity = "E"
	case ParityOdd:
		parity = "O"
	}
	p, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: int(cfg.Baud),
		DataBits: int(cfg.DataBits),
		StopBits: int(cfg.StopBits),
		Parity:   parity,
		Timeout:  3 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return &fallbackPort{port: p}, nil
}

func (p *fallbackPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	n, err := p.port.Read(buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (p *fallbackPort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return p.port.Write(buf)
}

func (p *fallbackPort) WaitReadable(timeout time.Duration) RXEvent {
	time.Sleep(timeout)
	return EventTimeout
}

func (p *fallbackPort) Cancel() {}

func (p *fallbackPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}
