// Package transport implements the serial manager and its three worker
// goroutines: reader (serial -> ring), deliverer (ring -> inbound queue),
// and writer (outbound queue -> serial).
package transport

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"p1150serial/errcode"
	"p1150serial/queue"
	"p1150serial/ring"
	"p1150serial/serialport"
)

// Manager owns a serial port, the ring buffer between the reader and
// deliverer, and references to the caller-owned inbound/outbound queues. It
// implements the Idle -> Running -> Stopped lifecycle described by the
// design.
type Manager struct {
	cfg      Config
	inbound  queue.Queue
	outbound queue.Queue
	log      zerolog.Logger

	mu   sync.Mutex
	port serialport.Port
	ring *ring.Ring

	alive     atomic.Bool
	accepting atomic.Bool

	wg        sync.WaitGroup
	startedAt time.Time
}

// NewManager constructs a Manager in the Idle state. inbound and outbound
// must not be nil.
func NewManager(cfg Config, inbound, outbound queue.Queue, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		inbound:  inbound,
		outbound: outbound,
		log:      log.With().Str("component", "transport").Logger(),
	}
}

// Start opens the configured port and spawns the three workers. It is a
// no-op if the manager is already running.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alive.Load() {
		return nil
	}

	port, err := serialport.Open(serialport.Config{
		Device: m.cfg.Device,
		Baud:   m.cfg.Baud,
	})
	if err != nil {
		m.log.Error().Err(err).Str("device", m.cfg.Device).Msg("open serial port failed")
		return fmt.Errorf("%w: %v", errcode.PortOpenFailed, err)
	}

	m.port = port
	m.ring = ring.New(m.cfg.RingBytes)
	m.accepting.Store(true)
	m.alive.Store(true)
	m.startedAt = time.Now()

	m.wg.Add(3)
	go m.runReader()
	go m.runDeliverer()
	go m.runWriter()

	m.log.Info().Str("device", m.cfg.Device).Uint32("baud", m.cfg.Baud).Msg("serial manager started")
	return nil
}

// IsRunning reports whether the manager believes it has an open port with
// live workers accepting delivery.
func (m *Manager) IsRunning() bool {
	return m.alive.Load() && m.accepting.Load()
}

// Shutdown stops all workers and closes the port. It is safe to call more
// than once and from any goroutine other than a worker itself.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.alive.Load() {
		m.mu.Unlock()
		return
	}
	// Barrier: stop accepting new deliveries before workers observe alive
	// cleared, so no in-flight push lands in the inbound queue after a
	// caller believes shutdown has begun.
	m.accepting.Store(false)
	m.alive.Store(false)
	port := m.port
	r := m.ring
	m.mu.Unlock()

	if port != nil {
		port.Cancel()
	}
	if r != nil {
		r.Close()
	}

	m.wg.Wait()

	if port != nil {
		if err := port.Close(); err != nil {
			m.log.Warn().Err(err).Msg("error closing serial port")
		}
	}
	m.log.Info().Dur("uptime", time.Since(m.startedAt)).Msg("serial manager stopped")
}

func (m *Manager) portRef() serialport.Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

func (m *Manager) ringRef() *ring.Ring {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring
}

// lockReaderThread pins the calling goroutine to its OS thread for the
// duration of the reader loop, the closest portable approximation to the
// reference implementation's real-time thread priority: Go offers no
// cross-platform API to request SCHED_FIFO or THREAD_PRIORITY_TIME_CRITICAL,
// so this at least guarantees the Go runtime never migrates the reader to a
// different OS thread mid-loop.
func lockReaderThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
