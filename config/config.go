// Package config loads the TOML settings file for the serial transport and
// log decoder, grounded on the teacher pack's cmd/miragectl config loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"p1150serial/serialport"
	"p1150serial/transport"
)

// TransportSettings mirrors transport.Config with TOML tags and millisecond
// durations (TOML has no native duration type).
type TransportSettings struct {
	Port                 string `toml:"port"`
	Baud                 uint32 `toml:"baud"`
	RingBytes            int    `toml:"ring_bytes"`
	MaxBatchFrames       int    `toml:"max_batch_frames"`
	DeliverWaitTimeoutMS int    `toml:"deliver_wait_timeout_ms"`
	WriterDequeueMS      int    `toml:"writer_dequeue_timeout_ms"`
}

// LogSymSettings configures the log-frame decoder.
type LogSymSettings struct {
	SymbolTablePath string `toml:"symbol_table_path"`
}

// Settings is the top-level TOML document shape.
type Settings struct {
	Transport TransportSettings `toml:"transport"`
	LogSym    LogSymSettings    `toml:"logsym"`
}

// ErrInvalidRingBytes is returned when ring_bytes is negative, zero, or not
// a power of two.
var ErrInvalidRingBytes = errors.New("config: ring_bytes must be a positive power of two")

// ErrInvalidBaud is returned when baud does not name a rate the serial
// backend supports.
var ErrInvalidBaud = errors.New("config: unsupported baud rate")

// Default returns the settings that an empty or partial TOML file should
// resolve to.
func Default() Settings {
	return Settings{
		Transport: TransportSettings{
			Baud:                 115200,
			RingBytes:            1 << 20,
			MaxBatchFrames:       256,
			DeliverWaitTimeoutMS: 10,
			WriterDequeueMS:      1,
		},
	}
}

// Load parses the TOML file at path, applying Default's values for any
// field left unset and clamping out-of-range values rather than failing,
// except for the handful of structurally invalid cases validate rejects
// outright: a negative or non-power-of-two ring size, and an unsupported
// baud rate.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, err
	}
	if err := validate(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func validate(s *Settings) error {
	if s.Transport.RingBytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRingBytes, s.Transport.RingBytes)
	}
	if s.Transport.RingBytes&(s.Transport.RingBytes-1) != 0 {
		return ErrInvalidRingBytes
	}
	if !serialport.BaudSupported(s.Transport.Baud) {
		return fmt.Errorf("%w: %d", ErrInvalidBaud, s.Transport.Baud)
	}
	if s.Transport.MaxBatchFrames < 1 {
		s.Transport.MaxBatchFrames = 1
	} else if s.Transport.MaxBatchFrames > 4096 {
		s.Transport.MaxBatchFrames = 4096
	}
	if s.Transport.DeliverWaitTimeoutMS <= 0 {
		s.Transport.DeliverWaitTimeoutMS = 10
	}
	if s.Transport.WriterDequeueMS <= 0 {
		s.Transport.WriterDequeueMS = 1
	}
	return nil
}

// TransportConfig converts the TOML-shaped settings into a
// transport.Config ready to hand to transport.NewManager. An empty Device is
// not rejected here, since a config file may legitimately be prepared
// before a device is plugged in; Start then fails with a port-open error.
func (s Settings) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig(s.Transport.Port, s.Transport.Baud)
	cfg.RingBytes = s.Transport.RingBytes
	cfg.MaxBatchFrames = s.Transport.MaxBatchFrames
	cfg.DeliverWaitTimeout = time.Duration(s.Transport.DeliverWaitTimeoutMS) * time.Millisecond
	cfg.WriterDequeueTimeout = time.Duration(s.Transport.WriterDequeueMS) * time.Millisecond
	return cfg
}
