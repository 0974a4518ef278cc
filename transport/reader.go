package transport

import (
	"time"

	"p1150serial/cobs"
	"p1150serial/errcode"
	"p1150serial/serialport"
)

const (
	readerScratchSize = 16 * 1024
	readerFrameMax    = 64 * 1024
)

// runReader drains the serial port, splits the byte stream on 0x00
// delimiters, COBS-decodes each frame, and pushes decoded payloads into the
// ring. Modeled on the reference implementation's reader_thread (adaptive
// idle backoff capped at 3ms, resync-on-overflow framing).
func (m *Manager) runReader() {
	defer m.wg.Done()
	unlock := lockReaderThread()
	defer unlock()

	port := m.portRef()
	r := m.ringRef()

	scratch := make([]byte, readerScratchSize)
	frameBuf := make([]byte, 0, readerFrameMax)
	decodeScratch := make([]byte, readerFrameMax)

	backoff := time.Duration(0)
	const backoffStep = time.Millisecond

	for m.alive.Load() {
		n, err := port.Read(scratch)
		if err != nil {
			m.log.Warn().Err(err).Msg("reader: serial read error")
			if err == serialport.ErrPortLost || err == serialport.ErrClosed {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if n == 0 {
			ev := port.WaitReadable(3 * time.Millisecond)
			if ev == serialport.EventData {
				backoff = 0
				continue
			}
			if backoff < m.cfg.ReaderIdleMaxBackoff {
				backoff += backoffStep
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		for _, b := range scratch[:n] {
			if b != 0x00 {
				if len(frameBuf) >= readerFrameMax {
					// Resync: drop the oversized, malformed accumulation.
					frameBuf = frameBuf[:0]
					continue
				}
				frameBuf = append(frameBuf, b)
				continue
			}
			if len(frameBuf) > 0 && m.accepting.Load() {
				decoded, derr := cobs.Decode(decodeScratch, frameBuf)
				if derr != nil {
					m.log.Debug().Err(errcode.FrameMalformed).AnErr("cause", derr).Msg("reader: dropping malformed frame")
				} else if !r.Push(decodeScratch[:decoded]) {
					m.log.Debug().Err(errcode.RingFull).Msg("reader: ring full, frame dropped")
				}
			}
			frameBuf = frameBuf[:0]
		}
	}
}
