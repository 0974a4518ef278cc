package transport

const writerBatchMax = 64 * 1024

// runWriter dequeues outbound messages and coalesces them into a single
// serial write per iteration. The short timed dequeue (Config.
// WriterDequeueTimeout, 1ms by default) is load-bearing: a full blocking
// dequeue measurably stalls small follow-on messages during firmware
// upload, per the reference implementation's writer thread. A coalesced
// batch never grows past writerBatchMax bytes; a single message larger than
// that is written on its own.
func (m *Manager) runWriter() {
	defer m.wg.Done()

	port := m.portRef()
	buf := make([]byte, 0, writerBatchMax)

	// carry holds a message drained while coalescing that did not fit in the
	// current batch; it starts the next one.
	var carry []byte
	for m.alive.Load() {
		msg := carry
		carry = nil
		if msg == nil {
			var ok bool
			msg, ok = m.outbound.PopTimeout(m.cfg.WriterDequeueTimeout)
			if !ok {
				continue
			}
		}
		if !m.accepting.Load() {
			continue
		}

		buf = append(buf[:0], msg...)
		for len(buf) < writerBatchMax {
			more, ok := m.outbound.PopNowait()
			if !ok {
				break
			}
			if len(buf)+len(more) > writerBatchMax {
				carry = more
				break
			}
			buf = append(buf, more...)
		}

		if _, err := port.Write(buf); err != nil {
			m.log.Warn().Err(err).Msg("writer: serial write failed")
		}
	}
}
