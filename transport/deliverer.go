package transport

// runDeliverer pops frames from the ring and pushes them into the inbound
// application queue. Frames are drained from the ring in batches under a
// single lock acquisition (ring.PopBatchTimeout) before any queue push happens, so
// a slow or back-pressured queue push can never hold the ring lock. The
// ring wait is bounded by Config.DeliverWaitTimeout so this loop re-checks
// alive on its own instead of depending on Shutdown's Close() to wake it.
func (m *Manager) runDeliverer() {
	defer m.wg.Done()

	r := m.ringRef()

	for m.alive.Load() {
		batch := r.PopBatchTimeout(m.cfg.MaxBatchFrames, m.cfg.DeliverWaitTimeout)
		if batch == nil {
			// Ring was closed with nothing pending, or the wait timed out.
			continue
		}
		for _, frame := range batch {
			if !m.accepting.Load() {
				continue
			}
			m.inbound.Push(frame)
		}
	}

	// Final drain: empty the ring so it doesn't retain stale bytes across a
	// restart, but never push past the accepting barrier Shutdown just
	// established — once acceptingDelivery is false, nothing may land in
	// the application-facing queue, matching the original's drain, which
	// frees leftover ring entries on exit instead of delivering them.
	for {
		batch := r.PopBatch(m.cfg.MaxBatchFrames)
		if len(batch) == 0 {
			return
		}
		if !m.accepting.Load() {
			continue
		}
		for _, frame := range batch {
			m.inbound.Push(frame)
		}
	}
}
