package hub

import (
	"time"

	"github.com/KasumiMercury/reacomp-weaver/protocol"
)

// superviseHeartbeat probes s on a fixed cadence until the session quits.
// The protocol tolerates exactly one outstanding probe: a tick that finds
// the previous ping unanswered evicts the session. The stop channel, closed
// by teardown, releases the supervisor on every exit path.
func (h *Hub) superviseHeartbeat(s *session) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !h.probe(s) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

// probe performs one heartbeat tick and reports whether the supervisor
// should keep running. A timer firing against a torn-down session is a
// defensive no-op.
func (h *Hub) probe(s *session) bool {
	h.mu.Lock()

	if s.quit {
		h.mu.Unlock()
		return false
	}

	if !s.alive {
		empty := h.teardownLocked(s, "heartbeat timeout")
		h.mu.Unlock()
		if empty {
			h.notifyEmpty()
		}
		return false
	}

	s.alive = false
	err := s.conn.Send(protocol.PingFrame)
	var empty bool
	if err != nil {
		empty = h.teardownLocked(s, "ping send failed")
	}
	h.mu.Unlock()

	if empty {
		h.notifyEmpty()
	}
	return err == nil
}
