package hub

import "github.com/KasumiMercury/reacomp-weaver/domain"

// session is the hub-side state for one accepted connection. Every field
// except conn is guarded by the owning hub's mutex.
type session struct {
	conn domain.Connection

	// topics mirrors the hub's topic index entries that contain this
	// session; the two are kept bidirectionally consistent.
	topics map[string]struct{}

	// alive is cleared when a liveness probe is sent and re-armed by the
	// client's pong. A probe that finds it still cleared is a timeout.
	alive bool

	// quit latches once when teardown begins and guards every re-entrant
	// cleanup path.
	quit bool

	// stop releases the heartbeat supervisor; closed exactly once, under
	// the quit latch.
	stop chan struct{}
}

func newSession(conn domain.Connection) *session {
	return &session{
		conn:   conn,
		topics: make(map[string]struct{}),
		alive:  true,
		stop:   make(chan struct{}),
	}
}
