package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/KasumiMercury/reacomp-weaver/domain"
)

// Registry routes connections to their room's hub, creating rooms on first
// use and dropping them when the last session leaves. Rooms proceed in
// parallel; the registry lock only covers the room table itself.
type Registry struct {
	interval time.Duration
	strict   bool

	mu    sync.Mutex
	rooms map[string]*Hub
}

// NewRegistry creates an empty room table. interval and strict are handed to
// every hub it creates.
func NewRegistry(interval time.Duration, strict bool) *Registry {
	return &Registry{
		interval: interval,
		strict:   strict,
		rooms:    make(map[string]*Hub),
	}
}

// Accept registers conn with the named room's hub, creating the hub if the
// room is new, and returns the hub for the transport to drive. Registration
// happens under the registry lock so a concurrent reap of the same room can
// never strand the connection in a dropped hub.
func (r *Registry) Accept(room string, conn domain.Connection) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.rooms[room]
	if !ok {
		h = New(room, r.interval, r.strict)
		h.onEmpty = func() { r.reap(room, h) }
		r.rooms[room] = h
		slog.Info("room opened", "room", room)
	}
	h.Accept(conn)
	return h
}

// reap drops the room if it is still the registered hub and still empty. The
// emptiness re-check under the registry lock closes the race against an
// accept that arrived after the hub reported empty.
func (r *Registry) reap(room string, h *Hub) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == h && h.SessionCount() == 0 {
		delete(r.rooms, room)
		slog.Info("room closed", "room", room)
	}
}

// Stats reports the live room and session totals.
func (r *Registry) Stats() (rooms, clients int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms = len(r.rooms)
	for _, h := range r.rooms {
		clients += h.SessionCount()
	}
	return rooms, clients
}

// Close tears down every session of every room. Used on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[string]*Hub)
	r.mu.Unlock()

	for _, h := range rooms {
		h.Close()
	}
}
