// Package hub implements the signaling core: per-room hubs that track topic
// subscriptions, fan published frames out to subscribers, and evict dead
// connections through a ping/pong heartbeat, plus the registry that routes
// connections to their room.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/KasumiMercury/reacomp-weaver/domain"
	"github.com/KasumiMercury/reacomp-weaver/protocol"
)

// Hub is the signaling authority for one room. It owns the session table and
// the topic index and serializes every state transition behind a single
// mutex, so each operation is a plain synchronous mutation. Rooms are fully
// independent and never share state.
type Hub struct {
	room     string
	interval time.Duration
	strict   bool

	mu       sync.Mutex
	sessions map[string]*session
	topics   map[string]map[string]*session

	// onEmpty runs outside the lock after the last session of the room is
	// torn down. Set by the registry before the first accept.
	onEmpty func()
}

// New creates the hub for one room. interval is the heartbeat cadence,
// strict selects the frame validation mode.
func New(room string, interval time.Duration, strict bool) *Hub {
	return &Hub{
		room:     room,
		interval: interval,
		strict:   strict,
		sessions: make(map[string]*session),
		topics:   make(map[string]map[string]*session),
	}
}

// Accept registers conn as a new session and starts its heartbeat
// supervisor. It never fails; a connection that sends nothing simply idles
// until the heartbeat evicts it.
func (h *Hub) Accept(conn domain.Connection) {
	s := newSession(conn)

	h.mu.Lock()
	h.sessions[conn.ID()] = s
	count := len(h.sessions)
	h.mu.Unlock()

	go h.superviseHeartbeat(s)

	slog.Info("session accepted", "room", h.room, "clientId", conn.ID(), "clients", count)
}

// Dispatch routes one inbound frame for the named session. Frames from
// unknown or quit sessions and frames the router rejects are dropped
// silently: the relay never answers bad input with an error frame.
func (h *Hub) Dispatch(id string, frame []byte) {
	cmd, err := protocol.Parse(frame, h.strict)
	if err != nil {
		slog.Debug("frame dropped", "room", h.room, "clientId", id, "error", err)
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok || s.quit {
		h.mu.Unlock()
		return
	}

	var empty bool
	switch cmd.Kind {
	case protocol.KindSubscribe:
		h.subscribeLocked(s, cmd.Topics)
	case protocol.KindUnsubscribe:
		h.unsubscribeLocked(s, cmd.Topics)
	case protocol.KindPublish:
		empty = h.publishLocked(s, cmd.Topic, cmd.Payload)
	case protocol.KindPing:
		if err := s.conn.Send(protocol.PongFrame); err != nil {
			empty = h.teardownLocked(s, "pong send failed")
		}
	case protocol.KindPong:
		s.alive = true
	}
	h.mu.Unlock()

	if empty {
		h.notifyEmpty()
	}
}

// Teardown ends the named session. Safe to call any number of times and from
// any loss path: transport close, transport error, or heartbeat timeout all
// funnel here or into the same locked teardown.
func (h *Hub) Teardown(id string) {
	h.mu.Lock()
	var empty bool
	if s, ok := h.sessions[id]; ok {
		empty = h.teardownLocked(s, "transport closed")
	}
	h.mu.Unlock()

	if empty {
		h.notifyEmpty()
	}
}

// Close tears down every remaining session. Used on process shutdown; the
// registry drops the room itself, so onEmpty is not signalled.
func (h *Hub) Close() {
	h.mu.Lock()
	remaining := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		remaining = append(remaining, s)
	}
	for _, s := range remaining {
		h.teardownLocked(s, "hub closed")
	}
	h.mu.Unlock()
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Subscribers reports the size of topic's subscriber set; zero when the
// topic has no entry.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Topics lists the topics that currently have at least one subscriber.
func (h *Hub) Topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		names = append(names, topic)
	}
	return names
}

// subscribeLocked adds s to each named topic. Idempotent; empty topic names
// carry no meaning on the wire and are skipped.
func (h *Hub) subscribeLocked(s *session, topics []string) {
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, ok := s.topics[topic]; ok {
			continue
		}
		subs := h.topics[topic]
		if subs == nil {
			subs = make(map[string]*session)
			h.topics[topic] = subs
		}
		subs[s.conn.ID()] = s
		s.topics[topic] = struct{}{}
	}
}

// unsubscribeLocked removes s from each named topic, pruning topics left
// without subscribers. Unsubscribing from a topic never subscribed is a
// no-op.
func (h *Hub) unsubscribeLocked(s *session, topics []string) {
	for _, topic := range topics {
		if _, ok := s.topics[topic]; !ok {
			continue
		}
		delete(s.topics, topic)
		h.dropSubscriberLocked(topic, s.conn.ID())
	}
}

// dropSubscriberLocked removes one subscriber from the topic index, deleting
// the entry the moment its set empties.
func (h *Hub) dropSubscriberLocked(topic, id string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// publishLocked fans payload out to every subscriber of topic except the
// publisher, annotated with the receiver count. Publishing to a topic nobody
// listens on is a normal, silent occurrence. Each delivery is independent: a
// failed receiver is torn down without touching the others. Reports whether
// a teardown emptied the room.
func (h *Hub) publishLocked(s *session, topic string, payload map[string]any) bool {
	if topic == "" {
		return false
	}

	subs := h.topics[topic]
	receivers := make([]*session, 0, len(subs))
	for id, sub := range subs {
		if id == s.conn.ID() {
			continue
		}
		receivers = append(receivers, sub)
	}
	if len(receivers) == 0 {
		return false
	}

	payload["clients"] = len(receivers)
	frame, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("publish payload not serializable", "room", h.room, "topic", topic, "error", err)
		return false
	}

	var failed []*session
	for _, sub := range receivers {
		if err := sub.conn.Send(frame); err != nil {
			failed = append(failed, sub)
		}
	}

	empty := false
	for _, sub := range failed {
		if h.teardownLocked(sub, "send failed") {
			empty = true
		}
	}
	return empty
}

// teardownLocked releases everything a session owns: its heartbeat, its
// topic index entries, its table slot, and the connection itself. The quit
// latch makes it idempotent. Reports whether the room is now empty.
func (h *Hub) teardownLocked(s *session, reason string) bool {
	if s.quit {
		return false
	}
	s.quit = true
	close(s.stop)

	for topic := range s.topics {
		delete(s.topics, topic)
		h.dropSubscriberLocked(topic, s.conn.ID())
	}
	delete(h.sessions, s.conn.ID())

	if err := s.conn.Close(); err != nil {
		slog.Debug("connection close", "room", h.room, "clientId", s.conn.ID(), "error", err)
	}

	slog.Info("session closed", "room", h.room, "clientId", s.conn.ID(), "reason", reason, "clients", len(h.sessions))
	return len(h.sessions) == 0
}

func (h *Hub) notifyEmpty() {
	if h.onEmpty != nil {
		h.onEmpty()
	}
}
