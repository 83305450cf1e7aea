package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id string

	mu         sync.Mutex
	sent       [][]byte
	closeCalls int
	sendErr    error
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockConn) getSent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *mockConn) getCloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

func (m *mockConn) failSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// lastFrame decodes the most recent frame sent to m.
func (m *mockConn) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	sent := m.getSent()
	require.NotEmpty(t, sent)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(sent[len(sent)-1], &frame))
	return frame
}

// newTestHub returns a hub whose heartbeat is effectively disabled so state
// tests run without timer interference.
func newTestHub(strict bool) *Hub {
	return New("test-room", time.Hour, strict)
}

func subscribeFrame(topics ...string) []byte {
	frame, _ := json.Marshal(map[string]any{"type": "subscribe", "topics": topics})
	return frame
}

func unsubscribeFrame(topics ...string) []byte {
	frame, _ := json.Marshal(map[string]any{"type": "unsubscribe", "topics": topics})
	return frame
}

func TestHub_SubscribeIdempotent(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)

	h.Dispatch("c1", subscribeFrame("room-1"))
	require.Equal(t, 1, h.Subscribers("room-1"))

	h.Dispatch("c1", subscribeFrame("room-1"))
	assert.Equal(t, 1, h.Subscribers("room-1"), "second subscribe leaves the set unchanged")

	h.Dispatch("c1", subscribeFrame("room-1", "room-1", "room-2"))
	assert.Equal(t, 1, h.Subscribers("room-1"))
	assert.Equal(t, 1, h.Subscribers("room-2"))
}

func TestHub_TopicGarbageCollection(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)

	h.Dispatch("c1", subscribeFrame("a", "b"))
	require.ElementsMatch(t, []string{"a", "b"}, h.Topics())

	h.Dispatch("c1", unsubscribeFrame("a"))
	assert.ElementsMatch(t, []string{"b"}, h.Topics(), "empty topic entries are removed immediately")

	// Unsubscribing twice, or from a topic never subscribed, is a no-op.
	h.Dispatch("c1", unsubscribeFrame("a"))
	h.Dispatch("c1", unsubscribeFrame("never-subscribed"))
	assert.ElementsMatch(t, []string{"b"}, h.Topics())

	h.Dispatch("c1", unsubscribeFrame("b"))
	assert.Empty(t, h.Topics())
}

func TestHub_PublishFanOut(t *testing.T) {
	h := newTestHub(false)
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	c := &mockConn{id: "c"}
	for _, conn := range []*mockConn{a, b, c} {
		h.Accept(conn)
	}

	h.Dispatch("a", subscribeFrame("t"))
	h.Dispatch("b", subscribeFrame("t"))

	h.Dispatch("c", []byte(`{"type":"publish","topic":"t","offer":"sdp-blob"}`))

	for _, conn := range []*mockConn{a, b} {
		frame := conn.lastFrame(t)
		assert.Equal(t, "publish", frame["type"])
		assert.Equal(t, "t", frame["topic"])
		assert.Equal(t, "sdp-blob", frame["offer"])
		assert.Equal(t, float64(2), frame["clients"])
	}
	assert.Empty(t, c.getSent(), "non-subscriber never receives the publish")
}

func TestHub_PublishExcludesSender(t *testing.T) {
	h := newTestHub(false)
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Accept(a)
	h.Accept(b)

	h.Dispatch("a", subscribeFrame("room-1"))
	h.Dispatch("b", subscribeFrame("room-1"))

	h.Dispatch("b", []byte(`{"type":"publish","topic":"room-1","offer":"sdp-blob"}`))

	frame := a.lastFrame(t)
	assert.Equal(t, "sdp-blob", frame["offer"])
	assert.Equal(t, float64(1), frame["clients"])
	assert.Empty(t, b.getSent(), "publisher does not receive its own publish")
}

func TestHub_PublishWithoutSubscribersIsSilent(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)

	h.Dispatch("c1", []byte(`{"type":"publish","topic":"nobody-listens","offer":"x"}`))

	assert.Empty(t, conn.getSent())
	assert.Equal(t, 1, h.SessionCount())
}

func TestHub_PingGetsImmediatePong(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)
	h.Dispatch("c1", subscribeFrame("t"))

	h.Dispatch("c1", []byte(`{"type":"ping"}`))

	frame := conn.lastFrame(t)
	assert.Equal(t, "pong", frame["type"])
	assert.Equal(t, 1, h.Subscribers("t"), "ping has no effect on subscriptions")
}

func TestHub_MalformedFrameIsDropped(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)
	h.Dispatch("c1", subscribeFrame("t"))

	h.Dispatch("c1", []byte(`not json`))
	h.Dispatch("c1", []byte(`{"type":"launch"}`))

	assert.Empty(t, conn.getSent(), "no reply and no error frame")
	assert.Equal(t, 1, h.SessionCount(), "session survives malformed input")
	assert.Equal(t, 1, h.Subscribers("t"), "prior subscriptions survive")
}

func TestHub_TeardownIdempotent(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)
	h.Dispatch("c1", subscribeFrame("a", "b"))

	h.Teardown("c1")
	require.Equal(t, 0, h.SessionCount())
	require.Empty(t, h.Topics())
	require.Equal(t, 1, conn.getCloseCalls())

	assert.NotPanics(t, func() { h.Teardown("c1") })
	assert.Equal(t, 1, conn.getCloseCalls(), "connection closed exactly once")
}

func TestHub_TeardownPrunesSharedTopics(t *testing.T) {
	h := newTestHub(false)
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Accept(a)
	h.Accept(b)
	h.Dispatch("a", subscribeFrame("t"))
	h.Dispatch("b", subscribeFrame("t"))

	h.Teardown("a")
	assert.Equal(t, 1, h.Subscribers("t"))

	h.Teardown("b")
	assert.Empty(t, h.Topics())
}

func TestHub_DispatchAfterTeardownIsDropped(t *testing.T) {
	h := newTestHub(false)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)
	h.Teardown("c1")

	assert.NotPanics(t, func() {
		h.Dispatch("c1", subscribeFrame("t"))
		h.Dispatch("c1", []byte(`{"type":"ping"}`))
	})
	assert.Empty(t, h.Topics())
	assert.Empty(t, conn.getSent())
}

func TestHub_SendFailureEvictsOnlyThatReceiver(t *testing.T) {
	h := newTestHub(false)
	healthy := &mockConn{id: "healthy"}
	broken := &mockConn{id: "broken"}
	sender := &mockConn{id: "sender"}
	for _, conn := range []*mockConn{healthy, broken, sender} {
		h.Accept(conn)
	}
	h.Dispatch("healthy", subscribeFrame("t"))
	h.Dispatch("broken", subscribeFrame("t"))
	broken.failSends(errors.New("write to closed connection"))

	h.Dispatch("sender", []byte(`{"type":"publish","topic":"t","n":1}`))

	frame := healthy.lastFrame(t)
	assert.Equal(t, float64(2), frame["clients"], "count taken at publish time")

	assert.Equal(t, 2, h.SessionCount(), "only the failed receiver is torn down")
	assert.Equal(t, 1, broken.getCloseCalls())
	assert.Equal(t, 1, h.Subscribers("t"))
}

func TestHub_StrictModeDropsMalformedShapes(t *testing.T) {
	h := newTestHub(true)
	conn := &mockConn{id: "c1"}
	h.Accept(conn)

	h.Dispatch("c1", []byte(`{"type":"subscribe","topics":"room-1"}`))
	assert.Empty(t, h.Topics(), "strict mode rejects the whole frame")

	h.Dispatch("c1", subscribeFrame("room-1"))
	assert.Equal(t, 1, h.Subscribers("room-1"), "well-formed frames still apply")
}
