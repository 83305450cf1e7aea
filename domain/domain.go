package domain

// Connection is the transport handle the hub owns for one client. Exactly one
// session owns a Connection at a time. Send must never block indefinitely: a
// transport that cannot accept the frame reports an error instead, and the
// hub turns that into eviction.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Room is the per-room hub surface the transport adapter drives once its
// connection has been accepted. Dispatch feeds inbound frames, Teardown
// reports transport loss; both are keyed by the connection's stable ID.
type Room interface {
	Dispatch(id string, frame []byte)
	Teardown(id string)
}
