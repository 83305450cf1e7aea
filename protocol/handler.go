// Package protocol turns raw signaling frames into typed commands. It is
// stateless: the hub applies the commands, the transport never looks inside.
package protocol

import (
	"encoding/json"
	"errors"
)

// Kind enumerates the commands a frame can carry.
type Kind string

const (
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindPublish     Kind = "publish"
	KindPing        Kind = "ping"
	KindPong        Kind = "pong"
)

// Canned liveness frames. The hub sends PingFrame as its heartbeat probe and
// PongFrame as the immediate reply to a client ping.
var (
	PingFrame = []byte(`{"type":"ping"}`)
	PongFrame = []byte(`{"type":"pong"}`)
)

var (
	// ErrNotObject reports a frame that is not a JSON object.
	ErrNotObject = errors.New("protocol: frame is not a JSON object")
	// ErrUnknownType reports a missing or unrecognized type field.
	ErrUnknownType = errors.New("protocol: unknown frame type")
	// ErrBadShape reports per-type fields of the wrong shape; only strict
	// parsing produces it.
	ErrBadShape = errors.New("protocol: frame fields do not match type")
)

// Command is one validated inbound frame.
type Command struct {
	Kind Kind
	// Topics carries the topic names of subscribe and unsubscribe commands.
	// Duplicates are allowed; the hub applies them idempotently.
	Topics []string
	// Topic is the publish target. Empty means the publish is a no-op.
	Topic string
	// Payload is the full decoded publish object. Fields beyond type and
	// topic pass through to subscribers unexamined.
	Payload map[string]any
}

// Parse decodes one frame into a Command. Frames that are not objects or
// carry no recognized type are rejected regardless of mode; the caller drops
// them silently. In strict mode a frame whose per-type fields have the wrong
// shape is rejected too, while permissive mode degrades malformed fields to
// empty values the hub no-ops on.
func Parse(data []byte, strict bool) (Command, error) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return Command{}, ErrNotObject
	}
	if frame == nil {
		return Command{}, ErrNotObject
	}

	kind, _ := frame["type"].(string)
	switch Kind(kind) {
	case KindSubscribe, KindUnsubscribe:
		topics, wellFormed := topicList(frame["topics"])
		if strict && !wellFormed {
			return Command{}, ErrBadShape
		}
		return Command{Kind: Kind(kind), Topics: topics}, nil

	case KindPublish:
		topic, ok := frame["topic"].(string)
		if strict && (!ok || topic == "") {
			return Command{}, ErrBadShape
		}
		return Command{Kind: KindPublish, Topic: topic, Payload: frame}, nil

	case KindPing:
		return Command{Kind: KindPing}, nil

	case KindPong:
		return Command{Kind: KindPong}, nil

	default:
		return Command{}, ErrUnknownType
	}
}

// topicList coerces the wire value into topic names, reporting whether the
// value had the expected string-array shape. Non-string entries are skipped.
func topicList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	topics := make([]string, 0, len(items))
	wellFormed := true
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			wellFormed = false
			continue
		}
		topics = append(topics, s)
	}
	return topics, wellFormed
}
