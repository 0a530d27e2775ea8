// Package notify maintains the persistent push channel to the backend and
// the merged history/live notification feed built on top of it.
package notify

import "encoding/json"

// FrameType identifies the kind of frame on the push channel.
type FrameType string

const (
	// FrameSubscribe is sent client→server to attach to a topic. It must be
	// re-sent on every new connection; subscriptions do not survive a
	// reconnect.
	FrameSubscribe FrameType = "subscribe"
	// FrameMessage carries one published payload server→client.
	FrameMessage FrameType = "message"
)

// Frame is the JSON envelope for all push-channel traffic.
type Frame struct {
	Type    FrameType       `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
