package session

import "encoding/json"

// FrameType is the closed set of inbound/outbound frame kinds the
// gateway understands. A frame with no type decodes into FrameUnknown
// rather than failing to parse; any other unrecognized value is kept
// as-is and answered with an error frame by the dispatch tables.
type FrameType string

const (
	FrameHeartbeat            FrameType = "heartbeat"
	FramePublish              FrameType = "publish"
	FrameSubscribe            FrameType = "subscribe"
	FrameUnsubscribe          FrameType = "unsubscribe"
	FrameSubscribeChannel     FrameType = "subscribe_channel"
	FrameUnsubscribeChannel   FrameType = "unsubscribe_channel"
	FrameSubscribeTopicPrev   FrameType = "subscribe_topic_preview"
	FrameUnsubscribeTopicPrev FrameType = "unsubscribe_topic_preview"
	FrameMessage              FrameType = "message"
	FrameAck                  FrameType = "ack"
	FrameError                FrameType = "error"
	FrameUnknown              FrameType = ""
)

// InboundFrame is the wire shape of every client-sent frame: a type
// discriminator, an optional echo id, and a grab-bag of type-specific
// fields left raw until the type is known.
type InboundFrame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ChannelID string          `json:"channel-id,omitempty"`
}

// OutboundMessage is the frame shape delivered to a session for every
// bus message it is subscribed to.
type OutboundMessage struct {
	Type      FrameType       `json:"type"`
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// OutboundAck acknowledges a successfully processed inbound frame.
type OutboundAck struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// OutboundError reports a recoverable per-frame failure. The session
// stays open.
type OutboundError struct {
	Type    FrameType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Message string    `json:"message"`
}

func newAck(id string) OutboundAck {
	return OutboundAck{Type: FrameAck, ID: id}
}

func newError(id, message string) OutboundError {
	return OutboundError{Type: FrameError, ID: id, Message: message}
}
