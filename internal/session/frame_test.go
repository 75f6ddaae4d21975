package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundFrameUnmarshal(t *testing.T) {
	raw := []byte(`{"type":"publish","id":"req-1","subject":"orders.created","payload":{"a":1}}`)

	var frame InboundFrame
	require.NoError(t, json.Unmarshal(raw, &frame))

	assert.Equal(t, FramePublish, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "orders.created", frame.Subject)
	assert.JSONEq(t, `{"a":1}`, string(frame.Payload))
}

func TestInboundFrameMissingTypeIsUnknown(t *testing.T) {
	raw := []byte(`{"id":"req-1"}`)

	var frame InboundFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, FrameUnknown, frame.Type)
}

func TestNewAck(t *testing.T) {
	ack := newAck("req-1")
	assert.Equal(t, FrameAck, ack.Type)
	assert.Equal(t, "req-1", ack.ID)
}

func TestNewError(t *testing.T) {
	errFrame := newError("req-1", "invalid frame")
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, "req-1", errFrame.ID)
	assert.Equal(t, "invalid frame", errFrame.Message)
}

func TestOutboundMessageMarshal(t *testing.T) {
	msg := OutboundMessage{
		Type:      FrameMessage,
		Subject:   "tenant.acme.orders.created",
		Payload:   json.RawMessage(`{"id":1}`),
		Timestamp: "2026-01-01T00:00:00Z",
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","subject":"tenant.acme.orders.created","payload":{"id":1},"timestamp":"2026-01-01T00:00:00Z"}`, string(data))
}
