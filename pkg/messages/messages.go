package messages

import (
	"encoding/json"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
)

const (
	// MessageBufferSize represents the maximum size of a serialized message
	MessageBufferSize = 4096
)

// Message types
const (
	MessageTypeServerSnapshot = "snapshot"
	MessageTypeServerRedirect = "redirect"
	MessageTypeServerAborted  = "aborted"
	MessageTypeServerError    = "error"
)

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerSnapshot carries one versioned session snapshot.
type ServerSnapshot struct {
	Session *gametypes.Session `json:"session"`
}

// ServerRedirect tells the client its session moved to a new id. The
// stream keeps flowing on the same connection, the id is informational
// for reconnects.
type ServerRedirect struct {
	SessionID  string             `json:"sessionId"`
	RedirectTo string             `json:"redirectTo"`
	Session    *gametypes.Session `json:"session"`
}

// ServerAborted tells the client its session was torn down.
type ServerAborted struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// ServerError carries a terminal stream error.
type ServerError struct {
	Message string `json:"message"`
}

func NewServerMessage(messageType string, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    messageType,
		Payload: b,
	}, nil
}
