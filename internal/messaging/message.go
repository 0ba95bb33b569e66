package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies what a message asks its receivers to do.
type MessageType string

// Message types.
const (
	// TypeUpdate asks every peer to run a full sync.
	TypeUpdate MessageType = "update"
	// TypeUserUpdate asks every peer to reload one user.
	TypeUserUpdate MessageType = "userupdate"
	// TypeLog carries an action log entry.
	TypeLog MessageType = "log"
	// TypeCustom carries an opaque payload on a named channel.
	TypeCustom MessageType = "custom"
)

// envelope is the JSON form of every message on the transport.
type envelope struct {
	ID           uuid.UUID       `json:"id"`
	Origin       uuid.UUID       `json:"origin"`
	Type         MessageType     `json:"type"`
	UserUniqueID *uuid.UUID      `json:"userUniqueId,omitempty"`
	ChannelID    string          `json:"channelId,omitempty"`
	Payload      *string         `json:"payload,omitempty"`
	Action       json.RawMessage `json:"action,omitempty"`
}

var errInvalidMessage = errors.New("messaging: invalid message")

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", errInvalidMessage, err)
	}
	if env.ID == uuid.Nil || env.Origin == uuid.Nil {
		return envelope{}, fmt.Errorf("%w: missing id or origin", errInvalidMessage)
	}
	switch env.Type {
	case TypeUpdate:
	case TypeUserUpdate:
		if env.UserUniqueID == nil {
			return envelope{}, fmt.Errorf("%w: userupdate without userUniqueId", errInvalidMessage)
		}
	case TypeLog:
		if len(env.Action) == 0 {
			return envelope{}, fmt.Errorf("%w: log without action", errInvalidMessage)
		}
	case TypeCustom:
		if env.ChannelID == "" || env.Payload == nil {
			return envelope{}, fmt.Errorf("%w: custom without channelId or payload", errInvalidMessage)
		}
	default:
		return envelope{}, fmt.Errorf("%w: unknown type %q", errInvalidMessage, env.Type)
	}
	return env, nil
}
