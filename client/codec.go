// Package client is the Go client for the chat service: a frame codec, a
// session controller owning one WebSocket per open conversation, a
// conversation store fed by dispatched events, and a REST client for
// hydration. It mirrors what the browser front end does over the same wire
// protocol.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/motorchat/internal/model"
)

// outboundFrame is the client -> server wire shape. Field order matters for
// byte-stable encoding in tests and logs.
type outboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// EncodeChatMessage encodes a chat line. The caller rejects empty or
// whitespace-only input before calling; the codec does not re-validate.
func EncodeChatMessage(text string) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: "chat_message", Message: text})
}

// EncodeMarkRead encodes the read-receipt frame. It carries no payload.
func EncodeMarkRead() ([]byte, error) {
	return json.Marshal(outboundFrame{Type: "mark_read"})
}

// Event is one decoded inbound frame: MessageEvent, ReadEvent or
// UnknownEvent.
type Event interface {
	eventType() string
}

// MessageEvent carries a new message to append to the open conversation.
type MessageEvent struct {
	Message model.Message
}

func (MessageEvent) eventType() string { return "chat_message" }

// ReadEvent reports that user UserID has read the conversation. Informational.
type ReadEvent struct {
	UserID int64
}

func (ReadEvent) eventType() string { return "messages_read" }

// UnknownEvent is any frame type this client does not recognize. Callers
// ignore it, which keeps the protocol forward compatible.
type UnknownEvent struct {
	Type string
}

func (e UnknownEvent) eventType() string { return e.Type }

type inboundEnvelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	UserID  int64           `json:"user_id"`
}

// Decode parses one inbound text frame. A malformed frame yields an error the
// caller logs and drops; it must never tear down the session.
func Decode(raw []byte) (Event, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch env.Type {
	case "chat_message":
		var m model.Message
		if err := json.Unmarshal(env.Message, &m); err != nil {
			return nil, fmt.Errorf("malformed chat_message payload: %w", err)
		}
		return MessageEvent{Message: m}, nil
	case "messages_read":
		return ReadEvent{UserID: env.UserID}, nil
	default:
		return UnknownEvent{Type: env.Type}, nil
	}
}
