// Package protocol defines the JSON frames exchanged between chatline clients and the relay.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of frame.
type Type string

const (
	// Client -> Relay
	TypeHello      Type = "hello"
	TypeSend       Type = "send"
	TypeReceipt    Type = "receipt"
	TypeGetHistory Type = "get_history"

	// Relay -> Client
	TypeWelcome  Type = "welcome"
	TypeAck      Type = "ack"
	TypeMessage  Type = "message"
	TypeHistory  Type = "history"
	TypePresence Type = "presence"
	TypeError    Type = "error"
)

// Envelope wraps every frame. Ref correlates a request with its ack, history or error reply.
type Envelope struct {
	Type Type            `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hello identifies the connecting user. It must be the first frame.
type Hello struct {
	UserID string `json:"user_id"`
}

// Welcome confirms the session and lists who is online.
type Welcome struct {
	UserID string   `json:"user_id"`
	Online []string `json:"online,omitempty"`
}

// Send asks the relay to deliver a message. ID is the sender's client message id and
// stays the message id end to end.
type Send struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// Ack confirms a Send was accepted and persisted.
type Ack struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id"`
}

// Message is a routed message as seen by its recipient, or a history entry.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Status    string `json:"status,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Receipt reports delivery or reading. Clients fill To; the relay rewrites it into From
// when forwarding.
type Receipt struct {
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
	At     int64    `json:"at"`
}

// GetHistory requests the conversation with another user.
type GetHistory struct {
	With  string `json:"with"`
	Limit int    `json:"limit,omitempty"`
}

// History answers GetHistory, oldest first.
type History struct {
	With     string    `json:"with"`
	Messages []Message `json:"messages"`
}

// Presence announces a user's online state.
type Presence struct {
	UserID   string `json:"user_id"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// ErrorFrame reports a rejected request.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeNotIdentified = "not_identified"
	ErrCodeInvalidFrame  = "invalid_frame"
	ErrCodeInvalidSend   = "invalid_send"
	ErrCodeInternal      = "internal_error"
)

func (e ErrorFrame) Error() string {
	return fmt.Sprintf("relay %s: %s", e.Code, e.Message)
}

// NewEnvelope creates an envelope with the given type and data.
func NewEnvelope(t Type, ref string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Ref: ref, Data: raw}, nil
}

// Encode marshals an envelope with the given type and data into a frame.
func Encode(t Type, ref string, data any) ([]byte, error) {
	env, err := NewEnvelope(t, ref, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope parses a JSON frame into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame without type")
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s frame without data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// Millis converts t to the wire timestamp. The zero time maps to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Time converts a wire timestamp back. 0 maps to the zero time.
func Time(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
