package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/outbox"
	"github.com/matheus3301/chatline/internal/roster"
	"github.com/matheus3301/chatline/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventService implements EventServer by streaming bus events.
type EventService struct {
	bus         *bus.Bus
	sessionName string
	logger      *zap.Logger
}

// NewEventService creates an event service.
func NewEventService(b *bus.Bus, sessionName string, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{bus: b, sessionName: sessionName, logger: logger}
}

func (s *EventService) Watch(req *WatchRequest, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !matchKinds(req.Kinds, evt.Kind) {
				continue
			}
			env, err := EventStruct(s.sessionName, evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func matchKinds(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if strings.HasPrefix(kind, k) {
			return true
		}
	}
	return false
}

type StatusChangePayload struct {
	CounterpartID string `json:"counterpart_id"`
	MessageID     string `json:"message_id"`
	From          string `json:"from"`
	To            string `json:"to"`
}

type PresencePayload struct {
	CounterpartID string   `json:"counterpart_id"`
	Presence      Presence `json:"presence"`
}

type ReceiptPayload struct {
	CounterpartID string   `json:"counterpart_id"`
	MessageIDs    []string `json:"message_ids"`
	Status        string   `json:"status"`
	AtMs          int64    `json:"at_ms"`
}

type SendResultPayload struct {
	CounterpartID string `json:"counterpart_id"`
	MessageID     string `json:"message_id"`
	ServerMsgID   string `json:"server_msg_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type SessionStatePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Event is a decoded event envelope.
type Event struct {
	ID           string          `json:"id"`
	Session      string          `json:"session"`
	Kind         string          `json:"kind"`
	OccurredAtMs int64           `json:"occurred_at_ms"`
	Payload      json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Kind)
	}
	return json.Unmarshal(e.Payload, v)
}

// EventStruct wraps a bus event into the envelope streamed to watchers.
func EventStruct(session string, evt bus.Event) (*structpb.Struct, error) {
	env := Event{
		ID:           uuid.NewString(),
		Session:      session,
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
	}
	payload, err := json.Marshal(wirePayload(evt.Payload))
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", evt.Kind, err)
	}
	env.Payload = payload

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// EventFromStruct decodes an envelope received from Watch.
func EventFromStruct(s *structpb.Struct) (Event, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return Event{}, err
	}
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func wirePayload(p any) any {
	switch v := p.(type) {
	case chat.Message:
		return MessageFromChat(v)
	case roster.Entry:
		return entryFromRoster(v)
	case feed.StatusChange:
		return StatusChangePayload{
			CounterpartID: v.CounterpartID,
			MessageID:     v.MessageID,
			From:          string(v.From),
			To:            string(v.To),
		}
	case chat.PresenceUpdate:
		return PresencePayload{CounterpartID: v.CounterpartID, Presence: presenceFromChat(v.Presence)}
	case chat.Receipt:
		return ReceiptPayload{
			CounterpartID: v.CounterpartID,
			MessageIDs:    v.MessageIDs,
			Status:        string(v.Status),
			AtMs:          v.At.UnixMilli(),
		}
	case outbox.Result:
		return SendResultPayload{
			CounterpartID: v.CounterpartID,
			MessageID:     v.MessageID,
			ServerMsgID:   v.ServerMsgID,
			Error:         v.Err,
		}
	case status.StatusChange:
		return SessionStatePayload{From: string(v.From), To: string(v.To)}
	}
	return p
}
