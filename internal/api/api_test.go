package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/outbox"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{chat.ErrEmptyMessage, codes.InvalidArgument},
		{fmt.Errorf("%w: %q", chat.ErrInvalidFilter, "starred"), codes.InvalidArgument},
		{fmt.Errorf("open %q: %w", "x", chat.ErrNotFound), codes.NotFound},
		{fmt.Errorf("%w: %w", chat.ErrSendFailure, chat.ErrNotConnected), codes.Unavailable},
		{errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) should be nil")
	}
}

func TestMatchKinds(t *testing.T) {
	if !matchKinds(nil, bus.FeedAppended) {
		t.Error("no kinds should match everything")
	}
	if !matchKinds([]string{"roster.", "feed."}, bus.FeedStatusChanged) {
		t.Error("feed. should match feed.status_changed")
	}
	if matchKinds([]string{"session."}, bus.TransportMessage) {
		t.Error("session. should not match transport.message")
	}
}

func TestEventEnvelope(t *testing.T) {
	at := time.UnixMilli(1760000000123)
	s, err := EventStruct("main", bus.Event{
		Kind:      bus.FeedStatusChanged,
		Timestamp: at,
		Payload: feed.StatusChange{
			CounterpartID: "bob",
			MessageID:     "m1",
			From:          chat.StatusPending,
			To:            chat.StatusSent,
		},
	})
	if err != nil {
		t.Fatalf("EventStruct: %v", err)
	}

	evt, err := EventFromStruct(s)
	if err != nil {
		t.Fatalf("EventFromStruct: %v", err)
	}
	if evt.ID == "" || evt.Session != "main" || evt.Kind != bus.FeedStatusChanged {
		t.Errorf("envelope = %+v", evt)
	}
	if evt.OccurredAtMs != at.UnixMilli() {
		t.Errorf("OccurredAtMs = %d, want %d", evt.OccurredAtMs, at.UnixMilli())
	}
	var change StatusChangePayload
	if err := evt.Decode(&change); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if change.MessageID != "m1" || change.From != "pending" || change.To != "sent" {
		t.Errorf("payload = %+v", change)
	}
}

func TestEventEnvelopeSendFailure(t *testing.T) {
	s, err := EventStruct("main", bus.Event{
		Kind:      bus.MessageSendFailed,
		Timestamp: time.Now(),
		Payload:   outbox.Result{CounterpartID: "bob", MessageID: "m1", Err: "send failed: not connected"},
	})
	if err != nil {
		t.Fatalf("EventStruct: %v", err)
	}
	evt, err := EventFromStruct(s)
	if err != nil {
		t.Fatalf("EventFromStruct: %v", err)
	}
	var res SendResultPayload
	if err := evt.Decode(&res); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Error == "" || res.MessageID != "m1" {
		t.Errorf("payload = %+v", res)
	}
}

func TestEventEnvelopeWithoutPayload(t *testing.T) {
	s, err := EventStruct("main", bus.Event{Kind: bus.TransportConnected, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("EventStruct: %v", err)
	}
	evt, err := EventFromStruct(s)
	if err != nil {
		t.Fatalf("EventFromStruct: %v", err)
	}
	if evt.Kind != bus.TransportConnected {
		t.Errorf("Kind = %q", evt.Kind)
	}
}
