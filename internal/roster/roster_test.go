package roster

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

func incoming(from, body string, ts int64, seq uint64) chat.Message {
	return chat.Message{
		ID: from + body, CounterpartID: from, Body: body,
		CreatedAt: time.UnixMilli(ts), Status: chat.StatusDelivered, Seq: seq,
	}
}

func outgoing(to, body string, ts int64, seq uint64) chat.Message {
	return chat.Message{
		ID: to + body, CounterpartID: to, FromMe: true, Body: body,
		CreatedAt: time.UnixMilli(ts), Status: chat.StatusPending, Seq: seq,
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{" Unread ", FilterUnread, false},
		{"starred", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFilter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, chat.ErrInvalidFilter) {
			t.Errorf("ParseFilter(%q) error = %v, want ErrInvalidFilter", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFilter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntryCreatedLazily(t *testing.T) {
	r := New(nil)
	r.SetProfile(chat.Profile{ID: "bob", DisplayName: "Bob"})

	if r.Len() != 0 {
		t.Fatalf("SetProfile created an entry; Len() = %d", r.Len())
	}

	r.Update("bob", incoming("bob", "hey", 1000, 1))
	e, ok := r.Get("bob")
	if !ok {
		t.Fatal("entry not created on first message")
	}
	if e.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want Bob", e.DisplayName)
	}
}

func TestIncomingForInactiveIncrementsUnread(t *testing.T) {
	r := New(nil)
	r.Update("b", outgoing("b", "hello", 1000, 1))
	e := r.Update("b", incoming("b", "sup", 2000, 2))

	if e.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", e.UnreadCount)
	}
	if e.LastMessage != "sup" {
		t.Errorf("LastMessage = %q, want sup", e.LastMessage)
	}
}

func TestReadOnArrivalDoesNotCountUnread(t *testing.T) {
	r := New(nil)
	msg := incoming("a", "seen", 1000, 1)
	msg.Status = chat.StatusRead
	e := r.Update("a", msg)
	if e.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0 for a message read on arrival", e.UnreadCount)
	}
}

func TestLastMessageTracksMostRecent(t *testing.T) {
	r := New(nil)
	r.Update("a", incoming("a", "newer", 5000, 2))
	// A late history message must not overwrite the summary.
	e := r.Update("a", incoming("a", "older", 1000, 3))

	if e.LastMessage != "newer" {
		t.Errorf("LastMessage = %q, want newer", e.LastMessage)
	}
	if !e.LastMessageAt.Equal(time.UnixMilli(5000)) {
		t.Errorf("LastMessageAt = %v, want 5000ms", e.LastMessageAt)
	}
}

func TestMarkReadExcludesFromUnread(t *testing.T) {
	r := New(nil)
	r.Update("a", incoming("a", "1", 1000, 1))
	r.Update("b", incoming("b", "2", 2000, 1))
	r.Update("c", outgoing("c", "3", 3000, 1))

	unread := r.List(FilterUnread, "")
	if len(unread) != 2 {
		t.Fatalf("unread list = %d entries, want 2", len(unread))
	}
	if r.UnreadConversations() != 2 {
		t.Errorf("UnreadConversations() = %d, want 2", r.UnreadConversations())
	}

	r.MarkRead("a")
	unread = r.List(FilterUnread, "")
	if len(unread) != 1 || unread[0].CounterpartID != "b" {
		t.Errorf("after MarkRead(a), unread = %+v, want only b", unread)
	}

	// Unknown counterpart is a no-op and must not create an entry.
	r.MarkRead("zed")
	if r.Has("zed") {
		t.Error("MarkRead created an entry")
	}
}

func TestListSortingAndTieBreak(t *testing.T) {
	r := New(nil)
	r.Update("carol", incoming("carol", "x", 1000, 1))
	r.Update("bob", incoming("bob", "y", 3000, 1))
	r.Update("alice", incoming("alice", "z", 3000, 1))

	got := r.List(FilterAll, "")
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("List() returned %d entries, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].CounterpartID != id {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].CounterpartID, id)
		}
	}
}

func TestListQuery(t *testing.T) {
	r := New(nil)
	r.SetProfile(chat.Profile{ID: "u1", DisplayName: "Alice Smith"})
	r.SetProfile(chat.Profile{ID: "u2", DisplayName: "Bob"})
	r.Update("u1", incoming("u1", "see you tomorrow", 1000, 1))
	r.Update("u2", incoming("u2", "Lunch at SMITHS?", 2000, 1))
	r.Update("u3", outgoing("u3", "ok", 3000, 1))

	tests := []struct {
		query string
		want  []string
	}{
		{"smith", []string{"u2", "u1"}},
		{"ALICE", []string{"u1"}},
		{"tomorrow", []string{"u1"}},
		{"nothing", nil},
		{"", []string{"u3", "u2", "u1"}},
		{" ", []string{"u2", "u1"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := r.List(FilterAll, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("List(%q) = %d entries, want %d", tt.query, len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].CounterpartID != id {
					t.Errorf("List(%q)[%d] = %s, want %s", tt.query, i, got[i].CounterpartID, id)
				}
			}
		})
	}
}

func TestSetProfileRenamesExistingEntry(t *testing.T) {
	r := New(nil)
	r.Update("u1", incoming("u1", "hi", 1000, 1))
	r.SetProfile(chat.Profile{ID: "u1", DisplayName: "Uma", AvatarRef: "avatars/uma.png"})

	e, _ := r.Get("u1")
	if e.DisplayName != "Uma" || e.AvatarRef != "avatars/uma.png" {
		t.Errorf("entry = %+v, want renamed with avatar", e)
	}
}

func TestUpdatePublishesEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("roster.", 10)
	defer unsub()

	r := New(b)
	r.Update("a", incoming("a", "hi", 1000, 1))

	select {
	case evt := <-ch:
		e, ok := evt.Payload.(Entry)
		if !ok {
			t.Fatalf("payload type = %T, want Entry", evt.Payload)
		}
		if e.CounterpartID != "a" || e.UnreadCount != 1 {
			t.Errorf("payload = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for roster.updated")
	}
}
