package api

import (
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/roster"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

// Message is the wire form of a chat message.
type Message struct {
	ID            string `json:"id"`
	CounterpartID string `json:"counterpart_id"`
	FromMe        bool   `json:"from_me"`
	Body          string `json:"body"`
	CreatedAtMs   int64  `json:"created_at_ms"`
	Status        string `json:"status"`
	Seq           uint64 `json:"seq,omitempty"`
}

// CreatedAt returns the creation time.
func (m Message) CreatedAt() time.Time { return time.UnixMilli(m.CreatedAtMs) }

// RosterEntry is the wire form of a roster entry.
type RosterEntry struct {
	CounterpartID   string `json:"counterpart_id"`
	DisplayName     string `json:"display_name"`
	AvatarRef       string `json:"avatar_ref,omitempty"`
	LastMessage     string `json:"last_message"`
	LastMessageAtMs int64  `json:"last_message_at_ms"`
	LastFromMe      bool   `json:"last_from_me"`
	UnreadCount     int    `json:"unread_count"`
}

// LastMessageAt returns the time of the latest message.
func (e RosterEntry) LastMessageAt() time.Time { return time.UnixMilli(e.LastMessageAtMs) }

// Presence is the wire form of a counterpart's online state.
type Presence struct {
	Online     bool  `json:"online"`
	LastSeenMs int64 `json:"last_seen_ms,omitempty"`
}

// LastSeen returns the last-seen time, or the zero time when unknown.
func (p Presence) LastSeen() time.Time {
	if p.LastSeenMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.LastSeenMs)
}

// Contact is a directory record.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// FeedView is a snapshot of one conversation. Messages are newest first.
type FeedView struct {
	CounterpartID string    `json:"counterpart_id"`
	DisplayName   string    `json:"display_name"`
	AvatarRef     string    `json:"avatar_ref,omitempty"`
	Active        bool      `json:"active"`
	Presence      Presence  `json:"presence"`
	Messages      []Message `json:"messages"`
}

type StatusResponse struct {
	Session             string `json:"session"`
	Transport           string `json:"transport"`
	SelfID              string `json:"self_id,omitempty"`
	State               string `json:"state"`
	Connected           bool   `json:"connected"`
	UptimeMs            int64  `json:"uptime_ms"`
	Conversations       int    `json:"conversations"`
	UnreadConversations int    `json:"unread_conversations"`
	ContactCount        int64  `json:"contact_count"`
	MessageCount        int64  `json:"message_count"`
	PendingSends        int    `json:"pending_sends"`
}

type AuthEvent struct {
	Type    string `json:"type"`
	QRCode  string `json:"qr_code,omitempty"`
	Message string `json:"message,omitempty"`
}

type ListRosterRequest struct {
	Filter string `json:"filter"`
	Query  string `json:"query"`
}

type ListRosterResponse struct {
	Entries             []RosterEntry `json:"entries"`
	UnreadConversations int           `json:"unread_conversations"`
}

type CounterpartRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type ComposeRequest struct {
	CounterpartID string `json:"counterpart_id"`
	Text          string `json:"text"`
}

type ListContactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

type ImportContactsResponse struct {
	Imported int `json:"imported"`
}

type WatchRequest struct {
	// Kinds are event kind prefixes; empty means every event.
	Kinds []string `json:"kinds"`
}

// MessageFromChat converts a domain message.
func MessageFromChat(m chat.Message) Message {
	return Message{
		ID:            m.ID,
		CounterpartID: m.CounterpartID,
		FromMe:        m.FromMe,
		Body:          m.Body,
		CreatedAtMs:   m.CreatedAt.UnixMilli(),
		Status:        string(m.Status),
		Seq:           m.Seq,
	}
}

func entryFromRoster(e roster.Entry) RosterEntry {
	return RosterEntry{
		CounterpartID:   e.CounterpartID,
		DisplayName:     e.DisplayName,
		AvatarRef:       e.AvatarRef,
		LastMessage:     e.LastMessage,
		LastMessageAtMs: e.LastMessageAt.UnixMilli(),
		LastFromMe:      e.LastFromMe,
		UnreadCount:     e.UnreadCount,
	}
}

func presenceFromChat(p chat.Presence) Presence {
	out := Presence{Online: p.Online}
	if !p.LastSeen.IsZero() {
		out.LastSeenMs = p.LastSeen.UnixMilli()
	}
	return out
}

func feedView(f *feed.Feed) *FeedView {
	p := f.Profile()
	msgs := f.Messages()
	view := &FeedView{
		CounterpartID: f.CounterpartID(),
		DisplayName:   p.Name(),
		AvatarRef:     p.AvatarRef,
		Active:        f.Active(),
		Presence:      presenceFromChat(f.Presence()),
		Messages:      make([]Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		view.Messages = append(view.Messages, MessageFromChat(m))
	}
	return view
}
