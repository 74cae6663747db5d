package chat

import "time"

// Status is the delivery state of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanAdvance reports whether a message in state s may move to next.
// Statuses only move forward; failed is reachable from pending only and is terminal.
func (s Status) CanAdvance(next Status) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusPending
	}
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > cur
}

// Message is a single entry in a conversation.
type Message struct {
	ID            string
	CounterpartID string
	FromMe        bool
	Body          string
	CreatedAt     time.Time
	Status        Status
	// Seq is the local insertion sequence, assigned by the feed.
	Seq uint64
}

// Before orders messages by creation time, then by insertion sequence.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

// Receipt acknowledges delivery or reading of one or more messages.
type Receipt struct {
	CounterpartID string
	MessageIDs    []string
	Status        Status
	At            time.Time
}

// Presence is the counterpart's online state.
type Presence struct {
	Online   bool
	LastSeen time.Time
}

// PresenceUpdate pairs a presence with its counterpart.
type PresenceUpdate struct {
	CounterpartID string
	Presence      Presence
}

// Profile is the directory record for a counterpart.
type Profile struct {
	ID          string
	DisplayName string
	AvatarRef   string
}

// Name returns the display name, falling back to the id.
func (p *Profile) Name() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
