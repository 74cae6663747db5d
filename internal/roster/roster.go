// Package roster projects every conversation into a searchable, sortable summary list.
package roster

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

// Filter selects which entries List returns.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
)

// ParseFilter maps user input to a Filter. Empty input means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUnread:
		return FilterUnread, nil
	}
	return "", fmt.Errorf("%w: %q", chat.ErrInvalidFilter, s)
}

// Entry is the summary of one conversation.
type Entry struct {
	CounterpartID string
	DisplayName   string
	AvatarRef     string
	LastMessage   string
	LastMessageAt time.Time
	LastFromMe    bool
	UnreadCount   int

	last chat.Message
}

// Roster holds one entry per counterpart with at least one message.
type Roster struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	profiles map[string]chat.Profile
	bus      *bus.Bus
}

// New creates an empty roster. b may be nil.
func New(b *bus.Bus) *Roster {
	return &Roster{
		entries:  make(map[string]*Entry),
		profiles: make(map[string]chat.Profile),
		bus:      b,
	}
}

// SetProfile records the display name and avatar for a counterpart. It never creates an entry.
func (r *Roster) SetProfile(p chat.Profile) {
	r.mu.Lock()
	r.profiles[p.ID] = p
	e, ok := r.entries[p.ID]
	var out Entry
	if ok {
		e.DisplayName = p.Name()
		e.AvatarRef = p.AvatarRef
		out = *e
	}
	r.mu.Unlock()

	if ok {
		r.bus.Emit(bus.RosterUpdated, out)
	}
}

// Update folds a newly appended message into the counterpart's entry, creating it on
// first exchange. The last-message fields only move to a message that sorts after the
// current one. Unread grows for incoming messages that were not read on arrival, which
// is how the feed encodes "conversation not active".
func (r *Roster) Update(counterpartID string, msg chat.Message) Entry {
	r.mu.Lock()
	e, ok := r.entries[counterpartID]
	if !ok {
		e = &Entry{CounterpartID: counterpartID, DisplayName: counterpartID}
		if p, known := r.profiles[counterpartID]; known {
			e.DisplayName = p.Name()
			e.AvatarRef = p.AvatarRef
		}
		r.entries[counterpartID] = e
	}
	if !ok || !msg.Before(e.last) {
		e.last = msg
		e.LastMessage = msg.Body
		e.LastMessageAt = msg.CreatedAt
		e.LastFromMe = msg.FromMe
	}
	if !msg.FromMe && msg.Status != chat.StatusRead {
		e.UnreadCount++
	}
	out := *e
	r.mu.Unlock()

	r.bus.Emit(bus.RosterUpdated, out)
	return out
}

// MarkRead resets the unread count. Unknown counterparts are ignored.
func (r *Roster) MarkRead(counterpartID string) {
	r.mu.Lock()
	e, ok := r.entries[counterpartID]
	changed := ok && e.UnreadCount != 0
	if changed {
		e.UnreadCount = 0
	}
	var out Entry
	if ok {
		out = *e
	}
	r.mu.Unlock()

	if changed {
		r.bus.Emit(bus.RosterUpdated, out)
	}
}

// Get returns the entry for a counterpart.
func (r *Roster) Get(counterpartID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[counterpartID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether the counterpart has an entry.
func (r *Roster) Has(counterpartID string) bool {
	_, ok := r.Get(counterpartID)
	return ok
}

// List returns the entries matching filter and query, most recent conversation first.
// query matches display name or last message text, case-insensitively.
func (r *Roster) List(filter Filter, query string) []Entry {
	q := strings.ToLower(query)

	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if filter == FilterUnread && e.UnreadCount == 0 {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.DisplayName), q) &&
			!strings.Contains(strings.ToLower(e.LastMessage), q) {
			continue
		}
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].CounterpartID < out[j].CounterpartID
	})
	return out
}

// UnreadConversations counts entries with at least one unread message.
func (r *Roster) UnreadConversations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.UnreadCount > 0 {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
