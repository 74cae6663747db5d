// Package feed holds the ordered message history of each conversation.
package feed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/roster"
)

// Sender hands messages and receipts to the transport without blocking.
type Sender interface {
	SendText(msg chat.Message)
	SendReceipt(r chat.Receipt)
}

// StatusChange is the payload of feed.status_changed events.
type StatusChange struct {
	CounterpartID string
	MessageID     string
	From          chat.Status
	To            chat.Status
}

type historyState int

const (
	historyNone historyState = iota
	historyLoading
	historyLoaded
)

// Feed is the conversation with one counterpart. Messages are kept in chronological
// order by (CreatedAt, Seq); every mutation is a single append-and-notify step.
type Feed struct {
	mu            sync.RWMutex
	counterpartID string
	profile       chat.Profile
	messages      []chat.Message
	seen          map[string]struct{}
	seq           uint64
	active        bool
	history       historyState
	presence      chat.Presence

	roster *roster.Roster
	sender Sender
	bus    *bus.Bus
	now    func() time.Time
	newID  func() string
}

func newFeed(profile chat.Profile, r *roster.Roster, s Sender, b *bus.Bus) *Feed {
	return &Feed{
		counterpartID: profile.ID,
		profile:       profile,
		seen:          make(map[string]struct{}),
		roster:        r,
		sender:        s,
		bus:           b,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// CounterpartID returns the identity of the other participant.
func (f *Feed) CounterpartID() string { return f.counterpartID }

// Profile returns the counterpart's directory record.
func (f *Feed) Profile() chat.Profile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.profile
}

// Compose appends a pending outgoing message and asks the transport to send it.
// It returns as soon as the message is in the feed.
func (f *Feed) Compose(text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, chat.ErrEmptyMessage
	}

	f.mu.Lock()
	msg := chat.Message{
		ID:            f.newID(),
		CounterpartID: f.counterpartID,
		FromMe:        true,
		Body:          text,
		CreatedAt:     f.now(),
		Status:        chat.StatusPending,
	}
	msg = f.insertLocked(msg)
	f.mu.Unlock()

	f.bus.Emit(bus.FeedAppended, msg)
	if f.sender != nil {
		f.sender.SendText(msg)
	}
	return msg, nil
}

// OnIncoming appends a message pushed by the counterpart. Redelivered ids are ignored
// and reported as not appended. An active feed reads the message immediately and sends
// a read receipt; otherwise it stays delivered.
func (f *Feed) OnIncoming(msg chat.Message) (chat.Message, bool) {
	msg.CounterpartID = f.counterpartID
	msg.FromMe = false

	f.mu.Lock()
	if _, dup := f.seen[msg.ID]; dup {
		f.mu.Unlock()
		return msg, false
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = f.now()
	}
	msg.Status = chat.StatusDelivered
	if f.active {
		msg.Status = chat.StatusRead
	}
	msg = f.insertLocked(msg)
	f.mu.Unlock()

	f.bus.Emit(bus.FeedAppended, msg)
	if msg.Status == chat.StatusRead {
		f.sendReceipt([]string{msg.ID}, chat.StatusRead)
	}
	return msg, true
}

// Acknowledge marks an outgoing message as sent.
func (f *Feed) Acknowledge(id string) bool {
	return f.advance(id, chat.StatusSent)
}

// Fail marks a pending outgoing message as failed. The message stays in the feed.
func (f *Feed) Fail(id string) bool {
	return f.advance(id, chat.StatusFailed)
}

// ApplyReceipt advances the listed outgoing messages. Regressions and unknown ids are
// ignored. Returns the number of messages that changed.
func (f *Feed) ApplyReceipt(r chat.Receipt) int {
	n := 0
	for _, id := range r.MessageIDs {
		if f.advance(id, r.Status) {
			n++
		}
	}
	return n
}

// SetPresence records the counterpart's online state.
func (f *Feed) SetPresence(p chat.Presence) {
	f.mu.Lock()
	f.presence = p
	f.mu.Unlock()
	f.bus.Emit(bus.FeedPresence, chat.PresenceUpdate{CounterpartID: f.counterpartID, Presence: p})
}

// Presence returns the last known online state.
func (f *Feed) Presence() chat.Presence {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.presence
}

// Messages returns the conversation newest-first, as the message list renders it.
func (f *Feed) Messages() []chat.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]chat.Message, len(f.messages))
	for i, m := range f.messages {
		out[len(f.messages)-1-i] = m
	}
	return out
}

// Chronological returns the conversation oldest-first.
func (f *Feed) Chronological() []chat.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]chat.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Get returns a message by id.
func (f *Feed) Get(id string) (chat.Message, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i := f.findLocked(id); i >= 0 {
		return f.messages[i], true
	}
	return chat.Message{}, false
}

// Len returns the number of messages.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.messages)
}

// Active reports whether this feed is the visible conversation.
func (f *Feed) Active() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// mergeHistory folds fetched history into the feed, skipping ids already present.
func (f *Feed) mergeHistory(history []chat.Message) int {
	sorted := make([]chat.Message, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var appended []chat.Message
	var toRead []string

	f.mu.Lock()
	for _, msg := range sorted {
		if _, dup := f.seen[msg.ID]; dup || msg.ID == "" {
			continue
		}
		msg.CounterpartID = f.counterpartID
		if !msg.Status.Valid() {
			msg.Status = chat.StatusDelivered
		}
		if !msg.FromMe {
			if msg.Status == chat.StatusPending || msg.Status == chat.StatusSent || msg.Status == chat.StatusFailed {
				msg.Status = chat.StatusDelivered
			}
			if f.active && msg.Status == chat.StatusDelivered {
				msg.Status = chat.StatusRead
				toRead = append(toRead, msg.ID)
			}
		}
		appended = append(appended, f.insertLocked(msg))
	}
	f.mu.Unlock()

	for _, msg := range appended {
		f.bus.Emit(bus.FeedAppended, msg)
	}
	if len(toRead) > 0 {
		f.sendReceipt(toRead, chat.StatusRead)
	}
	return len(appended)
}

// setActive flips the visible state. Activation reads every delivered incoming message
// and sends one read receipt for them.
func (f *Feed) setActive(active bool) {
	var read []string
	var changes []StatusChange

	f.mu.Lock()
	f.active = active
	if active {
		for i := range f.messages {
			m := &f.messages[i]
			if !m.FromMe && m.Status == chat.StatusDelivered {
				changes = append(changes, StatusChange{f.counterpartID, m.ID, m.Status, chat.StatusRead})
				m.Status = chat.StatusRead
				read = append(read, m.ID)
			}
		}
		if f.roster != nil {
			f.roster.MarkRead(f.counterpartID)
		}
	}
	f.mu.Unlock()

	for _, c := range changes {
		f.bus.Emit(bus.FeedStatusChanged, c)
	}
	if len(read) > 0 {
		f.sendReceipt(read, chat.StatusRead)
	}
}

// beginHistory claims the one-time history fetch. Returns false if it already ran or is running.
func (f *Feed) beginHistory() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.history != historyNone {
		return false
	}
	f.history = historyLoading
	return true
}

// historyPending reports whether the one-time history fetch has not started yet.
func (f *Feed) historyPending() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.history == historyNone
}

func (f *Feed) endHistory(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.history = historyLoaded
	} else {
		f.history = historyNone
	}
}

func (f *Feed) setProfile(p chat.Profile) {
	f.mu.Lock()
	f.profile = p
	f.mu.Unlock()
}

// advance moves an outgoing message forward; incoming statuses are owned by the feed.
func (f *Feed) advance(id string, to chat.Status) bool {
	f.mu.Lock()
	i := f.findLocked(id)
	if i < 0 {
		f.mu.Unlock()
		return false
	}
	m := &f.messages[i]
	if !m.FromMe || !m.Status.CanAdvance(to) {
		f.mu.Unlock()
		return false
	}
	change := StatusChange{CounterpartID: f.counterpartID, MessageID: id, From: m.Status, To: to}
	m.Status = to
	f.mu.Unlock()

	f.bus.Emit(bus.FeedStatusChanged, change)
	return true
}

// insertLocked assigns the next sequence number and places msg at its sorted position.
// A new message carries the highest sequence, so it lands after every message with the
// same timestamp and nothing already in the feed moves relative to its neighbours.
// The roster sees the message under the same lock, so activation cannot slip between
// the append and the unread count.
func (f *Feed) insertLocked(msg chat.Message) chat.Message {
	f.seq++
	msg.Seq = f.seq
	pos := sort.Search(len(f.messages), func(i int) bool { return msg.Before(f.messages[i]) })
	f.messages = append(f.messages, chat.Message{})
	copy(f.messages[pos+1:], f.messages[pos:])
	f.messages[pos] = msg
	f.seen[msg.ID] = struct{}{}
	if f.roster != nil {
		f.roster.Update(f.counterpartID, msg)
	}
	return msg
}

func (f *Feed) findLocked(id string) int {
	if _, ok := f.seen[id]; !ok {
		return -1
	}
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *Feed) sendReceipt(ids []string, status chat.Status) {
	if f.sender == nil {
		return
	}
	f.sender.SendReceipt(chat.Receipt{
		CounterpartID: f.counterpartID,
		MessageIDs:    ids,
		Status:        status,
		At:            f.now(),
	})
}
