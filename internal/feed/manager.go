package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/roster"
	"go.uber.org/zap"
)

// historyTimeout bounds a history fetch started in the background by Compose.
const historyTimeout = 30 * time.Second

// Directory resolves counterpart identities. Lookup returns nil, nil for unknown ids.
type Directory interface {
	Lookup(ctx context.Context, id string) (*chat.Profile, error)
}

// HistoryFetcher loads the full history of a conversation from the transport.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, counterpartID string) ([]chat.Message, error)
}

// Manager owns one Feed per counterpart and tracks which one is visible.
type Manager struct {
	mu     sync.Mutex
	feeds  map[string]*Feed
	active string

	roster  *roster.Roster
	dir     Directory
	history HistoryFetcher
	sender  Sender
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewManager creates a feed manager. dir, history and sender may be nil.
func NewManager(r *roster.Roster, dir Directory, history HistoryFetcher, sender Sender, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		feeds:   make(map[string]*Feed),
		roster:  r,
		dir:     dir,
		history: history,
		sender:  sender,
		bus:     b,
		logger:  logger,
	}
}

// Open returns the feed for counterpartID, creating it if needed, and runs the one-time
// history fetch. Counterparts unknown to both the directory and the roster are rejected
// with chat.ErrNotFound.
func (m *Manager) Open(ctx context.Context, counterpartID string) (*Feed, error) {
	f, err := m.resolve(ctx, counterpartID)
	if err != nil {
		return nil, err
	}
	m.loadHistory(ctx, f)
	return f, nil
}

// resolve returns the feed for counterpartID without touching history.
func (m *Manager) resolve(ctx context.Context, counterpartID string) (*Feed, error) {
	f, ok := m.Feed(counterpartID)
	if !ok {
		profile, err := m.lookup(ctx, counterpartID)
		if err != nil {
			return nil, err
		}
		if profile == nil && (m.roster == nil || !m.roster.Has(counterpartID)) {
			return nil, fmt.Errorf("open %q: %w", counterpartID, chat.ErrNotFound)
		}
		if profile == nil {
			profile = &chat.Profile{ID: counterpartID}
		}
		f = m.getOrCreate(*profile)
	}
	return f, nil
}

// Activate opens the feed and makes it the visible conversation. Delivered incoming
// messages become read and the roster unread count resets.
func (m *Manager) Activate(ctx context.Context, counterpartID string) (*Feed, error) {
	f, err := m.Open(ctx, counterpartID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.feeds[m.active]
	m.active = counterpartID
	m.mu.Unlock()

	if prev != nil && prev != f {
		prev.setActive(false)
	}
	f.setActive(true)
	return f, nil
}

// Deactivate clears the visible conversation.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	prev := m.feeds[m.active]
	m.active = ""
	m.mu.Unlock()

	if prev != nil {
		prev.setActive(false)
	}
}

// ActiveID returns the visible counterpart, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Compose appends an outgoing message to the counterpart's feed. It does not wait for
// history: a feed that never loaded it fetches in the background.
func (m *Manager) Compose(ctx context.Context, counterpartID, text string) (chat.Message, error) {
	f, err := m.resolve(ctx, counterpartID)
	if err != nil {
		return chat.Message{}, err
	}
	msg, err := f.Compose(text)
	if err != nil {
		return msg, err
	}
	if m.history != nil && f.historyPending() {
		go func() {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
			defer cancel()
			m.loadHistory(hctx, f)
		}()
	}
	return msg, nil
}

// HandleIncoming routes a pushed message to its feed. A message from a counterpart with
// no feed yet creates one: receiving a message is what makes a counterpart known.
func (m *Manager) HandleIncoming(ctx context.Context, msg chat.Message) (chat.Message, bool) {
	f, ok := m.Feed(msg.CounterpartID)
	if !ok {
		profile, err := m.lookup(ctx, msg.CounterpartID)
		if err != nil {
			m.logger.Warn("directory lookup failed", zap.String("counterpart", msg.CounterpartID), zap.Error(err))
		}
		if profile == nil {
			profile = &chat.Profile{ID: msg.CounterpartID}
		}
		f = m.getOrCreate(*profile)
	}
	return f.OnIncoming(msg)
}

// Acknowledge marks an outgoing message as sent.
func (m *Manager) Acknowledge(counterpartID, messageID string) bool {
	f, ok := m.Feed(counterpartID)
	return ok && f.Acknowledge(messageID)
}

// Fail marks an outgoing message as failed.
func (m *Manager) Fail(counterpartID, messageID string) bool {
	f, ok := m.Feed(counterpartID)
	return ok && f.Fail(messageID)
}

// ApplyReceipt advances outgoing messages named by a delivery or read receipt.
func (m *Manager) ApplyReceipt(r chat.Receipt) int {
	f, ok := m.Feed(r.CounterpartID)
	if !ok {
		return 0
	}
	return f.ApplyReceipt(r)
}

// SetPresence records presence for a counterpart that has a feed.
func (m *Manager) SetPresence(u chat.PresenceUpdate) {
	if f, ok := m.Feed(u.CounterpartID); ok {
		f.SetPresence(u.Presence)
	}
}

// Feed returns an existing feed without opening it.
func (m *Manager) Feed(counterpartID string) (*Feed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[counterpartID]
	return f, ok
}

func (m *Manager) getOrCreate(profile chat.Profile) *Feed {
	m.mu.Lock()
	f, ok := m.feeds[profile.ID]
	if !ok {
		f = newFeed(profile, m.roster, m.sender, m.bus)
		m.feeds[profile.ID] = f
	}
	m.mu.Unlock()

	if m.roster != nil && profile.DisplayName != "" {
		m.roster.SetProfile(profile)
	}
	return f
}

func (m *Manager) lookup(ctx context.Context, id string) (*chat.Profile, error) {
	if m.dir == nil {
		return nil, nil
	}
	p, err := m.dir.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", id, err)
	}
	return p, nil
}

func (m *Manager) loadHistory(ctx context.Context, f *Feed) {
	if m.history == nil || !f.beginHistory() {
		return
	}
	msgs, err := m.history.FetchHistory(ctx, f.CounterpartID())
	if err != nil {
		f.endHistory(false)
		m.logger.Warn("history fetch failed", zap.String("counterpart", f.CounterpartID()), zap.Error(err))
		return
	}
	n := f.mergeHistory(msgs)
	f.endHistory(true)
	m.logger.Debug("history merged", zap.String("counterpart", f.CounterpartID()), zap.Int("fetched", len(msgs)), zap.Int("appended", n))
}

// RefreshProfile propagates a changed directory record to the feed and the roster.
func (m *Manager) RefreshProfile(p chat.Profile) {
	if f, ok := m.Feed(p.ID); ok {
		f.setProfile(p)
	}
	if m.roster != nil {
		m.roster.SetProfile(p)
	}
}
