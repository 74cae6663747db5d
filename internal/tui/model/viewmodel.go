// Package model holds the state chattui renders, fetched from the daemon.
package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/client"
)

// Roster filters, mirroring the daemon's.
const (
	FilterAll    = "all"
	FilterUnread = "unread"
)

var errNoActiveFeed = errors.New("no conversation is open")

// Daemon is the subset of the client the view model calls.
type Daemon interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Roster(ctx context.Context, filter, query string) (*api.ListRosterResponse, error)
	MarkRead(ctx context.Context, counterpartID string) error
	OpenFeed(ctx context.Context, counterpartID string) (*api.FeedView, error)
	ActivateFeed(ctx context.Context, counterpartID string) (*api.FeedView, error)
	DeactivateFeed(ctx context.Context) error
	Compose(ctx context.Context, counterpartID, text string) (*api.Message, error)
	AddContact(ctx context.Context, contact api.Contact) (*api.Contact, error)
	ImportContacts(ctx context.Context) (int, error)
	Logout(ctx context.Context) error
}

var _ Daemon = (*client.Client)(nil)

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon  Daemon
	status  *api.StatusResponse
	entries []api.RosterEntry
	unread  int
	filter  string
	query   string
	feed    *api.FeedView

	refreshCh chan struct{}
}

// NewViewModel creates a view model backed by the daemon.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		filter:    FilterAll,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadRoster fetches the roster with the current filter and query.
func (vm *ViewModel) LoadRoster(ctx context.Context) error {
	vm.mu.RLock()
	filter, query := vm.filter, vm.query
	vm.mu.RUnlock()

	resp, err := vm.daemon.Roster(ctx, filter, query)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	// A filter change while the call was in flight makes this answer stale.
	if vm.filter == filter && vm.query == query {
		vm.entries = resp.Entries
		vm.unread = resp.UnreadConversations
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ToggleFilter switches between the all and unread tabs and returns the new one.
func (vm *ViewModel) ToggleFilter() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.filter == FilterAll {
		vm.filter = FilterUnread
	} else {
		vm.filter = FilterAll
	}
	return vm.filter
}

// SetFilter selects a roster tab.
func (vm *ViewModel) SetFilter(filter string) {
	vm.mu.Lock()
	vm.filter = filter
	vm.mu.Unlock()
}

// SetQuery sets the roster search text.
func (vm *ViewModel) SetQuery(q string) {
	vm.mu.Lock()
	vm.query = strings.TrimSpace(q)
	vm.mu.Unlock()
}

// MarkRead clears a conversation's unread counter and reloads the roster.
func (vm *ViewModel) MarkRead(ctx context.Context, counterpartID string) error {
	if err := vm.daemon.MarkRead(ctx, counterpartID); err != nil {
		return err
	}
	return vm.LoadRoster(ctx)
}

// OpenFeed makes counterpartID the active conversation and loads its messages.
func (vm *ViewModel) OpenFeed(ctx context.Context, counterpartID string) error {
	view, err := vm.daemon.ActivateFeed(ctx, counterpartID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.feed = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ReloadFeed refetches the active conversation without changing focus.
func (vm *ViewModel) ReloadFeed(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return nil
	}
	view, err := vm.daemon.OpenFeed(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.feed != nil && vm.feed.CounterpartID == id {
		vm.feed = view
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// CloseFeed leaves the active conversation.
func (vm *ViewModel) CloseFeed(ctx context.Context) error {
	vm.mu.Lock()
	vm.feed = nil
	vm.mu.Unlock()
	vm.signalRefresh()
	return vm.daemon.DeactivateFeed(ctx)
}

// Compose sends text to the active conversation.
func (vm *ViewModel) Compose(ctx context.Context, text string) error {
	id := vm.Active()
	if id == "" {
		return errNoActiveFeed
	}
	if _, err := vm.daemon.Compose(ctx, id, text); err != nil {
		return err
	}
	return vm.ReloadFeed(ctx)
}

// AddContact stores a directory entry.
func (vm *ViewModel) AddContact(ctx context.Context, id, name string) error {
	_, err := vm.daemon.AddContact(ctx, api.Contact{ID: id, DisplayName: name})
	return err
}

// ImportContacts asks the transport to import its address book.
func (vm *ViewModel) ImportContacts(ctx context.Context) (int, error) {
	return vm.daemon.ImportContacts(ctx)
}

// Logout unlinks the session.
func (vm *ViewModel) Logout(ctx context.Context) error {
	return vm.daemon.Logout(ctx)
}

// Status returns a snapshot of the session status.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Roster returns the visible entries and the unread conversation count.
func (vm *ViewModel) Roster() ([]api.RosterEntry, int) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.entries, vm.unread
}

// Filter returns the current roster tab and search text.
func (vm *ViewModel) Filter() (filter, query string) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter, vm.query
}

// Feed returns the active conversation, or nil.
func (vm *ViewModel) Feed() *api.FeedView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.feed
}

// Active returns the active counterpart id, or "".
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.feed == nil {
		return ""
	}
	return vm.feed.CounterpartID
}

// Refresh is a set of screen parts invalidated by an event.
type Refresh uint8

const (
	RefreshRoster Refresh = 1 << iota
	RefreshFeed
	RefreshStatus
)

// Has reports whether r includes part.
func (r Refresh) Has(part Refresh) bool { return r&part != 0 }

// Plan returns which parts of the screen evt invalidates while active is open.
func Plan(evt api.Event, active string) Refresh {
	switch {
	case evt.Kind == bus.RosterUpdated:
		return RefreshRoster | RefreshStatus
	case evt.Kind == bus.FeedAppended:
		var m api.Message
		if evt.Decode(&m) == nil && m.CounterpartID == active && active != "" {
			return RefreshFeed
		}
	case evt.Kind == bus.FeedStatusChanged:
		var p api.StatusChangePayload
		if evt.Decode(&p) == nil && p.CounterpartID == active && active != "" {
			return RefreshFeed
		}
	case evt.Kind == bus.FeedPresence:
		var p api.PresencePayload
		if evt.Decode(&p) == nil && p.CounterpartID == active && active != "" {
			return RefreshFeed
		}
	case evt.Kind == bus.MessageSendAck, evt.Kind == bus.MessageSendFailed:
		return RefreshStatus
	case strings.HasPrefix(evt.Kind, "session."),
		evt.Kind == bus.TransportConnected,
		evt.Kind == bus.TransportDisconnected:
		return RefreshStatus
	}
	return 0
}
