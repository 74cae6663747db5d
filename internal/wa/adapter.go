// Package wa adapts a whatsmeow client into a chatline transport.
package wa

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
// It implements transport.Transport; history is served from the local journal, which the
// event handler fills from WhatsApp history syncs.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	db        *store.DB
	journal   *store.Journal
	bus       *bus.Bus
	machine   *status.Machine
	logger    *zap.Logger

	mu sync.Mutex
	// WhatsApp assigns its own ids; receipts name those, the feed knows ours.
	clientIDs map[string]string
}

// NewAdapter opens the whatsmeow device store at sessionDBPath and wires the event handler.
func NewAdapter(ctx context.Context, sessionDBPath string, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("chatline", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", sessionDBPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		db:        db,
		journal:   store.NewJournal(db, 0),
		bus:       b,
		machine:   machine,
		logger:    logger,
		clientIDs: make(map[string]string),
	}
	handler := NewEventHandler(b, machine, a, db, logger)
	a.client.AddEventHandler(handler.Handle)
	return a, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client != nil && a.client.Store.ID != nil
}

// Connect connects with stored credentials. Without credentials it only moves the state
// machine to AUTH_REQUIRED; pairing happens through StartQRAuth.
func (a *Adapter) Connect(context.Context) error {
	if !a.IsLoggedIn() {
		a.logger.Info("no WhatsApp credentials, waiting for QR pairing")
		a.machine.Settle(status.AuthRequired)
		return nil
	}
	a.logger.Info("connecting to WhatsApp")
	a.machine.Settle(status.Connecting)
	return a.client.Connect()
}

// Close terminates the WhatsApp connection.
func (a *Adapter) Close() error {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
	a.machine.Settle(status.Stopped)
	return nil
}

// Connected reports whether sends can currently reach WhatsApp.
func (a *Adapter) Connected() bool {
	return a.IsLoggedIn() && a.client.IsConnected()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Send sends a text message to the given JID. Returns the server message ID.
func (a *Adapter) Send(ctx context.Context, counterpartID, clientMsgID, text string) (string, error) {
	if !a.Connected() {
		return "", chat.ErrNotConnected
	}
	to, err := types.ParseJID(counterpartID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	a.remember(resp.ID, clientMsgID)
	return resp.ID, nil
}

// SendReceipt marks incoming messages as read on WhatsApp. Delivery receipts are sent
// by whatsmeow itself.
func (a *Adapter) SendReceipt(ctx context.Context, r chat.Receipt) error {
	if r.Status != chat.StatusRead || len(r.MessageIDs) == 0 {
		return nil
	}
	if !a.Connected() {
		return chat.ErrNotConnected
	}
	peer, err := types.ParseJID(r.CounterpartID)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	ids := make([]types.MessageID, len(r.MessageIDs))
	copy(ids, r.MessageIDs)
	return a.client.MarkRead(ctx, ids, r.At, peer, peer)
}

// FetchHistory returns the journaled conversation with counterpartID.
func (a *Adapter) FetchHistory(ctx context.Context, counterpartID string) ([]chat.Message, error) {
	return a.journal.FetchHistory(ctx, counterpartID)
}

// ImportContacts copies the contacts of the whatsmeow device store into the directory.
func (a *Adapter) ImportContacts(ctx context.Context) (int, error) {
	contacts := a.GetContacts(ctx)
	if len(contacts) == 0 || a.db == nil {
		return 0, nil
	}
	if err := a.db.BulkUpsertContacts(contacts); err != nil {
		return 0, fmt.Errorf("import contacts: %w", err)
	}
	return len(contacts), nil
}

// GetContacts returns all contacts from the whatsmeow device store.
func (a *Adapter) GetContacts(ctx context.Context) []store.Contact {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return nil
	}
	var contacts []store.Contact
	for jid, info := range allContacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		contacts = append(contacts, store.Contact{
			ID:          jid.ToNonAD().String(),
			DisplayName: name,
		})
	}
	return contacts
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if !a.IsLoggedIn() {
		return ""
	}
	return a.client.Store.ID.User
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a == nil || a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

func (a *Adapter) remember(serverID, clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clientIDs[serverID] = clientID
}

// clientID maps a WhatsApp message id back to the id the feed knows.
func (a *Adapter) clientID(serverID string) string {
	if a == nil {
		return serverID
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.clientIDs[serverID]; ok {
		return id
	}
	return serverID
}
