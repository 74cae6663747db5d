package wa

import (
	"context"
	"strconv"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// StateHistorySyncedAt is the sync_state key holding the last history sync time.
const StateHistorySyncedAt = "wa.history_synced_at"

// EventHandler processes whatsmeow events, drives the state machine,
// and publishes transport events on the bus. It does not touch the feeds;
// the sync engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	adapter *Adapter
	db      *store.DB
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. adapter and db may be nil.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, db *store.DB, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		bus:     b,
		machine: machine,
		adapter: adapter,
		db:      db,
		logger:  logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.Presence:
		h.handlePresence(evt)
	case *events.PushName:
		h.saveName(h.resolveJID(evt.JID.String()), evt.NewPushName)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		switch h.machine.Current() {
		case status.AuthRequired, status.Reconnecting, status.Stopped:
			h.machine.Settle(status.Connecting)
		}
		h.machine.Settle(status.Syncing)
		h.bus.Emit(bus.TransportConnected, nil)
	case *events.OfflineSyncCompleted:
		h.machine.Settle(status.Ready)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.machine.Settle(status.Reconnecting)
		h.bus.Emit(bus.TransportDisconnected, nil)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.machine.Settle(status.AuthRequired)
		h.bus.Emit(bus.SessionLoggedOut, evt.Reason.String())
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if h.machine.Current() == status.Syncing {
		h.machine.Settle(status.Ready)
	}
	if evt.Info.IsFromMe {
		// Sent from another linked device; our own sends reach the feed through compose.
		return
	}

	msg, ok := ParseLiveMessage(evt)
	if !ok {
		h.logger.Debug("skipping message",
			zap.String("id", evt.Info.ID),
			zap.String("chat", evt.Info.Chat.String()),
			zap.String("type", detectMessageType(evt.Message)),
		)
		return
	}
	msg.CounterpartID = h.resolveJID(msg.CounterpartID)
	h.saveName(msg.CounterpartID, evt.Info.PushName)
	h.bus.Emit(bus.TransportMessage, msg)
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	if evt.IsFromMe || !isDirectChat(evt.Chat) {
		return
	}
	var st chat.Status
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		st = chat.StatusDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf, types.ReceiptTypePlayed:
		st = chat.StatusRead
	default:
		return
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, h.adapter.clientID(id))
	}
	h.bus.Emit(bus.TransportReceipt, chat.Receipt{
		CounterpartID: h.resolveJID(evt.Chat.String()),
		MessageIDs:    ids,
		Status:        st,
		At:            evt.Timestamp,
	})
}

func (h *EventHandler) handlePresence(evt *events.Presence) {
	h.bus.Emit(bus.TransportPresence, chat.PresenceUpdate{
		CounterpartID: h.resolveJID(evt.From.String()),
		Presence: chat.Presence{
			Online:   !evt.Unavailable,
			LastSeen: evt.LastSeen,
		},
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var msgs []chat.Message
	var contacts []store.Contact
	for _, conv := range data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil || !isDirectChat(chatJID) {
			continue
		}
		counterpart := h.resolveJID(chatJID.String())
		named := conv.GetName() != ""
		if named {
			contacts = append(contacts, store.Contact{ID: counterpart, DisplayName: conv.GetName()})
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			body := extractTextBody(wmsg.GetMessage())
			if body == "" {
				continue
			}
			fromMe := wmsg.GetKey().GetFromMe()
			msgs = append(msgs, chat.Message{
				ID:            wmsg.GetKey().GetID(),
				CounterpartID: counterpart,
				FromMe:        fromMe,
				Body:          body,
				CreatedAt:     time.Unix(int64(wmsg.GetMessageTimestamp()), 0),
				Status:        historyStatus(fromMe, wmsg.GetStatus()),
			})
			if !fromMe && !named && wmsg.GetPushName() != "" {
				contacts = append(contacts, store.Contact{ID: counterpart, DisplayName: wmsg.GetPushName()})
				named = true
			}
		}
	}

	h.logger.Info("history sync received",
		zap.Int("messages", len(msgs)),
		zap.Int("contacts", len(contacts)),
	)
	if h.db != nil {
		if len(contacts) > 0 {
			if err := h.db.BulkUpsertContacts(contacts); err != nil {
				h.logger.Warn("failed to save history contacts", zap.Error(err))
			}
		}
		journal := store.NewJournal(h.db, 0)
		for _, m := range msgs {
			if err := journal.Record(m); err != nil {
				h.logger.Warn("failed to journal history message", zap.String("id", m.ID), zap.Error(err))
			}
		}
		if err := h.db.SetState(StateHistorySyncedAt, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
			h.logger.Warn("failed to save sync checkpoint", zap.Error(err))
		}
	}
	h.machine.Settle(status.Ready)
}

func (h *EventHandler) saveName(id, name string) {
	if h.db == nil || id == "" || name == "" {
		return
	}
	if err := h.db.UpsertContact(&store.Contact{ID: id, DisplayName: name}); err != nil {
		h.logger.Warn("failed to save contact name", zap.String("id", id), zap.Error(err))
	}
}

// resolveJID normalizes a JID and maps LIDs to phone numbers when the adapter can.
func (h *EventHandler) resolveJID(raw string) string {
	norm := NormalizeJID(raw)
	if h.adapter == nil {
		return norm
	}
	jid, err := types.ParseJID(norm)
	if err != nil {
		return norm
	}
	return h.adapter.ResolveLID(context.Background(), jid).ToNonAD().String()
}
