package wa

import (
	"strings"

	"github.com/matheus3301/chatline/internal/chat"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseLiveMessage normalizes a live whatsmeow message event. ok is false for anything
// the feed cannot show: group and broadcast chats, and messages without text.
func ParseLiveMessage(evt *events.Message) (msg chat.Message, ok bool) {
	if !isDirectChat(evt.Info.Chat) {
		return chat.Message{}, false
	}
	body := extractTextBody(evt.Message)
	if strings.TrimSpace(body) == "" {
		return chat.Message{}, false
	}
	status := chat.StatusDelivered
	if evt.Info.IsFromMe {
		status = chat.StatusSent
	}
	return chat.Message{
		ID:            evt.Info.ID,
		CounterpartID: evt.Info.Chat.ToNonAD().String(),
		FromMe:        evt.Info.IsFromMe,
		Body:          body,
		CreatedAt:     evt.Info.Timestamp,
		Status:        status,
	}, true
}

// historyStatus maps a WhatsApp web message status to a delivery status.
func historyStatus(fromMe bool, st waWeb.WebMessageInfo_Status) chat.Status {
	switch st {
	case waWeb.WebMessageInfo_READ, waWeb.WebMessageInfo_PLAYED:
		return chat.StatusRead
	case waWeb.WebMessageInfo_DELIVERY_ACK:
		return chat.StatusDelivered
	}
	if !fromMe {
		return chat.StatusDelivered
	}
	if st == waWeb.WebMessageInfo_SERVER_ACK {
		return chat.StatusSent
	}
	// ERROR and PENDING never reached the server.
	return chat.StatusFailed
}

// isDirectChat reports whether jid names a one-to-one conversation.
func isDirectChat(jid types.JID) bool {
	switch jid.Server {
	case types.DefaultUserServer, types.HiddenUserServer:
		return true
	}
	return false
}

// NormalizeJID strips device and agent suffixes from a JID string.
// "558592403672:0@s.whatsapp.net" becomes "558592403672@s.whatsapp.net".
func NormalizeJID(raw string) string {
	if raw == "" {
		return ""
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		return raw
	}
	return jid.ToNonAD().String()
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
