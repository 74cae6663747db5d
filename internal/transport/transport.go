// Package transport defines the real-time link between the client core and a chat network.
//
// Implementations publish what they receive on the bus: chat.Message under
// bus.TransportMessage, chat.Receipt under bus.TransportReceipt, chat.PresenceUpdate under
// bus.TransportPresence, plus bus.TransportConnected and bus.TransportDisconnected.
package transport

import (
	"context"

	"github.com/matheus3301/chatline/internal/chat"
)

// Transport is a connection to a chat network.
type Transport interface {
	// Connect starts the connection. Reconnection after a drop is the transport's job.
	Connect(ctx context.Context) error
	// Close stops the connection and any reconnect attempts.
	Close() error
	// Connected reports whether sends can currently reach the network.
	Connected() bool

	// Send delivers a text message and returns the network's id for it once acknowledged.
	// It fails fast with chat.ErrNotConnected while disconnected.
	Send(ctx context.Context, counterpartID, clientMsgID, text string) (serverMsgID string, err error)
	// SendReceipt reports that the listed incoming messages were delivered or read.
	SendReceipt(ctx context.Context, r chat.Receipt) error
	// FetchHistory returns the conversation with counterpartID, oldest first.
	FetchHistory(ctx context.Context, counterpartID string) ([]chat.Message, error)
}
