package bus

import "time"

// Event kinds. Subscribers filter by namespace prefix, e.g. "transport." or "feed.".
const (
	TransportMessage      = "transport.message"
	TransportReceipt      = "transport.receipt"
	TransportPresence     = "transport.presence"
	TransportConnected    = "transport.connected"
	TransportDisconnected = "transport.disconnected"

	FeedAppended      = "feed.appended"
	FeedStatusChanged = "feed.status_changed"
	FeedPresence      = "feed.presence"

	RosterUpdated = "roster.updated"

	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	SessionStatusChanged = "session.status_changed"
	SessionQRGenerated   = "session.qr_generated"
	SessionAuthenticated = "session.authenticated"
	SessionAuthFailed    = "session.auth_failed"
	SessionLoggedOut     = "session.logged_out"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
