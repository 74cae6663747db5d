package store

// Contact is a directory record for a counterpart.
type Contact struct {
	ID          string
	DisplayName string
	AvatarRef   string
	UpdatedAt   int64
}

// Message is a journaled conversation message. CreatedAt is unix milliseconds.
type Message struct {
	ID            int64
	CounterpartID string
	MsgID         string
	FromMe        bool
	Body          string
	Status        string
	CreatedAt     int64
}

// RelayMessage is a message routed through the relay.
type RelayMessage struct {
	Seq       int64
	MsgID     string
	Sender    string
	Recipient string
	Body      string
	Status    string
	CreatedAt int64
}
