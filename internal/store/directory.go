package store

import (
	"context"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// Directory resolves counterparts from the contacts table.
type Directory struct {
	db *DB
}

// NewDirectory returns a contact directory backed by db.
func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

// Lookup returns the profile for id, or nil if the directory has no record of it.
func (d *Directory) Lookup(_ context.Context, id string) (*chat.Profile, error) {
	c, err := d.db.GetContact(id)
	if err != nil || c == nil {
		return nil, err
	}
	p := c.Profile()
	return &p, nil
}

// Profile converts a contact into its domain form.
func (c Contact) Profile() chat.Profile {
	return chat.Profile{ID: c.ID, DisplayName: c.DisplayName, AvatarRef: c.AvatarRef}
}

// Journal is the local record of exchanged messages. It serves conversation history for
// transports that cannot fetch it on demand.
type Journal struct {
	db    *DB
	limit int
}

// NewJournal returns a journal that serves at most limit messages per history fetch.
func NewJournal(db *DB, limit int) *Journal {
	return &Journal{db: db, limit: limit}
}

// Record stores msg, keeping the furthest status seen.
func (j *Journal) Record(msg chat.Message) error {
	return j.db.UpsertMessage(FromChat(msg))
}

// Advance moves a journaled message to a later status.
func (j *Journal) Advance(counterpartID, msgID string, to chat.Status) error {
	_, err := j.db.UpdateMessageStatus(counterpartID, msgID, to)
	return err
}

// FetchHistory returns the journaled conversation with counterpartID.
func (j *Journal) FetchHistory(_ context.Context, counterpartID string) ([]chat.Message, error) {
	rows, err := j.db.ListConversation(counterpartID, j.limit)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Chat())
	}
	return out, nil
}

// FromChat converts a domain message into its journal row.
func FromChat(msg chat.Message) *Message {
	return &Message{
		CounterpartID: msg.CounterpartID,
		MsgID:         msg.ID,
		FromMe:        msg.FromMe,
		Body:          msg.Body,
		Status:        string(msg.Status),
		CreatedAt:     msg.CreatedAt.UnixMilli(),
	}
}

// Chat converts a journal row into its domain form.
func (m Message) Chat() chat.Message {
	return chat.Message{
		ID:            m.MsgID,
		CounterpartID: m.CounterpartID,
		FromMe:        m.FromMe,
		Body:          m.Body,
		Status:        chat.Status(m.Status),
		CreatedAt:     time.UnixMilli(m.CreatedAt),
	}
}
