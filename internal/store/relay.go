package store

import (
	"fmt"

	"github.com/matheus3301/chatline/internal/chat"
)

// SaveRelayMessage persists a routed message. A duplicate msg_id is ignored and
// reported as false.
func (db *DB) SaveRelayMessage(m *RelayMessage) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO relay_messages (msg_id, sender, recipient, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		m.MsgID, m.Sender, m.Recipient, m.Body, m.Status, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("save relay message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AdvanceRelayStatus moves the status of the named messages forward. Only messages sent
// by sender to recipient are touched; it returns the ids that actually changed.
func (db *DB) AdvanceRelayStatus(sender, recipient string, ids []string, to chat.Status) ([]string, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var changed []string
	for _, id := range ids {
		var current string
		err := tx.QueryRow(`SELECT status FROM relay_messages WHERE msg_id = ? AND sender = ? AND recipient = ?`, id, sender, recipient).Scan(&current)
		if err != nil {
			continue
		}
		if !chat.Status(current).CanAdvance(to) {
			continue
		}
		if _, err := tx.Exec(`UPDATE relay_messages SET status = ? WHERE msg_id = ?`, string(to), id); err != nil {
			return nil, fmt.Errorf("update relay status %q: %w", id, err)
		}
		changed = append(changed, id)
	}
	return changed, tx.Commit()
}

// RelayConversation returns the newest limit messages exchanged between two users, in
// chronological order.
func (db *DB) RelayConversation(a, b string, limit int) ([]RelayMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT seq, msg_id, sender, recipient, body, status, created_at FROM (
			SELECT * FROM relay_messages
			WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`, a, b, b, a, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []RelayMessage
	for rows.Next() {
		var m RelayMessage
		if err := rows.Scan(&m.Seq, &m.MsgID, &m.Sender, &m.Recipient, &m.Body, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UndeliveredFor returns messages addressed to recipient that never reached it.
func (db *DB) UndeliveredFor(recipient string) ([]RelayMessage, error) {
	rows, err := db.Query(`
		SELECT seq, msg_id, sender, recipient, body, status, created_at
		FROM relay_messages
		WHERE recipient = ? AND status = ?
		ORDER BY created_at ASC, seq ASC`, recipient, string(chat.StatusSent))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []RelayMessage
	for rows.Next() {
		var m RelayMessage
		if err := rows.Scan(&m.Seq, &m.MsgID, &m.Sender, &m.Recipient, &m.Body, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
