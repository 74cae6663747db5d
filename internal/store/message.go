package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// UpsertMessage records a message (idempotent on counterpart_id + msg_id).
// A repeated write never moves the stored status backwards.
func (db *DB) UpsertMessage(m *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRow(`SELECT status FROM messages WHERE counterpart_id = ? AND msg_id = ?`, m.CounterpartID, m.MsgID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`
			INSERT INTO messages (counterpart_id, msg_id, from_me, body, status, created_at, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.CounterpartID, m.MsgID, m.FromMe, m.Body, m.Status, m.CreatedAt, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read message: %w", err)
	default:
		status := current
		if chat.Status(current).CanAdvance(chat.Status(m.Status)) {
			status = m.Status
		}
		if _, err := tx.Exec(`UPDATE messages SET body = ?, status = ? WHERE counterpart_id = ? AND msg_id = ?`,
			m.Body, status, m.CounterpartID, m.MsgID); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateMessageStatus advances the status of a journaled message. It reports false when
// the message is unknown or the transition would move backwards.
func (db *DB) UpdateMessageStatus(counterpartID, msgID string, to chat.Status) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRow(`SELECT status FROM messages WHERE counterpart_id = ? AND msg_id = ?`, counterpartID, msgID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !chat.Status(current).CanAdvance(to) {
		return false, nil
	}
	if _, err := tx.Exec(`UPDATE messages SET status = ? WHERE counterpart_id = ? AND msg_id = ?`, string(to), counterpartID, msgID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ListConversation returns the newest limit messages of a conversation in chronological order.
func (db *DB) ListConversation(counterpartID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, counterpart_id, msg_id, from_me, body, status, created_at FROM (
			SELECT * FROM messages
			WHERE counterpart_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`, counterpartID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CounterpartID, &m.MsgID, &m.FromMe, &m.Body, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SetState stores a sync checkpoint value.
func (db *DB) SetState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// GetState returns a sync checkpoint value, or "" if unset.
func (db *DB) GetState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
