package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const upsertContactSQL = `
	INSERT INTO contacts (id, display_name, avatar_ref, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE contacts.display_name END,
		avatar_ref = CASE WHEN excluded.avatar_ref != '' THEN excluded.avatar_ref ELSE contacts.avatar_ref END,
		updated_at = excluded.updated_at`

// UpsertContact inserts or updates a contact. Empty fields keep their stored value.
func (db *DB) UpsertContact(c *Contact) error {
	if c.ID == "" {
		return errors.New("contact id is required")
	}
	_, err := db.Exec(upsertContactSQL, c.ID, c.DisplayName, c.AvatarRef, time.Now().UnixMilli())
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		if _, err := tx.Exec(upsertContactSQL, c.ID, c.DisplayName, c.AvatarRef, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetContact returns a contact by id, or nil if it does not exist.
func (db *DB) GetContact(id string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT id, display_name, avatar_ref, updated_at FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.AvatarRef, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts ordered by display name, then id.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`SELECT id, display_name, avatar_ref, updated_at FROM contacts ORDER BY display_name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.AvatarRef, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ContactCount returns the total number of contacts.
func (db *DB) ContactCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of journaled messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
