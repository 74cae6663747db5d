package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + relay)", result.Version)
	}
}

func TestMigrateReportsFromAndSchemaVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	v, err := db.SchemaVersion()
	if err != nil || v != 0 {
		t.Fatalf("fresh SchemaVersion() = %d, %v; want 0, nil", v, err)
	}

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.From != 0 || result.Version != 2 || !result.Changed {
		t.Errorf("unexpected result %+v", result)
	}

	if v, err := db.SchemaVersion(); err != nil || v != 2 {
		t.Errorf("SchemaVersion() = %d, %v; want 2, nil", v, err)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the migrations create every column the
// directory, journal and relay depend on.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert contact", "INSERT INTO contacts (id, display_name, avatar_ref) VALUES (?, ?, ?)", []any{"alice", "Alice", "a.png"}},
		{"insert message", "INSERT INTO messages (counterpart_id, msg_id, from_me, body, status, created_at) VALUES (?, ?, ?, ?, ?, ?)", []any{"alice", "m1", true, "hi", "pending", 1000}},
		{"set sync state", "INSERT INTO sync_state (key, value) VALUES (?, ?)", []any{"k", "v"}},
		{"insert relay message", "INSERT INTO relay_messages (msg_id, sender, recipient, body, created_at) VALUES (?, ?, ?, ?, ?)", []any{"r1", "alice", "bob", "hey", 1000}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestContactUpsertKeepsNonEmptyFields(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertContact(&Contact{ID: "alice", DisplayName: "Alice", AvatarRef: "a.png"}); err != nil {
		t.Fatal(err)
	}
	// An update without avatar keeps the stored one.
	if err := db.UpsertContact(&Contact{ID: "alice", DisplayName: "Alice Liddell"}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetContact("alice")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.DisplayName != "Alice Liddell" || c.AvatarRef != "a.png" {
		t.Errorf("got %+v, want renamed contact with avatar kept", c)
	}

	if err := db.UpsertContact(&Contact{}); err == nil {
		t.Error("expected error for empty contact id")
	}
}

func TestGetContactMissing(t *testing.T) {
	db := testDB(t)

	c, err := db.GetContact("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing contact, got %+v", c)
	}
}

func TestBulkUpsertAndListContacts(t *testing.T) {
	db := testDB(t)

	err := db.BulkUpsertContacts([]Contact{
		{ID: "c", DisplayName: "carol"},
		{ID: "a", DisplayName: "Alice"},
		{ID: ""},
		{ID: "b", DisplayName: "Bob"},
	})
	if err != nil {
		t.Fatal(err)
	}

	contacts, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("ids = %v, want [a b c]", ids)
	}
	if n, _ := db.ContactCount(); n != 3 {
		t.Errorf("ContactCount() = %d, want 3", n)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := &Message{CounterpartID: "alice", MsgID: "m1", Body: "hello", Status: "delivered", CreatedAt: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListConversation("alice", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if n, _ := db.MessageCount(); n != 1 {
		t.Errorf("MessageCount() = %d, want 1", n)
	}
}

func TestMessageStatusNeverMovesBackwards(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{CounterpartID: "bob", MsgID: "m1", FromMe: true, Body: "x", Status: "read", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	// A late write with an older status is absorbed.
	if err := db.UpsertMessage(&Message{CounterpartID: "bob", MsgID: "m1", FromMe: true, Body: "x", Status: "sent", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		to      chat.Status
		changed bool
	}{
		{chat.StatusDelivered, false},
		{chat.StatusFailed, false},
		{chat.StatusRead, false},
	}
	for _, tt := range tests {
		changed, err := db.UpdateMessageStatus("bob", "m1", tt.to)
		if err != nil {
			t.Fatal(err)
		}
		if changed != tt.changed {
			t.Errorf("UpdateMessageStatus(%s) = %v, want %v", tt.to, changed, tt.changed)
		}
	}

	msgs, _ := db.ListConversation("bob", 0)
	if msgs[0].Status != "read" {
		t.Errorf("status = %q, want read", msgs[0].Status)
	}

	if changed, err := db.UpdateMessageStatus("bob", "missing", chat.StatusRead); err != nil || changed {
		t.Errorf("unknown message: changed=%v err=%v", changed, err)
	}
}

func TestListConversationReturnsNewestChronologically(t *testing.T) {
	db := testDB(t)

	for i, ts := range []int64{3000, 1000, 2000, 4000} {
		m := &Message{CounterpartID: "alice", MsgID: string(rune('a' + i)), Body: "x", Status: "delivered", CreatedAt: ts}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertMessage(&Message{CounterpartID: "bob", MsgID: "z", Status: "delivered", CreatedAt: 5000}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListConversation("alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{2000, 3000, 4000}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.CreatedAt != want[i] {
			t.Errorf("msgs[%d].CreatedAt = %d, want %d", i, m.CreatedAt, want[i])
		}
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	if v, err := db.GetState("history"); err != nil || v != "" {
		t.Fatalf("GetState(unset) = %q, %v", v, err)
	}
	if err := db.SetState("history", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState("history", "2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetState("history"); v != "2" {
		t.Errorf("GetState = %q, want 2", v)
	}
}

func TestDirectoryLookup(t *testing.T) {
	db := testDB(t)
	dir := NewDirectory(db)

	p, err := dir.Lookup(context.Background(), "alice")
	if err != nil || p != nil {
		t.Fatalf("Lookup(unknown) = %v, %v; want nil, nil", p, err)
	}

	if err := db.UpsertContact(&Contact{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	p, err = dir.Lookup(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Name() != "Alice" {
		t.Errorf("Lookup = %+v, want Alice", p)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	db := testDB(t)
	j := NewJournal(db, 50)

	at := time.UnixMilli(1_700_000_000_000)
	out := chat.Message{ID: "c1", CounterpartID: "bob", FromMe: true, Body: "hi", Status: chat.StatusPending, CreatedAt: at}
	in := chat.Message{ID: "s1", CounterpartID: "bob", Body: "hey", Status: chat.StatusDelivered, CreatedAt: at.Add(time.Second)}
	for _, m := range []chat.Message{out, in} {
		if err := j.Record(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Advance("bob", "c1", chat.StatusSent); err != nil {
		t.Fatal(err)
	}

	hist, err := j.FetchHistory(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d messages, want 2", len(hist))
	}
	if hist[0].ID != "c1" || hist[0].Status != chat.StatusSent || !hist[0].FromMe {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if !hist[1].CreatedAt.Equal(in.CreatedAt) || hist[1].Body != "hey" {
		t.Errorf("hist[1] = %+v", hist[1])
	}
}

func TestRelayMessages(t *testing.T) {
	db := testDB(t)

	saved, err := db.SaveRelayMessage(&RelayMessage{MsgID: "r1", Sender: "alice", Recipient: "bob", Body: "hi", Status: "sent", CreatedAt: 1000})
	if err != nil || !saved {
		t.Fatalf("SaveRelayMessage = %v, %v", saved, err)
	}
	saved, err = db.SaveRelayMessage(&RelayMessage{MsgID: "r1", Sender: "alice", Recipient: "bob", Body: "hi", Status: "sent", CreatedAt: 1000})
	if err != nil || saved {
		t.Fatalf("duplicate SaveRelayMessage = %v, %v; want false, nil", saved, err)
	}
	if _, err := db.SaveRelayMessage(&RelayMessage{MsgID: "r2", Sender: "bob", Recipient: "alice", Body: "yo", Status: "sent", CreatedAt: 2000}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.UndeliveredFor("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].MsgID != "r1" {
		t.Fatalf("UndeliveredFor(bob) = %+v", pending)
	}

	// Only the recipient's receipt for messages it received counts.
	changed, err := db.AdvanceRelayStatus("bob", "alice", []string{"r1"}, chat.StatusRead)
	if err != nil || len(changed) != 0 {
		t.Fatalf("wrong direction changed %v, %v", changed, err)
	}
	changed, err = db.AdvanceRelayStatus("alice", "bob", []string{"r1", "missing"}, chat.StatusDelivered)
	if err != nil || len(changed) != 1 {
		t.Fatalf("AdvanceRelayStatus = %v, %v", changed, err)
	}

	conv, err := db.RelayConversation("bob", "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 2 || conv[0].MsgID != "r1" || conv[0].Status != "delivered" || conv[1].MsgID != "r2" {
		t.Errorf("RelayConversation = %+v", conv)
	}
}
