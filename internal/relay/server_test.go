package relay

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/protocol"
	"github.com/matheus3301/chatline/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewServer(db, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn}
}

// join dials and completes the hello/welcome handshake.
func join(t *testing.T, srv *httptest.Server, user string) (*peer, protocol.Welcome) {
	t.Helper()
	p := dial(t, srv)
	p.write(protocol.TypeHello, "", protocol.Hello{UserID: user})
	var w protocol.Welcome
	p.expect(protocol.TypeWelcome, &w)
	return p, w
}

func (p *peer) write(typ protocol.Type, ref string, data any) {
	p.t.Helper()
	frame, err := protocol.Encode(typ, ref, data)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		p.t.Fatal(err)
	}
}

// expect reads frames until one of the given type arrives and decodes it into v.
func (p *peer) expect(typ protocol.Type, v any) *protocol.Envelope {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("waiting for %s: %v", typ, err)
		}
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			p.t.Fatal(err)
		}
		if env.Type != typ {
			continue
		}
		if v != nil {
			if err := env.Decode(v); err != nil {
				p.t.Fatal(err)
			}
		}
		return env
	}
}

// confirm sends the delivered receipt a device answers a pushed message with.
func (p *peer) confirm(m protocol.Message) {
	p.t.Helper()
	p.write(protocol.TypeReceipt, "", protocol.Receipt{To: m.From, IDs: []string{m.ID}, Status: "delivered"})
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHelloRequired(t *testing.T) {
	_, srv := newTestServer(t)
	p := dial(t, srv)
	p.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "hi"})

	var ef protocol.ErrorFrame
	p.expect(protocol.TypeError, &ef)
	if ef.Code != protocol.ErrCodeNotIdentified {
		t.Errorf("code = %q, want %s", ef.Code, protocol.ErrCodeNotIdentified)
	}
}

func TestWelcomeListsOnlineUsersAndAnnouncesPresence(t *testing.T) {
	s, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")

	_, w := join(t, srv, "alice")
	if len(w.Online) != 1 || w.Online[0] != "bob" {
		t.Errorf("welcome online = %v, want [bob]", w.Online)
	}

	var p protocol.Presence
	bob.expect(protocol.TypePresence, &p)
	if p.UserID != "alice" || !p.Online {
		t.Errorf("presence = %+v", p)
	}
	if got := s.Hub().Online(); len(got) != 2 {
		t.Errorf("Online() = %v", got)
	}
}

func TestSendAcksDeliversAndReportsDelivery(t *testing.T) {
	_, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")
	alice, _ := join(t, srv, "alice")

	alice.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "hello", CreatedAt: 1000})

	var ack protocol.Ack
	env := alice.expect(protocol.TypeAck, &ack)
	if env.Ref != "r1" || ack.ID != "m1" {
		t.Errorf("ack = %+v ref=%q", ack, env.Ref)
	}

	var m protocol.Message
	bob.expect(protocol.TypeMessage, &m)
	if m.ID != "m1" || m.From != "alice" || m.Body != "hello" || m.CreatedAt != 1000 {
		t.Errorf("message = %+v", m)
	}
	bob.confirm(m)

	var r protocol.Receipt
	alice.expect(protocol.TypeReceipt, &r)
	if r.From != "bob" || r.Status != "delivered" || len(r.IDs) != 1 || r.IDs[0] != "m1" {
		t.Errorf("receipt = %+v", r)
	}
}

func TestSendValidation(t *testing.T) {
	_, srv := newTestServer(t)
	alice, _ := join(t, srv, "alice")

	tests := []struct {
		name string
		send protocol.Send
	}{
		{"missing id", protocol.Send{To: "bob", Body: "x"}},
		{"to self", protocol.Send{ID: "m1", To: "alice", Body: "x"}},
		{"blank body", protocol.Send{ID: "m2", To: "bob", Body: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alice.write(protocol.TypeSend, tt.name, tt.send)
			var ef protocol.ErrorFrame
			env := alice.expect(protocol.TypeError, &ef)
			if env.Ref != tt.name || ef.Code != protocol.ErrCodeInvalidSend {
				t.Errorf("got ref=%q code=%q", env.Ref, ef.Code)
			}
		})
	}
}

func TestOfflineRecipientGetsMessageOnJoin(t *testing.T) {
	_, srv := newTestServer(t)
	alice, _ := join(t, srv, "alice")

	alice.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "are you there?"})
	alice.expect(protocol.TypeAck, nil)

	bob, _ := join(t, srv, "bob")
	var m protocol.Message
	bob.expect(protocol.TypeMessage, &m)
	if m.ID != "m1" || m.From != "alice" {
		t.Errorf("message = %+v", m)
	}
	bob.confirm(m)

	var r protocol.Receipt
	alice.expect(protocol.TypeReceipt, &r)
	if r.Status != "delivered" {
		t.Errorf("receipt status = %q, want delivered", r.Status)
	}
}

func TestPushedMessageStaysUndeliveredUntilConfirmed(t *testing.T) {
	s, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")
	alice, _ := join(t, srv, "alice")

	alice.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "lost in transit"})
	alice.expect(protocol.TypeAck, nil)
	bob.expect(protocol.TypeMessage, nil)

	// Bob drops before confirming; the relay must not count the push as a delivery.
	_ = bob.conn.Close()
	waitOffline(t, s, "bob")
	if undelivered(t, s, "bob") != 1 {
		t.Fatal("an unconfirmed push should stay undelivered")
	}

	bob, _ = join(t, srv, "bob")
	var m protocol.Message
	bob.expect(protocol.TypeMessage, &m)
	if m.ID != "m1" {
		t.Fatalf("replayed %q, want m1", m.ID)
	}
	bob.confirm(m)

	var r protocol.Receipt
	alice.expect(protocol.TypeReceipt, &r)
	if r.Status != "delivered" || r.IDs[0] != "m1" {
		t.Errorf("receipt = %+v", r)
	}
}

func TestLongBacklogIsFlushedWithoutDisconnect(t *testing.T) {
	s, srv := newTestServer(t)
	const n = 4 * clientBuffer
	for i := range n {
		_, err := s.db.SaveRelayMessage(&store.RelayMessage{
			MsgID:     fmt.Sprintf("m%04d", i),
			Sender:    "alice",
			Recipient: "bob",
			Body:      "backlog",
			Status:    "sent",
			CreatedAt: int64(1000 + i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	bob, _ := join(t, srv, "bob")
	// Let the flush run ahead of a reader that has not started draining.
	time.Sleep(100 * time.Millisecond)

	ids := make([]string, 0, n)
	for len(ids) < n {
		var m protocol.Message
		bob.expect(protocol.TypeMessage, &m)
		if want := fmt.Sprintf("m%04d", len(ids)); m.ID != want {
			t.Fatalf("message %d = %q, want %s", len(ids), m.ID, want)
		}
		ids = append(ids, m.ID)
	}
	if undelivered(t, s, "bob") != n {
		t.Fatal("pushed messages were marked delivered before bob confirmed them")
	}

	bob.write(protocol.TypeReceipt, "", protocol.Receipt{To: "alice", IDs: ids, Status: "delivered"})
	deadline := time.Now().Add(3 * time.Second)
	for undelivered(t, s, "bob") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d messages still undelivered after bob confirmed", undelivered(t, s, "bob"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func undelivered(t *testing.T, s *Server, user string) int {
	t.Helper()
	msgs, err := s.db.UndeliveredFor(user)
	if err != nil {
		t.Fatal(err)
	}
	return len(msgs)
}

func waitOffline(t *testing.T, s *Server, user string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := s.Hub().LastSeen(user); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never went offline", user)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDuplicateSendIsAckedOnce(t *testing.T) {
	_, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")
	alice, _ := join(t, srv, "alice")

	alice.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "once"})
	alice.expect(protocol.TypeAck, nil)
	alice.write(protocol.TypeSend, "r2", protocol.Send{ID: "m1", To: "bob", Body: "once"})
	env := alice.expect(protocol.TypeAck, nil)
	if env.Ref != "r2" {
		t.Errorf("second ack ref = %q, want r2", env.Ref)
	}

	bob.expect(protocol.TypeMessage, nil)
	// A follow-up message must be the next thing bob sees.
	alice.write(protocol.TypeSend, "r3", protocol.Send{ID: "m2", To: "bob", Body: "twice"})
	var m protocol.Message
	bob.expect(protocol.TypeMessage, &m)
	if m.ID != "m2" {
		t.Errorf("bob received %q, want m2 (duplicate forwarded?)", m.ID)
	}
}

func TestReadReceiptForwardedForwardOnly(t *testing.T) {
	_, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")
	alice, _ := join(t, srv, "alice")

	alice.write(protocol.TypeSend, "r1", protocol.Send{ID: "m1", To: "bob", Body: "hi"})
	var m protocol.Message
	bob.expect(protocol.TypeMessage, &m)
	bob.confirm(m)
	alice.expect(protocol.TypeReceipt, nil) // delivered

	bob.write(protocol.TypeReceipt, "", protocol.Receipt{To: "alice", IDs: []string{"m1"}, Status: "read", At: 5000})
	var r protocol.Receipt
	alice.expect(protocol.TypeReceipt, &r)
	if r.From != "bob" || r.Status != "read" || r.At != 5000 {
		t.Errorf("receipt = %+v", r)
	}

	// A stale delivered receipt is swallowed; the history still says read.
	bob.write(protocol.TypeReceipt, "", protocol.Receipt{To: "alice", IDs: []string{"m1"}, Status: "delivered"})
	alice.write(protocol.TypeGetHistory, "h1", protocol.GetHistory{With: "bob"})
	var h protocol.History
	alice.expect(protocol.TypeHistory, &h)
	if len(h.Messages) != 1 || h.Messages[0].Status != "read" {
		t.Errorf("history = %+v", h.Messages)
	}
}

func TestHistoryIsScopedToThePair(t *testing.T) {
	_, srv := newTestServer(t)
	alice, _ := join(t, srv, "alice")

	for i, to := range []string{"bob", "carol", "bob"} {
		id := string(rune('a' + i))
		alice.write(protocol.TypeSend, id, protocol.Send{ID: id, To: to, Body: "x", CreatedAt: int64(1000 * (i + 1))})
		alice.expect(protocol.TypeAck, nil)
	}

	alice.write(protocol.TypeGetHistory, "h", protocol.GetHistory{With: "bob"})
	var h protocol.History
	env := alice.expect(protocol.TypeHistory, &h)
	if env.Ref != "h" || h.With != "bob" {
		t.Errorf("history envelope ref=%q with=%q", env.Ref, h.With)
	}
	if len(h.Messages) != 2 || h.Messages[0].ID != "a" || h.Messages[1].ID != "c" {
		t.Errorf("history = %+v", h.Messages)
	}
}

func TestDisconnectBroadcastsLastSeen(t *testing.T) {
	s, srv := newTestServer(t)
	bob, _ := join(t, srv, "bob")
	alice, _ := join(t, srv, "alice")
	bob.expect(protocol.TypePresence, nil) // alice online

	_ = alice.conn.Close()

	var p protocol.Presence
	bob.expect(protocol.TypePresence, &p)
	if p.UserID != "alice" || p.Online || p.LastSeen == 0 {
		t.Errorf("presence = %+v", p)
	}
	if _, ok := s.Hub().LastSeen("alice"); !ok {
		t.Error("hub should remember when alice left")
	}
}

func TestNewSessionReplacesOld(t *testing.T) {
	s, srv := newTestServer(t)
	first, _ := join(t, srv, "alice")
	join(t, srv, "alice")

	_ = first.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			break
		}
	}
	if got := s.Hub().Online(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Online() = %v, want [alice]", got)
	}
}
