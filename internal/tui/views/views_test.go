package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

var now = time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC) // a Wednesday

func TestUnreadBadge(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{-1, ""},
		{1, "1"},
		{99, "99"},
		{100, "99+"},
		{12345, "99+"},
	}
	for _, tt := range tests {
		if got := unreadBadge(tt.n); got != tt.want {
			t.Errorf("unreadBadge(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestRosterTitle(t *testing.T) {
	tests := []struct {
		name          string
		filter, query string
		shown, unread int
		want          string
	}{
		{"all tab", "all", "", 5, 0, " <All> Unread "},
		{"unread tab with count", "unread", "", 2, 2, " All <Unread (2)> "},
		{"capped", "all", "", 150, 120, " <All> Unread (99+) "},
		{"query", "all", "bo", 1, 0, " <All> Unread /bo (1) "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rosterTitle(tt.filter, tt.query, tt.shown, tt.unread); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"epoch", time.UnixMilli(0), ""},
		{"today", time.Date(2025, 3, 12, 9, 5, 0, 0, time.UTC), "09:05"},
		{"yesterday", time.Date(2025, 3, 11, 23, 59, 0, 0, time.UTC), "Yesterday"},
		{"this week", time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC), "Sunday"},
		{"this year", time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), "Jan 2"},
		{"older", time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC), "31/12/2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTimestamp(tt.t, now); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelativeTimeAndPresence(t *testing.T) {
	tests := []struct {
		name string
		p    api.Presence
		want string
	}{
		{"online", api.Presence{Online: true}, "online"},
		{"unknown", api.Presence{}, ""},
		{"seconds", api.Presence{LastSeenMs: now.Add(-10 * time.Second).UnixMilli()}, "last seen just now"},
		{"minutes", api.Presence{LastSeenMs: now.Add(-5 * time.Minute).UnixMilli()}, "last seen 5m ago"},
		{"today", api.Presence{LastSeenMs: time.Date(2025, 3, 12, 8, 15, 0, 0, time.UTC).UnixMilli()}, "last seen today at 08:15"},
		{"yesterday", api.Presence{LastSeenMs: time.Date(2025, 3, 11, 20, 0, 0, 0, time.UTC).UnixMilli()}, "last seen yesterday at 20:00"},
		{"older", api.Presence{LastSeenMs: time.Date(2025, 2, 1, 7, 0, 0, 0, time.UTC).UnixMilli()}, "last seen Feb 1 at 07:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := presenceLine(tt.p, now); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderMessagesChronologicalWithSeparators(t *testing.T) {
	theme := ui.DefaultTheme()
	newestFirst := []api.Message{
		{ID: "3", FromMe: true, Body: "failed one", Status: "failed", CreatedAtMs: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC).UnixMilli()},
		{ID: "2", Body: "second", Status: "read", CreatedAtMs: time.Date(2025, 3, 11, 18, 0, 0, 0, time.UTC).UnixMilli()},
		{ID: "1", FromMe: true, Body: "first", Status: "read", CreatedAtMs: time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC).UnixMilli()},
	}
	out := renderMessages(newestFirst, "Bob", theme, now)

	order := []string{"Yesterday", "first", "Bob", "second", "Today", "not sent", "failed one"}
	pos := 0
	for _, want := range order {
		i := strings.Index(out[pos:], want)
		if i < 0 {
			t.Fatalf("expected %q after offset %d in:\n%s", want, pos, out)
		}
		pos += i + len(want)
	}
	if strings.Count(out, "──") != 4 {
		t.Errorf("expected two day separators, got:\n%s", out)
	}
}

func TestRenderMessagesEscapesMarkup(t *testing.T) {
	out := renderMessages([]api.Message{{Body: "[red]not a tag", CreatedAtMs: now.UnixMilli()}}, "x", ui.DefaultTheme(), now)
	if !strings.Contains(out, "[red[]not a tag") {
		t.Errorf("body should be escaped: %s", out)
	}
	if !strings.Contains(renderMessages(nil, "x", ui.DefaultTheme(), now), "No messages yet") {
		t.Error("empty feed should show a placeholder")
	}
}

func TestStatusMark(t *testing.T) {
	theme := ui.DefaultTheme()
	for status, want := range map[string]string{
		"pending":   "…",
		"sent":      "✓",
		"delivered": "✓✓",
		"read":      "✓✓",
		"failed":    "not sent",
		"bogus":     "",
	} {
		got := statusMark(status, theme)
		if want == "" && got != "" || !strings.Contains(got, want) {
			t.Errorf("statusMark(%q) = %q, want it to contain %q", status, got, want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"\U0001F468\u200D\U0001F469", "\U0001F468\U0001F469"},
		{"\u2764\uFE0F", "\u2764"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := oneLine("a\n b\t c "); got != "a b c" {
		t.Errorf("oneLine = %q", got)
	}
}

func TestRenderQR(t *testing.T) {
	out := renderQR("2@abc,def,ghi")
	if !strings.ContainsAny(out, "█▀▄") {
		t.Fatalf("expected block characters, got %q", out)
	}
}

func TestRosterListSelection(t *testing.T) {
	rl := NewRosterList(ui.DefaultTheme())
	entries := []api.RosterEntry{
		{CounterpartID: "bob", DisplayName: "Bob", LastMessage: "hey", UnreadCount: 2, LastMessageAtMs: now.UnixMilli()},
		{CounterpartID: "carol", LastMessage: "yo", LastFromMe: true, LastMessageAtMs: now.Add(-time.Hour).UnixMilli()},
	}
	rl.Update(entries, 1, "all", "", now)

	if got := rl.CounterpartAt(2); got != "carol" {
		t.Errorf("CounterpartAt(2) = %q", got)
	}
	if got := rl.CounterpartAt(3); got != "" {
		t.Errorf("CounterpartAt(3) = %q", got)
	}
	if got := rl.SelectedCounterpart(); got != "bob" {
		t.Errorf("first row should be selected, got %q", got)
	}

	rl.Select(2, 0)
	rl.Update([]api.RosterEntry{entries[1], entries[0]}, 1, "all", "", now)
	if got := rl.SelectedCounterpart(); got != "carol" {
		t.Errorf("selection should follow carol to the top, got %q", got)
	}

	if got := rl.GetCell(1, 2).Text; got != " You: yo" {
		t.Errorf("own last message should be prefixed, got %q", got)
	}
	if got := rl.GetCell(2, 4).Text; got != "2 " {
		t.Errorf("unread column = %q", got)
	}
}
