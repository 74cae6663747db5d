package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session   string
	Transport string
	SelfID    string
	State     string
	Connected bool
	Chats     int
	Unread    int
	Contacts  int64
	Pending   int
	Uptime    time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info; nil shows a placeholder.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		_, _ = fmt.Fprintf(si, "[%s]connecting to daemon...[-]", Tag(si.theme.FgColor))
		return
	}

	fg := Tag(si.theme.FgColor)
	val := Tag(si.theme.CounterColor)

	self := data.SelfID
	if self == "" {
		self = "-"
	}
	state := data.State
	if !data.Connected {
		state += " (offline)"
	}

	row := func(label, value string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]", fg, label+":", val, tview.Escape(value))
	}
	_, _ = fmt.Fprintf(si, "%s\n%s\n%s\n%s\n%s",
		row("Session", data.Session+" ("+data.Transport+")"),
		row("Me", self),
		row("State", state),
		row("Chats", fmt.Sprintf("%d (%d unread) / %d contacts", data.Chats, data.Unread, data.Contacts)),
		row("Uptime", fmt.Sprintf("%s, %d sending", formatDuration(data.Uptime), data.Pending)),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
