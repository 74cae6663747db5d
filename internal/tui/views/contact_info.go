package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// PageDetails is the contact details page name.
const PageDetails = "Details"

// ContactInfo displays a counterpart's directory and roster data.
type ContactInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewContactInfo creates a new details view.
func NewContactInfo(theme *ui.Theme) *ContactInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ContactInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (ci *ContactInfo) Name() string { return PageDetails }

// FocusTarget implements ui.Component.
func (ci *ContactInfo) FocusTarget() tview.Primitive { return ci.TextView }

// Update renders what is known about a counterpart. Either argument may be nil.
func (ci *ContactInfo) Update(entry *api.RosterEntry, view *api.FeedView, now time.Time) {
	ci.Clear()

	var id, name, avatar, last, lastAt, presence string
	unread := 0
	if entry != nil {
		id, name, avatar = entry.CounterpartID, entry.DisplayName, entry.AvatarRef
		last, unread = entry.LastMessage, entry.UnreadCount
		lastAt = formatTimestamp(entry.LastMessageAt(), now)
	}
	if view != nil {
		id, name, avatar = view.CounterpartID, view.DisplayName, view.AvatarRef
		presence = presenceLine(view.Presence, now)
	}
	if id == "" {
		return
	}

	fg := ui.Tag(ci.theme.FgColor)
	val := ui.Tag(ci.theme.CounterColor)
	for _, row := range [][2]string{
		{"Name", orDash(name)},
		{"ID", id},
		{"Avatar", orDash(avatar)},
		{"Presence", orDash(presence)},
		{"Unread", fmt.Sprintf("%d", unread)},
		{"Last active", orDash(lastAt)},
		{"Last message", orDash(oneLine(last))},
	} {
		_, _ = fmt.Fprintf(ci, "\n [%s::b]%-13s[-:-:-] [%s]%s[-]", fg, row[0]+":", val, tview.Escape(sanitize(row[1])))
	}
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitize(orDash(name)))))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
