package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// PageChats is the roster page name.
const PageChats = "Chats"

// RosterList is the chat list with all/unread tabs.
type RosterList struct {
	*tview.Table
	theme   *ui.Theme
	entries []api.RosterEntry
}

// NewRosterList creates the roster table.
func NewRosterList(theme *ui.Theme) *RosterList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &RosterList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (rl *RosterList) Name() string { return PageChats }

// FocusTarget implements ui.Component.
func (rl *RosterList) FocusTarget() tview.Primitive { return rl.Table }

// Update redraws the table. filter is the active tab, unread the unread conversation count.
func (rl *RosterList) Update(entries []api.RosterEntry, unread int, filter, query string, now time.Time) {
	selected := rl.SelectedCounterpart()
	rl.entries = entries
	rl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" #", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 3},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetBackgroundColor(rl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	for i, e := range entries {
		row := i + 1
		fg := rl.theme.FgColor
		if e.UnreadCount > 0 {
			fg = rl.theme.UnreadColor
		}
		index := ""
		if i < 9 {
			index = fmt.Sprintf("%d", i+1)
		}
		preview := e.LastMessage
		if e.LastFromMe {
			preview = "You: " + preview
		}
		rl.SetCell(row, 0, tview.NewTableCell(" "+index).SetTextColor(rl.theme.NumericKeyColor))
		rl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitize(displayName(e)))).SetExpansion(1).SetMaxWidth(28).SetTextColor(fg))
		rl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitize(oneLine(preview)))).SetExpansion(3).SetMaxWidth(60).SetTextColor(fg))
		rl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(e.LastMessageAt(), now)+" ").SetAlign(tview.AlignRight).SetTextColor(fg))
		rl.SetCell(row, 4, tview.NewTableCell(unreadBadge(e.UnreadCount)+" ").SetAlign(tview.AlignRight).SetTextColor(rl.theme.UnreadColor).SetAttributes(tcell.AttrBold))
	}

	if len(entries) == 0 {
		empty := "No conversations yet. Use :open <id> to start one."
		if filter == "unread" {
			empty = "No unread conversations."
		}
		if query != "" {
			empty = fmt.Sprintf("Nothing matches %q.", query)
		}
		rl.SetCell(1, 1, tview.NewTableCell(" "+tview.Escape(empty)).SetSelectable(false).SetTextColor(rl.theme.SeparatorColor))
	}

	rl.SetTitle(rosterTitle(filter, query, len(entries), unread))
	rl.reselect(selected)
}

func (rl *RosterList) reselect(id string) {
	for i, e := range rl.entries {
		if e.CounterpartID == id {
			rl.Select(i+1, 0)
			return
		}
	}
	if len(rl.entries) > 0 {
		rl.Select(1, 0)
	}
}

// SelectedCounterpart returns the counterpart id under the cursor.
func (rl *RosterList) SelectedCounterpart() string {
	row, _ := rl.GetSelection()
	return rl.CounterpartAt(row)
}

// CounterpartAt returns the id on the n-th row (1-based), or "".
func (rl *RosterList) CounterpartAt(n int) string {
	if n < 1 || n > len(rl.entries) {
		return ""
	}
	return rl.entries[n-1].CounterpartID
}

// Entry returns the loaded entry for id.
func (rl *RosterList) Entry(id string) (api.RosterEntry, bool) {
	for _, e := range rl.entries {
		if e.CounterpartID == id {
			return e, true
		}
	}
	return api.RosterEntry{}, false
}

// rosterTitle renders the tab strip, e.g. " <All> Unread (3) ".
func rosterTitle(filter, query string, shown, unread int) string {
	all, unreadTab := "All", "Unread"
	if badge := unreadBadge(unread); badge != "" {
		unreadTab += " (" + badge + ")"
	}
	if filter == "unread" {
		unreadTab = "<" + unreadTab + ">"
	} else {
		all = "<" + all + ">"
	}
	title := fmt.Sprintf(" %s %s ", all, unreadTab)
	if query != "" {
		title += fmt.Sprintf("/%s (%d) ", tview.Escape(query), shown)
	}
	return title
}

func displayName(e api.RosterEntry) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.CounterpartID
}
