package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints, two columns side by side.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu showing at most rows hints per column.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     rows,
	}
}

// Update renders hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	if len(hints) == 0 || m.rows <= 0 {
		return ""
	}
	lines := make([]string, min(m.rows, len(hints)))
	for i, h := range hints {
		kc := Tag(m.theme.MenuKeyColor)
		if h.Numeric {
			kc = Tag(m.theme.NumericKeyColor)
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %-10s", kc, tview.Escape(h.Key), h.Description)
		row := i % m.rows
		if lines[row] != "" {
			lines[row] += "  "
		}
		lines[row] += cell
	}
	return strings.Join(lines, "\n")
}
