package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// PageHelp is the help page name.
const PageHelp = "Help"

// HelpView lists key bindings and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return PageHelp }

// FocusTarget implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Chats", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the n-th conversation"},
		{"Tab", "Switch between All and Unread"},
		{"/", "Search names and last messages"},
		{"r", "Mark conversation read"},
		{"d", "Conversation details"},
		{"q", "Quit"},
	}},
	{"Conversation", [][2]string{
		{"i", "Focus the composer"},
		{"Enter", "Send (in composer)"},
		{"d", "Details"},
		{"Esc", "Leave composer, then back to chats"},
	}},
	{"Commands", [][2]string{
		{":open <id>", "Open a conversation by id"},
		{":add <id> <name>", "Add a contact"},
		{":import", "Import contacts from the transport"},
		{":read [id]", "Mark a conversation read"},
		{":pair", "Link this session to a phone"},
		{":all / :unread", "Switch roster tab"},
		{":logout", "Unlink the session"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
