package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
)

// PageFeed is the conversation page name.
const PageFeed = "Feed"

// FeedPanel shows one conversation: a presence header, the messages and a composer.
type FeedPanel struct {
	*tview.Flex
	theme    *ui.Theme
	header   *tview.TextView
	messages *tview.TextView
	composer *tview.InputField
	view     *api.FeedView
	onSend   func(text string)
	onLeave  func()
}

// NewFeedPanel creates the conversation page.
func NewFeedPanel(theme *ui.Theme) *FeedPanel {
	header := tview.NewTextView().
		SetDynamicColors(true)
	header.SetBackgroundColor(theme.BgColor)
	header.SetBorderPadding(0, 0, 1, 1)

	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0).
		SetPlaceholder("type a message, Enter to send")
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetPlaceholderTextColor(theme.SeparatorColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 2, 0, false).
		AddItem(messages, 0, 1, false).
		AddItem(composer, 3, 0, true)

	fp := &FeedPanel{
		Flex:     flex,
		theme:    theme,
		header:   header,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := composer.GetText()
			if strings.TrimSpace(text) == "" {
				return
			}
			composer.SetText("")
			if fp.onSend != nil {
				fp.onSend(text)
			}
		case tcell.KeyEscape:
			if fp.onLeave != nil {
				fp.onLeave()
			}
		}
	})

	return fp
}

// Name implements ui.Component.
func (fp *FeedPanel) Name() string { return PageFeed }

// FocusTarget implements ui.Component.
func (fp *FeedPanel) FocusTarget() tview.Primitive { return fp.composer }

// SetOnSend sets the callback for composed text.
func (fp *FeedPanel) SetOnSend(fn func(text string)) {
	fp.onSend = fn
}

// SetOnLeave sets the callback for Esc in the composer.
func (fp *FeedPanel) SetOnLeave(fn func()) {
	fp.onLeave = fn
}

// Messages returns the history pane, for scrolling with focus.
func (fp *FeedPanel) Messages() *tview.TextView {
	return fp.messages
}

// Composer returns the input field.
func (fp *FeedPanel) Composer() *tview.InputField {
	return fp.composer
}

// CounterpartID returns the id of the shown conversation.
func (fp *FeedPanel) CounterpartID() string {
	if fp.view == nil {
		return ""
	}
	return fp.view.CounterpartID
}

// Update redraws the conversation. view.Messages is newest first.
func (fp *FeedPanel) Update(view *api.FeedView, now time.Time) {
	fp.view = view
	fp.header.Clear()
	fp.messages.Clear()
	if view == nil {
		fp.messages.SetTitle(" ")
		return
	}

	name := view.DisplayName
	if name == "" {
		name = view.CounterpartID
	}
	_, _ = fmt.Fprintf(fp.header, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n",
		ui.Tag(fp.theme.TitleColor), tview.Escape(sanitize(name)), tview.Escape(view.CounterpartID))
	if p := presenceLine(view.Presence, now); p != "" {
		color := fp.theme.SeparatorColor
		if view.Presence.Online {
			color = fp.theme.OnlineColor
		}
		_, _ = fmt.Fprintf(fp.header, "[%s]%s[-]", ui.Tag(color), p)
	}

	fp.messages.SetTitle(fmt.Sprintf(" %s (%d) ", tview.Escape(sanitize(name)), len(view.Messages)))
	_, _ = fmt.Fprint(fp.messages, renderMessages(view.Messages, name, fp.theme, now))
	fp.messages.ScrollToEnd()
}

// renderMessages lays out newest-first messages oldest at the top with a
// separator before each calendar day.
func renderMessages(newestFirst []api.Message, peer string, theme *ui.Theme, now time.Time) string {
	if len(newestFirst) == 0 {
		return fmt.Sprintf("\n  [%s]No messages yet. Say hi![-]", ui.Tag(theme.SeparatorColor))
	}

	var b strings.Builder
	lastDay := ""
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		at := m.CreatedAt().In(now.Location())

		if day := at.Format("2006-01-02"); day != lastDay {
			lastDay = day
			fmt.Fprintf(&b, "[%s]── %s ──[-]\n", ui.Tag(theme.SeparatorColor), daySeparator(at, now))
		}

		body := tview.Escape(sanitize(m.Body))
		if m.FromMe {
			fmt.Fprintf(&b, "[%s::b]You[-:-:-] [::d]%s[-:-:-] %s\n%s\n\n",
				ui.Tag(theme.OwnMessageColor), at.Format("15:04"), statusMark(m.Status, theme), body)
			continue
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			ui.Tag(theme.PeerMessageColor), tview.Escape(sanitize(peer)), at.Format("15:04"), body)
	}
	return b.String()
}
