package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// unreadBadge renders a counter for tabs and rows; zero renders nothing.
func unreadBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	default:
		return strconv.Itoa(n)
	}
}

// formatTimestamp is the roster time column: clock time today, weekday this week, date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return ""
	}
	t = t.In(now.Location())
	switch days := dayDiff(t, now); {
	case days == 0:
		return t.Format("15:04")
	case days == 1:
		return "Yesterday"
	case days > 1 && days < 7:
		return t.Format("Monday")
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("02/01/2006")
	}
}

// daySeparator labels the group of messages sent on t's calendar day.
func daySeparator(t, now time.Time) string {
	t = t.In(now.Location())
	switch days := dayDiff(t, now); {
	case days == 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case t.Year() == now.Year():
		return t.Format("Monday, January 2")
	default:
		return t.Format("Monday, January 2, 2006")
	}
}

// relativeTime renders how long ago t was, e.g. for last-seen.
func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case dayDiff(t, now) == 0:
		return "today at " + t.In(now.Location()).Format("15:04")
	case dayDiff(t, now) == 1:
		return "yesterday at " + t.In(now.Location()).Format("15:04")
	default:
		return t.In(now.Location()).Format("Jan 2 at 15:04")
	}
}

// presenceLine is the feed header's second line.
func presenceLine(p api.Presence, now time.Time) string {
	switch {
	case p.Online:
		return "online"
	case !p.LastSeen().IsZero():
		return "last seen " + relativeTime(p.LastSeen(), now)
	default:
		return ""
	}
}

// dayDiff counts calendar days from t to now in now's location.
func dayDiff(t, now time.Time) int {
	y1, m1, d1 := t.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// statusMark renders an outgoing message's delivery state.
func statusMark(status string, theme *ui.Theme) string {
	switch chat.Status(status) {
	case chat.StatusPending:
		return "[::d]…[-:-:-]"
	case chat.StatusSent:
		return "✓"
	case chat.StatusDelivered:
		return "✓✓"
	case chat.StatusRead:
		return fmt.Sprintf("[%s]✓✓[-]", ui.Tag(theme.ReadMarkColor))
	case chat.StatusFailed:
		return fmt.Sprintf("[%s::b]! not sent[-:-:-]", ui.Tag(theme.FailedColor))
	default:
		return ""
	}
}
