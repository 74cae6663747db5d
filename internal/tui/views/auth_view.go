package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatline/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// PageAuth is the pairing page name.
const PageAuth = "Pair"

// AuthView shows the pairing QR code while the session links to a phone.
type AuthView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Link this session ")
	tv.SetTitleColor(theme.TitleColor)

	return &AuthView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (av *AuthView) Name() string { return PageAuth }

// FocusTarget implements ui.Component.
func (av *AuthView) FocusTarget() tview.Primitive { return av.TextView }

// ShowQR renders a pairing code as a scannable block.
func (av *AuthView) ShowQR(code string) {
	av.Clear()
	_, _ = fmt.Fprintf(av, "\nOpen WhatsApp on your phone, go to Linked devices and scan:\n\n%s\n[::d]Codes rotate every few seconds. Esc to cancel.[-:-:-]", renderQR(code))
}

// ShowMessage displays a status line in place of the code.
func (av *AuthView) ShowMessage(msg string) {
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", tview.Escape(msg))
}

// renderQR draws a QR code with half blocks, two modules per character cell vertically.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(cannot render code: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
