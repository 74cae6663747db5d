package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/status"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// ErrAlreadyPaired is returned by StartQRAuth when the device already has credentials.
var ErrAlreadyPaired = errors.New("device already paired")

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent represents an auth lifecycle event.
type AuthEvent struct {
	Type    AuthEventType
	QRCode  string
	Message string
}

// StartQRAuth begins the QR pairing flow. Every step is published on the bus under
// session.* and mirrored on the returned channel, which closes when pairing ends.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	if a.IsLoggedIn() {
		return nil, ErrAlreadyPaired
	}
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}

	out := make(chan AuthEvent, 10)
	go func() {
		defer close(out)

		// Connect must be called after GetQRChannel.
		a.machine.Settle(status.Connecting)
		if err := a.client.Connect(); err != nil {
			a.authEvent(out, AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			a.machine.Settle(status.AuthRequired)
			return
		}

		for item := range qrChan {
			switch {
			case item.Event == whatsmeow.QRChannelSuccess.Event:
				a.authEvent(out, AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"})
				return
			case item.Event == whatsmeow.QRChannelTimeout.Event:
				a.authEvent(out, AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"})
				a.machine.Settle(status.AuthRequired)
				return
			case IsQREvent(item):
				a.authEvent(out, AuthEvent{Type: AuthEventQRCode, QRCode: item.Code})
			case item.Error != nil:
				a.authEvent(out, AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()})
				a.machine.Settle(status.AuthRequired)
				return
			}
		}
	}()

	return out, nil
}

func (a *Adapter) authEvent(out chan<- AuthEvent, evt AuthEvent) {
	switch evt.Type {
	case AuthEventQRCode:
		a.bus.Emit(bus.SessionQRGenerated, evt.QRCode)
	case AuthEventAuthenticated:
		a.logger.Info("WhatsApp pairing succeeded")
		a.bus.Emit(bus.SessionAuthenticated, nil)
	default:
		a.logger.Warn("WhatsApp pairing failed", zap.String("reason", evt.Message))
		a.bus.Emit(bus.SessionAuthFailed, evt.Message)
	}
	select {
	case out <- evt:
	default:
		a.logger.Debug("auth event dropped, reader is behind", zap.String("type", string(evt.Type)))
	}
}

// IsQREvent checks whether a QR channel item is a QR code event.
func IsQREvent(item whatsmeow.QRChannelItem) bool {
	return item.Event == whatsmeow.QRChannelEventCode
}
