// Package sync serializes transport callbacks onto the conversation feeds.
package sync

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/outbox"
	"go.uber.org/zap"
)

// Journal records messages as they change. It may be nil.
type Journal interface {
	Record(msg chat.Message) error
	Advance(counterpartID, msgID string, to chat.Status) error
}

// Engine is the single ingestion goroutine. It drains one lossless bus queue carrying
// "transport.*", "message.send_*" and, with a journal, "feed.*" events, and applies them
// to the feed manager in publish order. Feed changes are mirrored into the journal from
// the same goroutine.
type Engine struct {
	manager *feed.Manager
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a new ingestion engine.
func NewEngine(m *feed.Manager, j Journal, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		manager: m,
		journal: j,
		bus:     b,
		logger:  logger,
	}
}

// Start subscribes to the bus and begins ingesting.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	namespaces := []string{"transport.", "message.send_"}
	if e.journal != nil {
		namespaces = append(namespaces, "feed.")
	}
	queue, unsub := e.bus.SubscribeQueue(namespaces...)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case <-queue.Ready():
				for _, evt := range queue.Drain() {
					e.dispatch(ctx, evt)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) dispatch(ctx context.Context, evt bus.Event) {
	if strings.HasPrefix(evt.Kind, "feed.") {
		e.record(evt)
		return
	}
	e.handleEvent(ctx, evt)
}

// Stop stops the engine and waits for the ingestion goroutine to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.TransportMessage:
		msg, ok := evt.Payload.(chat.Message)
		if !ok {
			return
		}
		e.IngestMessage(ctx, msg)
	case bus.TransportReceipt:
		r, ok := evt.Payload.(chat.Receipt)
		if !ok {
			return
		}
		n := e.manager.ApplyReceipt(r)
		e.logger.Debug("receipt applied", zap.String("counterpart", r.CounterpartID), zap.String("status", string(r.Status)), zap.Int("advanced", n))
	case bus.TransportPresence:
		if u, ok := evt.Payload.(chat.PresenceUpdate); ok {
			e.manager.SetPresence(u)
		}
	case bus.TransportConnected:
		e.logger.Info("transport connected")
	case bus.TransportDisconnected:
		e.logger.Warn("transport disconnected")
	case bus.MessageSendAck:
		if res, ok := evt.Payload.(outbox.Result); ok {
			if !e.manager.Acknowledge(res.CounterpartID, res.MessageID) {
				e.logger.Debug("ack ignored", zap.String("client_msg_id", res.MessageID))
			}
		}
	case bus.MessageSendFailed:
		if res, ok := evt.Payload.(outbox.Result); ok {
			e.manager.Fail(res.CounterpartID, res.MessageID)
		}
	}
}

// IngestMessage routes one pushed message to its feed. Redelivered messages are absorbed.
func (e *Engine) IngestMessage(ctx context.Context, msg chat.Message) {
	if msg.ID == "" || msg.CounterpartID == "" {
		e.logger.Warn("dropping message without identity", zap.String("msg_id", msg.ID), zap.String("counterpart", msg.CounterpartID))
		return
	}
	if _, added := e.manager.HandleIncoming(ctx, msg); !added {
		e.logger.Debug("duplicate message ignored", zap.String("msg_id", msg.ID))
	}
}

func (e *Engine) record(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case chat.Message:
		err = e.journal.Record(p)
	case feed.StatusChange:
		err = e.journal.Advance(p.CounterpartID, p.MessageID, p.To)
	default:
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("journal write failed", zap.String("kind", evt.Kind), zap.Error(err))
	}
}
