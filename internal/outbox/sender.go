package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"go.uber.org/zap"
)

// Transport is the part of the real-time transport the outbox drives.
type Transport interface {
	Send(ctx context.Context, counterpartID, clientMsgID, text string) (serverMsgID string, err error)
	SendReceipt(ctx context.Context, r chat.Receipt) error
}

// Result is the payload of message.send_ack and message.send_failed events.
type Result struct {
	CounterpartID string
	MessageID     string
	ServerMsgID   string
	Err           string
}

const defaultSendTimeout = 15 * time.Second

type job struct {
	text    *chat.Message
	receipt *chat.Receipt
}

// Sender drains queued messages and receipts to the transport in FIFO order.
// Enqueueing never blocks the caller; outcomes are published on the bus.
type Sender struct {
	transport Transport
	bus       *bus.Bus
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.Mutex
	queue  []job
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender. A zero timeout uses the default.
func NewSender(t Transport, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Sender{
		transport: t,
		bus:       b,
		logger:    logger,
		timeout:   timeout,
		wake:      make(chan struct{}, 1),
	}
}

// SendText queues an outgoing message.
func (s *Sender) SendText(msg chat.Message) {
	s.push(job{text: &msg})
}

// SendReceipt queues a receipt for the counterpart.
func (s *Sender) SendReceipt(r chat.Receipt) {
	s.push(job{receipt: &r})
}

// Pending returns the number of queued jobs.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Start begins draining the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the in-flight job.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) push(j job) {
	s.mu.Lock()
	s.queue = append(s.queue, j)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sender) pop() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return job{}, false
	}
	j := s.queue[0]
	s.queue[0] = job{}
	s.queue = s.queue[1:]
	return j, true
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	for {
		for {
			if ctx.Err() != nil {
				return
			}
			j, ok := s.pop()
			if !ok {
				break
			}
			s.process(ctx, j)
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) process(ctx context.Context, j job) {
	switch {
	case j.text != nil:
		s.sendText(ctx, *j.text)
	case j.receipt != nil:
		s.sendReceipt(ctx, *j.receipt)
	}
}

func (s *Sender) sendText(ctx context.Context, msg chat.Message) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	serverMsgID, err := s.transport.Send(ctx, msg.CounterpartID, msg.ID, msg.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no acknowledgement within %s: %w", s.timeout, err)
		}
		s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", msg.ID), zap.String("counterpart", msg.CounterpartID))
		s.bus.Emit(bus.MessageSendFailed, Result{
			CounterpartID: msg.CounterpartID,
			MessageID:     msg.ID,
			Err:           fmt.Errorf("%w: %v", chat.ErrSendFailure, err).Error(),
		})
		return
	}

	s.logger.Info("message sent", zap.String("client_msg_id", msg.ID), zap.String("server_msg_id", serverMsgID))
	s.bus.Emit(bus.MessageSendAck, Result{
		CounterpartID: msg.CounterpartID,
		MessageID:     msg.ID,
		ServerMsgID:   serverMsgID,
	})
}

// Receipts are best effort: a lost receipt only delays the counterpart's tick marks.
func (s *Sender) sendReceipt(ctx context.Context, r chat.Receipt) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.transport.SendReceipt(ctx, r); err != nil {
		s.logger.Warn("failed to send receipt", zap.Error(err), zap.String("counterpart", r.CounterpartID), zap.Int("messages", len(r.MessageIDs)))
	}
}
