// Package ws implements the transport against a chatline relay over a WebSocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/protocol"
	"github.com/matheus3301/chatline/internal/status"
	"go.uber.org/zap"
)

const (
	writeWait           = 10 * time.Second
	maxFrameSize        = 1 << 20
	sendBuffer          = 64
	defaultPingInterval = 30 * time.Second
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
)

// Config configures the relay connection.
type Config struct {
	URL          string
	SelfID       string
	PingInterval time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	HistoryLimit int
}

// Client is a reconnecting relay connection. It implements transport.Transport.
type Client struct {
	cfg     Config
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu      sync.Mutex
	conn    *connection
	pending map[string]chan *protocol.Envelope

	cancel context.CancelFunc
	done   chan struct{}
}

type connection struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *connection) enqueue(ctx context.Context, frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return chat.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New creates a relay client. machine may be nil.
func New(cfg Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(defaultReconnectMax, cfg.ReconnectMin)
	}
	return &Client{
		cfg:     cfg,
		bus:     b,
		machine: machine,
		logger:  logger.With(zap.String("relay", cfg.URL)),
		dialer:  &websocket.Dialer{HandshakeTimeout: writeWait},
		pending: make(map[string]chan *protocol.Envelope),
	}
}

// Connect starts the connection loop in the background. The loop outlives ctx's deadline
// and runs until Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" || c.cfg.SelfID == "" {
		return errors.New("relay url and self id are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("relay client already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	return nil
}

// Close stops the connection loop and waits for it to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	c.machine.Settle(status.Stopped)
	return nil
}

// Connected reports whether a relay session is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send delivers a message through the relay and waits for its ack.
func (c *Client) Send(ctx context.Context, counterpartID, clientMsgID, text string) (string, error) {
	env, err := c.request(ctx, protocol.TypeSend, protocol.Send{
		ID:        clientMsgID,
		To:        counterpartID,
		Body:      text,
		CreatedAt: protocol.Millis(time.Now()),
	})
	if err != nil {
		return "", err
	}
	var ack protocol.Ack
	if err := env.Decode(&ack); err != nil {
		return "", fmt.Errorf("decode ack: %w", err)
	}
	return ack.ServerID, nil
}

// SendReceipt forwards a receipt to the relay without waiting for a reply.
func (c *Client) SendReceipt(ctx context.Context, r chat.Receipt) error {
	conn := c.current()
	if conn == nil {
		return chat.ErrNotConnected
	}
	frame, err := protocol.Encode(protocol.TypeReceipt, "", protocol.Receipt{
		To:     r.CounterpartID,
		IDs:    r.MessageIDs,
		Status: string(r.Status),
		At:     protocol.Millis(r.At),
	})
	if err != nil {
		return err
	}
	return conn.enqueue(ctx, frame)
}

// FetchHistory asks the relay for the stored conversation with counterpartID.
func (c *Client) FetchHistory(ctx context.Context, counterpartID string) ([]chat.Message, error) {
	env, err := c.request(ctx, protocol.TypeGetHistory, protocol.GetHistory{With: counterpartID, Limit: c.cfg.HistoryLimit})
	if err != nil {
		return nil, err
	}
	var h protocol.History
	if err := env.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	msgs := make([]chat.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		msgs = append(msgs, chat.Message{
			ID:            m.ID,
			CounterpartID: counterpartID,
			FromMe:        m.From == c.cfg.SelfID,
			Body:          m.Body,
			Status:        chat.Status(m.Status),
			CreatedAt:     protocol.Time(m.CreatedAt),
		})
	}
	return msgs, nil
}

func (c *Client) current() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// request sends a frame with a fresh ref and waits for the matching reply.
func (c *Client) request(ctx context.Context, t protocol.Type, data any) (*protocol.Envelope, error) {
	ref := uuid.NewString()
	reply := make(chan *protocol.Envelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, chat.ErrNotConnected
	}
	c.pending[ref] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	frame, err := protocol.Encode(t, ref, data)
	if err != nil {
		return nil, err
	}
	if err := conn.enqueue(ctx, frame); err != nil {
		return nil, err
	}

	select {
	case env, ok := <-reply:
		if !ok {
			return nil, chat.ErrNotConnected
		}
		if env.Type == protocol.TypeError {
			var ef protocol.ErrorFrame
			if err := env.Decode(&ef); err != nil {
				return nil, fmt.Errorf("decode error frame: %w", err)
			}
			return nil, ef
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectMin
	b.MaxInterval = c.cfg.ReconnectMax

	for {
		c.machine.Settle(status.Connecting)
		ws, welcome, err := c.dial(ctx)
		if err == nil {
			b.Reset()
			c.serve(ctx, ws, welcome)
		} else if ctx.Err() == nil {
			c.logger.Warn("relay dial failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		c.machine.Settle(status.Reconnecting)
		wait := b.NextBackOff()
		c.logger.Info("reconnecting", zap.Duration("in", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// dial opens the socket and performs the hello/welcome handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, *protocol.Welcome, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	hello, err := protocol.Encode(protocol.TypeHello, "", protocol.Hello{UserID: c.cfg.SelfID})
	if err != nil {
		_ = ws.Close()
		return nil, nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("send hello: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(writeWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("read welcome: %w", err)
	}
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("parse welcome: %w", err)
	}
	if env.Type == protocol.TypeError {
		var ef protocol.ErrorFrame
		_ = env.Decode(&ef)
		_ = ws.Close()
		return nil, nil, ef
	}
	var welcome protocol.Welcome
	if env.Type != protocol.TypeWelcome || env.Decode(&welcome) != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("unexpected %q frame during handshake", env.Type)
	}
	return ws, &welcome, nil
}

// serve runs one connected session and returns when it drops.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn, welcome *protocol.Welcome) {
	conn := &connection{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.machine.Settle(status.Ready)
	c.logger.Info("relay connected", zap.String("self", welcome.UserID), zap.Int("online", len(welcome.Online)))
	c.bus.Emit(bus.TransportConnected, nil)
	for _, id := range welcome.Online {
		c.bus.Emit(bus.TransportPresence, chat.PresenceUpdate{CounterpartID: id, Presence: chat.Presence{Online: true}})
	}

	go c.writePump(conn)
	go func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-conn.closed:
		}
	}()

	c.readPump(conn)
	conn.close()

	c.mu.Lock()
	c.conn = nil
	for ref, ch := range c.pending {
		close(ch)
		delete(c.pending, ref)
	}
	c.mu.Unlock()

	c.logger.Warn("relay disconnected")
	c.bus.Emit(bus.TransportDisconnected, nil)
}

func (c *Client) readPump(conn *connection) {
	pongWait := 2 * c.cfg.PingInterval
	conn.ws.SetReadLimit(maxFrameSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("relay read failed", zap.Error(err))
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(data)
	}
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case frame := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.closed:
			_ = conn.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.logger.Warn("invalid relay frame", zap.Error(err))
		return
	}

	if env.Ref != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.Ref]
		delete(c.pending, env.Ref)
		c.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}

	switch env.Type {
	case protocol.TypeMessage:
		var m protocol.Message
		if err := env.Decode(&m); err != nil {
			c.logger.Warn("invalid message frame", zap.Error(err))
			return
		}
		c.bus.Emit(bus.TransportMessage, chat.Message{
			ID:            m.ID,
			CounterpartID: m.From,
			Body:          m.Body,
			CreatedAt:     protocol.Time(m.CreatedAt),
			Status:        chat.StatusDelivered,
		})
		c.acknowledge(m)
	case protocol.TypeReceipt:
		var r protocol.Receipt
		if err := env.Decode(&r); err != nil {
			c.logger.Warn("invalid receipt frame", zap.Error(err))
			return
		}
		c.bus.Emit(bus.TransportReceipt, chat.Receipt{
			CounterpartID: r.From,
			MessageIDs:    r.IDs,
			Status:        chat.Status(r.Status),
			At:            protocol.Time(r.At),
		})
	case protocol.TypePresence:
		var p protocol.Presence
		if err := env.Decode(&p); err != nil {
			c.logger.Warn("invalid presence frame", zap.Error(err))
			return
		}
		c.bus.Emit(bus.TransportPresence, chat.PresenceUpdate{
			CounterpartID: p.UserID,
			Presence:      chat.Presence{Online: p.Online, LastSeen: protocol.Time(p.LastSeen)},
		})
	case protocol.TypeError:
		var ef protocol.ErrorFrame
		_ = env.Decode(&ef)
		c.logger.Warn("relay reported error", zap.String("code", ef.Code), zap.String("message", ef.Message))
	default:
		c.logger.Debug("ignoring relay frame", zap.String("type", string(env.Type)))
	}
}

// acknowledge tells the relay a pushed message reached this device. The relay keeps the
// message undelivered until this receipt arrives and flushes it again on the next join.
func (c *Client) acknowledge(m protocol.Message) {
	conn := c.current()
	if conn == nil {
		return
	}
	frame, err := protocol.Encode(protocol.TypeReceipt, "", protocol.Receipt{
		To:     m.From,
		IDs:    []string{m.ID},
		Status: string(chat.StatusDelivered),
		At:     protocol.Millis(time.Now()),
	})
	if err != nil {
		c.logger.Error("encode delivered receipt", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := conn.enqueue(ctx, frame); err != nil {
		c.logger.Debug("delivered receipt not sent", zap.String("msg_id", m.ID), zap.Error(err))
	}
}
