package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/protocol"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	helloWait       = 10 * time.Second
	maxFrameSize    = 1 << 20
	clientBuffer    = 256
	defaultHistory  = 200
	maxHistoryLimit = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server accepts client sessions and routes their frames.
type Server struct {
	hub    *Hub
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewServer creates a relay server persisting messages in db.
func NewServer(db *store.DB, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:    NewHub(logger),
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Hub returns the server's presence registry.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes: the WebSocket endpoint at /ws and a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleWebSocket upgrades the request and runs the session until it drops.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	userID, err := s.readHello(conn)
	if err != nil {
		s.logger.Info("rejected session", zap.Error(err))
		frame, _ := protocol.Encode(protocol.TypeError, "", protocol.ErrorFrame{Code: protocol.ErrCodeNotIdentified, Message: err.Error()})
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.Close()
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		closed: make(chan struct{}),
	}
	if prev := s.hub.register(c); prev != nil {
		s.logger.Info("replacing session", zap.String("user", userID))
		prev.close()
	}
	s.logger.Info("client connected", zap.String("user", userID))

	online := make([]string, 0)
	for _, id := range s.hub.Online() {
		if id != userID {
			online = append(online, id)
		}
	}
	go s.writePump(c)
	s.reply(c, protocol.TypeWelcome, "", protocol.Welcome{UserID: userID, Online: online})
	s.hub.broadcast(userID, protocol.TypePresence, protocol.Presence{UserID: userID, Online: true})
	go s.flushUndelivered(c)

	s.readPump(c)
}

func (s *Server) readHello(conn *websocket.Conn) (string, error) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return "", err
	}
	if env.Type != protocol.TypeHello {
		return "", errors.New("first frame must be hello")
	}
	var h protocol.Hello
	if err := env.Decode(&h); err != nil {
		return "", err
	}
	h.UserID = strings.TrimSpace(h.UserID)
	if h.UserID == "" {
		return "", errors.New("hello without user id")
	}
	return h.UserID, nil
}

func (s *Server) readPump(c *client) {
	defer func() {
		c.close()
		at := s.now()
		if s.hub.unregister(c, at) {
			s.hub.broadcast(c.userID, protocol.TypePresence, protocol.Presence{UserID: c.userID, Online: false, LastSeen: protocol.Millis(at)})
			s.logger.Info("client disconnected", zap.String("user", c.userID))
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket error", zap.String("user", c.userID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(c, data)
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (s *Server) handleFrame(c *client, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		s.replyError(c, "", protocol.ErrCodeInvalidFrame, "invalid frame")
		return
	}

	switch env.Type {
	case protocol.TypeSend:
		var m protocol.Send
		if err := env.Decode(&m); err != nil {
			s.replyError(c, env.Ref, protocol.ErrCodeInvalidFrame, err.Error())
			return
		}
		s.handleSend(c, env.Ref, m)
	case protocol.TypeReceipt:
		var r protocol.Receipt
		if err := env.Decode(&r); err != nil {
			s.replyError(c, env.Ref, protocol.ErrCodeInvalidFrame, err.Error())
			return
		}
		s.handleReceipt(c, r)
	case protocol.TypeGetHistory:
		var g protocol.GetHistory
		if err := env.Decode(&g); err != nil {
			s.replyError(c, env.Ref, protocol.ErrCodeInvalidFrame, err.Error())
			return
		}
		s.handleHistory(c, env.Ref, g)
	default:
		s.replyError(c, env.Ref, protocol.ErrCodeInvalidFrame, "unsupported frame type "+string(env.Type))
	}
}

func (s *Server) handleSend(c *client, ref string, m protocol.Send) {
	switch {
	case m.ID == "":
		s.replyError(c, ref, protocol.ErrCodeInvalidSend, "message id is required")
		return
	case m.To == "" || m.To == c.userID:
		s.replyError(c, ref, protocol.ErrCodeInvalidSend, "invalid recipient")
		return
	case strings.TrimSpace(m.Body) == "":
		s.replyError(c, ref, protocol.ErrCodeInvalidSend, chat.ErrEmptyMessage.Error())
		return
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = protocol.Millis(s.now())
	}

	saved, err := s.db.SaveRelayMessage(&store.RelayMessage{
		MsgID:     m.ID,
		Sender:    c.userID,
		Recipient: m.To,
		Body:      m.Body,
		Status:    string(chat.StatusSent),
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		s.logger.Error("persist message", zap.String("msg_id", m.ID), zap.Error(err))
		s.replyError(c, ref, protocol.ErrCodeInternal, "could not store message")
		return
	}
	s.reply(c, protocol.TypeAck, ref, protocol.Ack{ID: m.ID, ServerID: m.ID})
	if !saved {
		// Retransmission of a message already routed.
		return
	}

	s.deliver(protocol.Message{ID: m.ID, From: c.userID, To: m.To, Body: m.Body, CreatedAt: m.CreatedAt})
}

// deliver pushes a message to its online recipient. The message stays undelivered until
// the recipient's device answers with a delivered receipt.
func (s *Server) deliver(m protocol.Message) {
	s.hub.sendTo(m.To, protocol.TypeMessage, "", m)
}

// flushUndelivered replays the stored backlog to c, waiting on its write buffer so a long
// backlog does not overflow it.
func (s *Server) flushUndelivered(c *client) {
	msgs, err := s.db.UndeliveredFor(c.userID)
	if err != nil {
		s.logger.Error("load undelivered", zap.String("user", c.userID), zap.Error(err))
		return
	}
	sent := 0
	for _, m := range msgs {
		frame, err := protocol.Encode(protocol.TypeMessage, "", protocol.Message{
			ID: m.MsgID, From: m.Sender, To: m.Recipient, Body: m.Body, CreatedAt: m.CreatedAt,
		})
		if err != nil {
			s.logger.Error("encode frame", zap.String("msg_id", m.MsgID), zap.Error(err))
			continue
		}
		if !c.enqueueWait(frame) {
			break
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("flushed undelivered messages", zap.String("user", c.userID), zap.Int("count", sent))
	}
}

// handleReceipt applies a receipt from the recipient of the named messages and forwards the
// ids that actually advanced to their sender.
func (s *Server) handleReceipt(c *client, r protocol.Receipt) {
	to := chat.Status(r.Status)
	if r.To == "" || len(r.IDs) == 0 || (to != chat.StatusDelivered && to != chat.StatusRead) {
		return
	}
	changed, err := s.db.AdvanceRelayStatus(r.To, c.userID, r.IDs, to)
	if err != nil {
		s.logger.Error("apply receipt", zap.String("user", c.userID), zap.Error(err))
		return
	}
	if len(changed) == 0 {
		return
	}
	at := r.At
	if at == 0 {
		at = protocol.Millis(s.now())
	}
	s.hub.sendTo(r.To, protocol.TypeReceipt, "", protocol.Receipt{From: c.userID, IDs: changed, Status: r.Status, At: at})
}

func (s *Server) handleHistory(c *client, ref string, g protocol.GetHistory) {
	limit := g.Limit
	if limit <= 0 {
		limit = defaultHistory
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := s.db.RelayConversation(c.userID, g.With, limit)
	if err != nil {
		s.logger.Error("load history", zap.String("user", c.userID), zap.Error(err))
		s.replyError(c, ref, protocol.ErrCodeInternal, "could not load history")
		return
	}
	msgs := make([]protocol.Message, 0, len(rows))
	for _, m := range rows {
		msgs = append(msgs, protocol.Message{ID: m.MsgID, From: m.Sender, To: m.Recipient, Body: m.Body, Status: m.Status, CreatedAt: m.CreatedAt})
	}
	s.reply(c, protocol.TypeHistory, ref, protocol.History{With: g.With, Messages: msgs})
}

// reply queues a frame for this session, even if a newer one replaced it.
func (s *Server) reply(c *client, t protocol.Type, ref string, data any) {
	frame, err := protocol.Encode(t, ref, data)
	if err != nil {
		s.logger.Error("encode frame", zap.String("type", string(t)), zap.Error(err))
		return
	}
	c.enqueue(frame)
}

func (s *Server) replyError(c *client, ref, code, msg string) {
	s.reply(c, protocol.TypeError, ref, protocol.ErrorFrame{Code: code, Message: msg})
}
