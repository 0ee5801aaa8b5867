package streamrouter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/engine/infra/pubsub"
	"github.com/compozy/statusstream/engine/infra/server/appstate"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	sessionSendBuffer   = 64
	maxRequestBytes     = 4096
)

// HubConfig tunes the websocket channel hub.
type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// Hub upgrades authenticated requests to websocket sessions that subscribe
// to conversation channels and relay their messages.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHub creates a hub. Zero config values fall back to defaults.
func NewHub(cfg HubConfig) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     checkOrigin,
		},
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		sessions:     make(map[string]*session),
	}
}

// Sessions reports how many websocket sessions are open.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close terminates every open session.
func (h *Hub) Close() {
	h.mu.Lock()
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()
	for _, s := range open {
		s.cancel()
	}
}

// Handle is the gin handler for GET /ws.
func (h *Hub) Handle(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	state := router.GetAppState(c)
	if state == nil {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("Websocket upgrade failed", "error", err)
		return
	}
	// The session outlives the request handler's deadline middleware.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		state:  state,
		hub:    h,
		send:   make(chan streaming.SocketFrame, sessionSendBuffer),
		subs:   make(map[string]pubsub.Subscription),
		cancel: cancel,
	}
	s.log = logger.FromContext(ctx).With("session_id", s.id, "user_id", userID)
	h.register(s)
	defer h.unregister(s)
	s.run(ctx)
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

// session is one websocket connection. The writer goroutine owns every write
// to conn; other goroutines queue frames on send.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	state  *appstate.State
	hub    *Hub
	log    logger.Logger
	send   chan streaming.SocketFrame
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]pubsub.Subscription
	wg   sync.WaitGroup
}

func (s *session) run(ctx context.Context) {
	opened := time.Now()
	s.state.Metrics.SessionOpened(ctx)
	s.log.Info("Websocket session opened")
	defer func() {
		s.cancel()
		s.closeSubscriptions()
		s.wg.Wait()
		_ = s.conn.Close()
		s.state.Metrics.SessionClosed(ctx, time.Since(opened))
		s.log.Info("Websocket session closed", "lifetime", time.Since(opened))
	}()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()
	s.enqueue(ctx, streaming.SocketFrame{Type: streaming.SocketFrameSession, SessionID: s.id})
	s.readLoop(ctx)
	s.cancel()
	<-writerDone
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxRequestBytes)
	deadline := s.hub.pingInterval*2 + s.hub.writeTimeout
	_ = s.conn.SetReadDeadline(time.Now().Add(deadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		var req streaming.SocketRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				s.log.Debug("Websocket read ended", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(deadline))
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ctx, req)
	}
}

func (s *session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.hub.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(s.hub.writeTimeout)
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				deadline,
			)
			_ = s.conn.SetReadDeadline(deadline)
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("Websocket write failed", "error", err)
				s.cancel()
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(s.hub.writeTimeout),
			); err != nil {
				s.cancel()
				_ = s.conn.Close()
				return
			}
		}
	}
}

// enqueue hands a frame to the writer. Frames are dropped when the session
// is closing or its buffer is full.
func (s *session) enqueue(ctx context.Context, frame streaming.SocketFrame) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.log.Warn("Websocket send buffer full, dropping frame", "type", frame.Type, "channel", frame.Channel)
		return false
	}
}

func (s *session) dispatch(ctx context.Context, req streaming.SocketRequest) {
	switch req.Action {
	case streaming.SocketActionPing:
		s.enqueue(ctx, streaming.SocketFrame{Type: streaming.SocketFramePong, Ref: req.Ref})
	case streaming.SocketActionSubscribe:
		s.subscribe(ctx, req)
	case streaming.SocketActionUnsubscribe:
		s.unsubscribe(ctx, req)
	default:
		s.fail(ctx, req, "unknown action")
	}
}

func (s *session) fail(ctx context.Context, req streaming.SocketRequest, msg string) {
	s.enqueue(ctx, streaming.SocketFrame{
		Type:    streaming.SocketFrameError,
		Channel: req.Channel,
		Ref:     req.Ref,
		Error:   msg,
	})
}

// authorize checks that the session user may read the channel's conversation.
func (s *session) authorize(ctx context.Context, channel string) bool {
	convID, _, ok := streaming.ParseChannel(channel)
	if !ok {
		return false
	}
	if userctx.IsSystem(s.userID) {
		return true
	}
	_, err := s.state.Guard.AuthorizeConversation(ctx, s.userID, convID)
	return err == nil
}

func (s *session) subscribe(ctx context.Context, req streaming.SocketRequest) {
	if !s.authorize(ctx, req.Channel) {
		s.log.Debug("Channel subscription rejected", "channel", req.Channel)
		s.fail(ctx, req, "forbidden")
		return
	}
	s.mu.Lock()
	if _, exists := s.subs[req.Channel]; exists {
		s.mu.Unlock()
		s.enqueue(ctx, streaming.SocketFrame{Type: streaming.SocketFrameSubscribed, Channel: req.Channel, Ref: req.Ref})
		return
	}
	s.mu.Unlock()
	sub, err := s.state.Channels.Subscribe(ctx, req.Channel)
	if err != nil {
		s.log.Warn("Channel subscription failed", "channel", req.Channel, "error", err)
		s.fail(ctx, req, "subscription unavailable")
		return
	}
	s.mu.Lock()
	if _, exists := s.subs[req.Channel]; exists {
		s.mu.Unlock()
		_ = sub.Close()
	} else {
		s.subs[req.Channel] = sub
		s.mu.Unlock()
		s.wg.Add(1)
		go s.relay(ctx, req.Channel, sub)
	}
	s.enqueue(ctx, streaming.SocketFrame{Type: streaming.SocketFrameSubscribed, Channel: req.Channel, Ref: req.Ref})
}

// unsubscribe closes the channel subscription before acknowledging, so no
// frame for the channel follows the acknowledgement from this relay.
func (s *session) unsubscribe(ctx context.Context, req streaming.SocketRequest) {
	s.mu.Lock()
	sub, ok := s.subs[req.Channel]
	delete(s.subs, req.Channel)
	s.mu.Unlock()
	if ok {
		if err := sub.Close(); err != nil {
			s.log.Debug("Failed to close channel subscription", "channel", req.Channel, "error", err)
		}
	}
	s.enqueue(ctx, streaming.SocketFrame{Type: streaming.SocketFrameUnsubscribed, Channel: req.Channel, Ref: req.Ref})
}

func (s *session) relay(ctx context.Context, channel string, sub pubsub.Subscription) {
	defer s.wg.Done()
	_, purpose, _ := streaming.ParseChannel(channel)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			decoded, err := streaming.DecodeChannelMessage(msg.Payload)
			if err != nil {
				s.log.Warn("Dropping malformed channel message", "channel", channel, "error", err)
				continue
			}
			env := decoded.Data
			sent, active := s.forward(ctx, channel, sub, streaming.SocketFrame{
				Type:    streaming.SocketFrameEvent,
				Channel: channel,
				Event:   decoded.Event,
				Data:    &env,
			})
			if !active {
				return
			}
			if sent {
				s.state.Metrics.RecordRelay(ctx, string(purpose))
			}
		}
	}
}

// forward enqueues frame while sub is still the channel's live subscription.
// Holding mu orders it before any unsubscribe acknowledgement.
func (s *session) forward(
	ctx context.Context,
	channel string,
	sub pubsub.Subscription,
	frame streaming.SocketFrame,
) (sent bool, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[channel] != sub {
		return false, false
	}
	return s.enqueue(ctx, frame), true
}

func (s *session) closeSubscriptions() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]pubsub.Subscription)
	s.mu.Unlock()
	for channel, sub := range subs {
		if err := sub.Close(); err != nil {
			s.log.Debug("Failed to close channel subscription", "channel", channel, "error", err)
		}
	}
}
