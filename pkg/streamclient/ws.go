package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	authmw "github.com/compozy/statusstream/engine/infra/server/middleware/auth"
	"github.com/compozy/statusstream/engine/infra/server/routes"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsMaxFrameBytes = 1 << 20
)

// WSTransport speaks the channel hub protocol over a websocket.
type WSTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	handler   Handler
	pending   map[string]chan error
	sessionID string
	connected atomic.Bool
	writeMu   sync.Mutex
	seq       atomic.Uint64
}

// WSOptions configures a WSTransport.
type WSOptions struct {
	BaseURL string
	Token   string
	// UserID is sent as the development identity header when Token is empty.
	UserID string
	Logger logger.Logger
}

// NewWSTransport derives the hub URL from an http(s) base URL.
func NewWSTransport(opts WSOptions) (*WSTransport, error) {
	hubURL, err := hubURL(opts.BaseURL, opts.Token)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if opts.Token == "" && opts.UserID != "" {
		header.Set(authmw.DevUserHeader, opts.UserID)
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	return &WSTransport{
		url:     hubURL,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:     log.With("component", "ws_transport"),
		pending: make(map[string]chan error),
	}, nil
}

func hubURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("streamclient: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("streamclient: unsupported base URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("streamclient: base URL %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + routes.WS()
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the hub and starts the reader goroutine.
func (t *WSTransport) Connect(ctx context.Context, handler Handler) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("streamclient: dial hub: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("streamclient: dial hub: %w", err)
	}
	conn.SetReadLimit(wsMaxFrameBytes)
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.handler = handler
	t.mu.Unlock()
	t.connected.Store(true)
	go t.readLoop(conn, handler)
	return nil
}

func (t *WSTransport) Connected() bool {
	return t.connected.Load()
}

// SessionID is the id assigned by the hub to the current connection.
func (t *WSTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *WSTransport) Subscribe(ctx context.Context, channel string) error {
	return t.request(ctx, streaming.SocketActionSubscribe, channel)
}

func (t *WSTransport) Unsubscribe(ctx context.Context, channel string) error {
	return t.request(ctx, streaming.SocketActionUnsubscribe, channel)
}

// Ping round-trips a ping frame.
func (t *WSTransport) Ping(ctx context.Context) error {
	return t.request(ctx, streaming.SocketActionPing, "")
}

func (t *WSTransport) request(ctx context.Context, action streaming.SocketAction, channel string) error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	ref := strconv.FormatUint(t.seq.Add(1), 10)
	ack := make(chan error, 1)
	t.pending[ref] = ack
	t.mu.Unlock()
	defer t.forget(ref)

	data, err := json.Marshal(streaming.SocketRequest{Action: action, Channel: channel, Ref: ref})
	if err != nil {
		return fmt.Errorf("streamclient: encode %s: %w", action, err)
	}
	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("streamclient: send %s: %w", action, err)
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return fmt.Errorf("streamclient: await %s ack: %w", action, ctx.Err())
	}
}

func (t *WSTransport) forget(ref string) {
	t.mu.Lock()
	delete(t.pending, ref)
	t.mu.Unlock()
}

func (t *WSTransport) resolve(ref string, err error) {
	if ref == "" {
		return
	}
	t.mu.Lock()
	ack, ok := t.pending[ref]
	t.mu.Unlock()
	if ok {
		select {
		case ack <- err:
		default:
		}
	}
}

// failPending must be called with t.mu held.
func (t *WSTransport) failPending(cause error) {
	for ref, ack := range t.pending {
		select {
		case ack <- fmt.Errorf("%w: %w", ErrNotConnected, cause):
		default:
		}
		delete(t.pending, ref)
	}
}

func (t *WSTransport) readLoop(conn *websocket.Conn, handler Handler) {
	var cause error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cause = err
			break
		}
		t.dispatch(data, handler)
	}
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
		t.connected.Store(false)
		t.failPending(cause)
	}
	t.mu.Unlock()
	if current && handler.OnClose != nil {
		handler.OnClose(cause)
	}
}

func (t *WSTransport) dispatch(data []byte, handler Handler) {
	frame := gjson.ParseBytes(data)
	ref := frame.Get("ref").String()
	switch streaming.SocketFrameType(frame.Get("type").String()) {
	case streaming.SocketFrameEvent:
		payload := frame.Get("data")
		if !payload.Exists() || handler.OnEvent == nil {
			return
		}
		handler.OnEvent(frame.Get("channel").String(), []byte(payload.Raw))
	case streaming.SocketFrameSubscribed, streaming.SocketFrameUnsubscribed, streaming.SocketFramePong:
		t.resolve(ref, nil)
	case streaming.SocketFrameError:
		msg := frame.Get("error").String()
		if ref == "" {
			t.log.Warn("Hub reported an error", "error", msg)
			return
		}
		t.resolve(ref, errors.New("hub: "+msg))
	case streaming.SocketFrameSession:
		t.mu.Lock()
		t.sessionID = frame.Get("session_id").String()
		t.mu.Unlock()
	default:
		t.log.Debug("Ignoring unknown hub frame", "frame", frame.Get("type").String())
	}
}

// Close sends a close frame and drops the connection. The reader observes
// the closed socket and returns without invoking OnClose.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connected.Store(false)
	t.failPending(net.ErrClosed)
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	return conn.Close()
}
