package streamclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/sethvargo/go-retry"
)

// Options tunes the client state machine.
type Options struct {
	ConnectTimeout       time.Duration
	HealthInterval       time.Duration
	PollInterval         time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	DedupCapacity        int
}

// DefaultOptions matches the shipped client configuration.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       5 * time.Second,
		HealthInterval:       10 * time.Second,
		PollInterval:         3 * time.Second,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
		DedupCapacity:        defaultDedupCapacity,
	}
}

// OptionsFromConfig maps the client config section, keeping defaults for
// unset values.
func OptionsFromConfig(cfg *config.ClientConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.ConnectTimeout > 0 {
		opts.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.HealthInterval > 0 {
		opts.HealthInterval = cfg.HealthInterval
	}
	if cfg.PollInterval > 0 {
		opts.PollInterval = cfg.PollInterval
	}
	if cfg.ReconnectBaseDelay > 0 {
		opts.ReconnectBaseDelay = cfg.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts > 0 {
		opts.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	}
	if cfg.DedupCapacity > 0 {
		opts.DedupCapacity = cfg.DedupCapacity
	}
	return opts
}

// Option customizes a Client.
type Option func(*Client)

// WithScheduler replaces the wall-clock timer source.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithLoader enables reconciliation against the persisted conversation.
func WithLoader(l Loader) Option {
	return func(c *Client) {
		c.loader = l
	}
}

// WithOptions overrides the tuning options.
func WithOptions(opts Options) Option {
	return func(c *Client) {
		c.opts = opts
	}
}

// Client keeps one viewer subscribed to the active conversation. Every
// state mutation runs on the event loop started by Run; transport and timer
// callbacks only post work to it.
type Client struct {
	opts      Options
	log       logger.Logger
	transport Transport
	source    EventSource
	loader    Loader
	renderer  Renderer
	scheduler Scheduler
	box       *mailbox
	current   atomic.Value

	// loop-owned
	ctx            context.Context
	consumer       *Consumer
	state          State
	conversationID string
	channels       []string
	backoff        retry.Backoff
	attempts       int
	epoch          uint64
	closed         bool
	reconnectTimer Timer
	healthTimer    Timer
	pollTimer      Timer
	pollGen        uint64

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a client. source may be nil to disable the poll fallback.
func New(transport Transport, source EventSource, renderer Renderer, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("streamclient: transport is required")
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	c := &Client{
		opts:      DefaultOptions(),
		log:       logger.GetDefault(),
		transport: transport,
		source:    source,
		renderer:  renderer,
		scheduler: clockScheduler{},
		box:       newMailbox(),
		ctx:       context.Background(),
		state:     StateDisconnected,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.ReconnectBaseDelay <= 0 {
		return nil, errors.New("streamclient: reconnect base delay must be positive")
	}
	c.log = c.log.With("component", "stream_client")
	consumer, err := NewConsumer(renderer, c.loader, c.opts.DedupCapacity, c.log)
	if err != nil {
		return nil, err
	}
	c.consumer = consumer
	c.backoff = c.newBackoff()
	c.current.Store(StateDisconnected)
	return c, nil
}

func (c *Client) newBackoff() retry.Backoff {
	attempts := c.opts.MaxReconnectAttempts
	if attempts < 0 {
		attempts = 0
	}
	return retry.WithMaxRetries(uint64(attempts), retry.NewExponential(c.opts.ReconnectBaseDelay))
}

// State returns the last published connection state. Safe from any goroutine.
func (c *Client) State() State {
	return c.current.Load().(State)
}

// Run connects, subscribes to conversationID and processes events until
// ctx is canceled or Close is called.
func (c *Client) Run(ctx context.Context, conversationID string) error {
	if err := streaming.ValidateConversationID(conversationID); err != nil {
		return err
	}
	c.box.post(func() {
		c.ctx = ctx
		c.activate(conversationID)
		c.connect()
	})
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.done:
			c.shutdown()
			return nil
		case <-c.box.signal:
			c.box.runPending()
		}
	}
}

// SwitchConversation makes conversationID the active conversation. It
// returns after every channel of the previous conversation has been
// unsubscribed and the new ones subscribed.
func (c *Client) SwitchConversation(ctx context.Context, conversationID string) error {
	if err := streaming.ValidateConversationID(conversationID); err != nil {
		return err
	}
	return c.call(ctx, func() error {
		return c.switchTo(conversationID)
	})
}

// Reconnect restarts the reconnection sequence after the client failed.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.state != StateFailed {
			return nil
		}
		c.backoff = c.newBackoff()
		c.attempts = 0
		c.connect()
		return nil
	})
}

// Close stops the event loop.
func (c *Client) Close() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	c.box.post(func() {
		if c.closed {
			result <- ErrClosed
			return
		}
		result <- fn()
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) setState(state State) {
	if c.state == state {
		return
	}
	c.log.Debug("Connection state changed", "from", c.state, "to", state)
	c.state = state
	c.current.Store(state)
	c.renderer.StateChanged(state)
}

// post wraps transport and timer callbacks so they run on the loop and are
// ignored once the connection generation they belong to is gone.
func (c *Client) post(epoch uint64, fn func()) {
	c.box.post(func() {
		if c.closed || epoch != c.epoch {
			return
		}
		fn()
	})
}

func (c *Client) activate(conversationID string) {
	c.conversationID = conversationID
	c.channels = streaming.ChannelsFor(conversationID)
	c.consumer.Reset(conversationID)
}

func (c *Client) connect() {
	if c.closed {
		return
	}
	c.stopTimer(&c.reconnectTimer)
	c.setState(StateConnecting)
	c.epoch++
	epoch := c.epoch
	handler := Handler{
		OnEvent: func(channel string, envelope []byte) {
			c.post(epoch, func() { c.handleLive(channel, envelope) })
		},
		OnClose: func(err error) {
			c.post(epoch, func() { c.connectionLost(err) })
		},
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
	err := c.transport.Connect(ctx, handler)
	cancel()
	if err != nil {
		c.connectionLost(err)
		return
	}
	if err := c.subscribeAll(); err != nil {
		_ = c.transport.Close()
		c.connectionLost(err)
		return
	}
	c.setState(StateConnected)
	c.attempts = 0
	c.backoff = c.newBackoff()
	c.stopPolling()
	c.scheduleHealth(epoch)
	c.pollOnce()
}

func (c *Client) subscribeAll() error {
	for _, ch := range c.channels {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
		err := c.transport.Subscribe(ctx, ch)
		cancel()
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	return nil
}

// connectionLost schedules the next attempt, or fails terminally once the
// backoff budget is spent.
func (c *Client) connectionLost(cause error) {
	if c.closed || c.state == StateFailed {
		return
	}
	c.epoch++
	c.stopTimer(&c.healthTimer)
	c.setState(StateDisconnected)
	delay, stop := c.backoff.Next()
	if stop {
		c.stopPolling()
		c.setState(StateFailed)
		c.log.Error("Giving up reconnecting", "attempts", c.attempts, "error", cause)
		c.renderer.Notify(Notice{
			Err:     ErrReconnectExhausted,
			Message: fmt.Sprintf("connection lost after %d reconnect attempts", c.attempts),
		})
		return
	}
	c.attempts++
	c.log.Warn("Connection lost, reconnecting",
		"attempt", c.attempts, "delay", delay, "error", cause)
	epoch := c.epoch
	c.reconnectTimer = c.scheduler.AfterFunc(delay, func() {
		c.post(epoch, c.connect)
	})
	c.schedulePoll()
}

func (c *Client) scheduleHealth(epoch uint64) {
	if c.opts.HealthInterval <= 0 {
		return
	}
	c.healthTimer = c.scheduler.AfterFunc(c.opts.HealthInterval, func() {
		c.post(epoch, c.checkHealth)
	})
}

func (c *Client) checkHealth() {
	if c.state != StateConnected {
		return
	}
	if c.transport.Connected() {
		c.scheduleHealth(c.epoch)
		return
	}
	c.setState(StateUnhealthy)
	_ = c.transport.Close()
	c.connectionLost(ErrTransportUnhealthy)
}

// schedulePoll arms the fallback poll while live delivery is down.
func (c *Client) schedulePoll() {
	if c.source == nil || c.pollTimer != nil || c.opts.PollInterval <= 0 {
		return
	}
	c.pollGen++
	gen := c.pollGen
	c.pollTimer = c.scheduler.AfterFunc(c.opts.PollInterval, func() {
		c.box.post(func() { c.pollTick(gen) })
	})
}

func (c *Client) stopPolling() {
	c.stopTimer(&c.pollTimer)
	c.pollGen++
}

func (c *Client) pollTick(gen uint64) {
	if gen != c.pollGen {
		return
	}
	c.pollTimer = nil
	if c.closed || c.state == StateConnected || c.state == StateFailed {
		return
	}
	c.pollOnce()
	c.schedulePoll()
}

func (c *Client) pollOnce() {
	if c.source == nil || c.conversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
	defer cancel()
	events, err := c.source.DrainEvents(ctx, c.conversationID)
	if err != nil {
		c.log.Warn("Failed to drain queued events", "conversation_id", c.conversationID, "error", err)
		return
	}
	for _, raw := range events {
		c.process(raw)
	}
}

func (c *Client) handleLive(channel string, envelope []byte) {
	conversationID, _, ok := streaming.ParseChannel(channel)
	if !ok || conversationID != c.conversationID {
		c.log.Debug("Dropping event from inactive channel", "channel", channel)
		return
	}
	c.process(envelope)
}

func (c *Client) process(raw []byte) {
	if err := c.consumer.ProcessStatusEvent(c.ctx, raw); err != nil {
		c.log.Warn("Discarding event", "conversation_id", c.conversationID, "error", err)
	}
}

func (c *Client) switchTo(conversationID string) error {
	if conversationID == c.conversationID {
		return nil
	}
	previous := c.channels
	c.activate(conversationID)
	if c.state != StateConnected {
		c.pollOnce()
		return nil
	}
	for _, ch := range previous {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
		err := c.transport.Unsubscribe(ctx, ch)
		cancel()
		if err != nil {
			_ = c.transport.Close()
			c.connectionLost(fmt.Errorf("unsubscribe %s: %w", ch, err))
			return nil
		}
	}
	if err := c.subscribeAll(); err != nil {
		_ = c.transport.Close()
		c.connectionLost(err)
		return nil
	}
	c.pollOnce()
	return nil
}

func (c *Client) stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Client) shutdown() {
	c.box.runPending()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.stopTimer(&c.reconnectTimer)
	c.stopTimer(&c.healthTimer)
	c.stopPolling()
	if err := c.transport.Close(); err != nil {
		c.log.Debug("Transport close failed", "error", err)
	}
	c.setState(StateDisconnected)
	c.Close()
}

// Consumer exposes the view state. Read it only after Run returned or from
// a Renderer callback.
func (c *Client) Consumer() *Consumer {
	return c.consumer
}
