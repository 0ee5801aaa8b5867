package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial refused")

func envelopeJSON(t *testing.T, conversationID string, eventType streaming.EventType, payload any, significant bool) []byte {
	t.Helper()
	env, err := streaming.NewEnvelope(conversationID, eventType, payload, significant, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

type recordingRenderer struct {
	states      []State
	timeline    []TimelineEntry
	updates     map[ContentKind][]string
	completions []Completion
	notices     []Notice
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{updates: make(map[ContentKind][]string)}
}

func (r *recordingRenderer) StateChanged(state State) { r.states = append(r.states, state) }
func (r *recordingRenderer) TimelineAppended(entry TimelineEntry) {
	r.timeline = append(r.timeline, entry)
}
func (r *recordingRenderer) ContentUpdated(kind ContentKind, content string) {
	r.updates[kind] = append(r.updates[kind], content)
}
func (r *recordingRenderer) Completed(c Completion) { r.completions = append(r.completions, c) }
func (r *recordingRenderer) Notify(n Notice)        { r.notices = append(r.notices, n) }

type fakeLoader struct {
	snap  *Snapshot
	err   error
	calls int
}

func (l *fakeLoader) LoadConversation(_ context.Context, conversationID string) (*Snapshot, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	out := *l.snap
	out.ID = conversationID
	return &out, nil
}

type transportCall struct {
	action  string
	channel string
}

// fakeTransport records calls. Its callbacks run synchronously on the
// caller, so tests drive them and then flush the client mailbox.
type fakeTransport struct {
	mu         sync.Mutex
	dialErr    error
	connected  bool
	handler    Handler
	calls      []transportCall
	dials      int
	subscribed map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribed: make(map[string]bool)}
}

func (f *fakeTransport) Connect(_ context.Context, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return f.dialErr
	}
	f.connected = true
	f.handler = handler
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{"subscribe", channel})
	f.subscribed[channel] = true
	return nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{"unsubscribe", channel})
	delete(f.subscribed, channel)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) deliver(channel string, envelope []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnEvent(channel, envelope)
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.handler
	f.mu.Unlock()
	h.OnClose(err)
}

type scheduled struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (s *scheduled) Stop() bool {
	was := !s.stopped
	s.stopped = true
	return was
}

type fakeScheduler struct {
	timers []*scheduled
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &scheduled{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// fireLast runs the most recently scheduled live timer.
func (s *fakeScheduler) fireLast(t *testing.T) time.Duration {
	t.Helper()
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped {
			timer := s.timers[i]
			timer.stopped = true
			timer.fn()
			return timer.delay
		}
	}
	require.FailNow(t, "no pending timer")
	return 0
}

func (s *fakeScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeSource struct {
	queued map[string][][]byte
	err    error
	drains int
}

func (s *fakeSource) DrainEvents(_ context.Context, conversationID string) ([][]byte, error) {
	s.drains++
	if s.err != nil {
		return nil, s.err
	}
	out := s.queued[conversationID]
	delete(s.queued, conversationID)
	return out, nil
}

type clientHarness struct {
	client    *Client
	transport *fakeTransport
	scheduler *fakeScheduler
	renderer  *recordingRenderer
}

// newHarness builds a client that is driven directly instead of through
// Run, so every step is deterministic.
func newHarness(t *testing.T, source EventSource, opts Options) *clientHarness {
	t.Helper()
	h := &clientHarness{
		transport: newFakeTransport(),
		scheduler: &fakeScheduler{},
		renderer:  newRecordingRenderer(),
	}
	c, err := New(h.transport, source, h.renderer,
		WithScheduler(h.scheduler),
		WithLogger(logger.NewForTests()),
		WithOptions(opts),
	)
	require.NoError(t, err)
	h.client = c
	return h
}

func (h *clientHarness) start(conversationID string) {
	h.client.activate(conversationID)
	h.client.connect()
}

func (h *clientHarness) flush() {
	h.client.box.runPending()
}
