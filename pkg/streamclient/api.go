package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	authmw "github.com/compozy/statusstream/engine/infra/server/middleware/auth"
	"github.com/compozy/statusstream/engine/infra/server/routes"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const eventsSuffix = "/events"

var (
	// ErrRateLimited is returned when the server rejects an emit for
	// exceeding the caller's event budget.
	ErrRateLimited = errors.New("streamclient: rate limited")
	// ErrConflict is returned when creating a conversation that exists.
	ErrConflict = errors.New("streamclient: already exists")
)

// APIOptions configures an APIClient.
type APIOptions struct {
	BaseURL string
	Token   string
	// UserID is sent as the development identity header when Token is empty.
	UserID  string
	Timeout time.Duration
	Debug   bool
}

// APIClient talks to the conversation HTTP API.
type APIClient struct {
	client *resty.Client
}

// NewAPIClient builds a resty client with retries on transient failures.
func NewAPIClient(opts APIOptions) (*APIClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("streamclient: base URL must be http or https, got %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetDebug(opts.Debug)
	switch {
	case opts.Token != "":
		client.SetAuthToken(opts.Token)
	case opts.UserID != "":
		client.SetHeader(authmw.DevUserHeader, opts.UserID)
	}
	client.AddRetryCondition(retryCondition)
	return &APIClient{client: client}, nil
}

// retryCondition retries network errors and 5xx responses of idempotent
// requests only. 429 is final: the emit budget does not refill within the
// retry window.
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || !retryable(r.Request) {
		return false
	}
	if err != nil {
		return true
	}
	return r.StatusCode() >= http.StatusInternalServerError
}

// retryable reports whether req may be resent. Drains clear the queue and
// emits append to it, so neither is.
func retryable(req *resty.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodPut, http.MethodHead:
	default:
		return false
	}
	path := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		path = u.Path
	}
	return !strings.HasSuffix(strings.TrimRight(path, "/"), eventsSuffix)
}

// CreateConversation registers a conversation owned by the caller.
func (a *APIClient) CreateConversation(ctx context.Context, id, title string) (*Snapshot, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"id": id, "title": title}).
		Post(routes.Conversations())
	if err := checkResponse(resp, err, "create conversation"); err != nil {
		return nil, err
	}
	return decodeSnapshot(resp.Body())
}

// LoadConversation reads the persisted conversation.
func (a *APIClient) LoadConversation(ctx context.Context, conversationID string) (*Snapshot, error) {
	resp, err := a.client.R().SetContext(ctx).Get(routes.Conversation(conversationID))
	if err := checkResponse(resp, err, "load conversation"); err != nil {
		return nil, err
	}
	return decodeSnapshot(resp.Body())
}

// SaveAnswer stores the final answer before completion is emitted.
func (a *APIClient) SaveAnswer(ctx context.Context, conversationID, answer string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"answer": answer}).
		Put(routes.Conversation(conversationID) + "/answer")
	return checkResponse(resp, err, "save answer")
}

// Emit publishes one event and returns the accepted envelope.
func (a *APIClient) Emit(
	ctx context.Context,
	conversationID string,
	eventType streaming.EventType,
	payload json.RawMessage,
	significant bool,
) ([]byte, error) {
	body := map[string]any{"type": eventType, "is_significant": significant}
	if len(payload) > 0 {
		body["payload"] = payload
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(routes.ConversationEvents(conversationID))
	if err := checkResponse(resp, err, "emit event"); err != nil {
		return nil, err
	}
	return []byte(gjson.GetBytes(resp.Body(), "data").Raw), nil
}

// DrainEvents removes and returns the queued envelopes, oldest first. It is
// never retried since a failed reply may follow a completed drain.
func (a *APIClient) DrainEvents(ctx context.Context, conversationID string) ([][]byte, error) {
	resp, err := a.client.R().SetContext(ctx).Get(routes.ConversationEvents(conversationID))
	if err := checkResponse(resp, err, "drain events"); err != nil {
		return nil, err
	}
	events := gjson.GetBytes(resp.Body(), "data.events").Array()
	out := make([][]byte, 0, len(events))
	for _, ev := range events {
		out = append(out, []byte(ev.Raw))
	}
	return out, nil
}

// DiscoverConversation fetches an HTML page and returns the conversation id
// it embeds.
func (a *APIClient) DiscoverConversation(ctx context.Context, pageURL string) (string, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		Get(pageURL)
	if err := checkResponse(resp, err, "fetch page"); err != nil {
		return "", err
	}
	return DiscoverConversationID(bytes.NewReader(resp.Body()))
}

func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("streamclient: %s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	detail := gjson.GetBytes(resp.Body(), "details").String()
	if detail == "" {
		detail = resp.Status()
	}
	switch resp.StatusCode() {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, detail)
	default:
		return fmt.Errorf("streamclient: %s: status %d: %s", op, resp.StatusCode(), detail)
	}
}

func decodeSnapshot(body []byte) (*Snapshot, error) {
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("streamclient: response carries no conversation")
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data.Raw), &snap); err != nil {
		return nil, fmt.Errorf("streamclient: decode conversation: %w", err)
	}
	return &snap, nil
}
