package streamclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestAPIClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Should drain events in order", func(t *testing.T) {
		first, err := streaming.NewEnvelope("conv-1", streaming.EventTypeStepAdded,
			streaming.StepPayload{Source: "a", Message: "1"}, false, time.Now())
		require.NoError(t, err)
		second, err := streaming.NewEnvelope("conv-1", streaming.EventTypeStepAdded,
			streaming.StepPayload{Source: "a", Message: "2"}, false, time.Now())
		require.NoError(t, err)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v0/conversations/conv-1/events", r.URL.Path)
			assert.Equal(t, "user-1", r.Header.Get("X-User-ID"))
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "events drained",
				"data":    map[string]any{"events": []streaming.Envelope{first, second}, "count": 2},
			})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, UserID: "user-1"})
		require.NoError(t, err)
		events, err := api.DrainEvents(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		var got streaming.Envelope
		require.NoError(t, json.Unmarshal(events[1], &got))
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("Should map forbidden and rate limited responses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"details": "event rate limit exceeded"})
				return
			}
			writeJSON(w, http.StatusForbidden, map[string]any{"details": "access to this conversation is not allowed"})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, Token: "tok"})
		require.NoError(t, err)
		_, err = api.LoadConversation(ctx, "conv-1")
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = api.Emit(ctx, "conv-1", streaming.EventTypeStepAdded, nil, false)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("Should load a conversation snapshot with the bearer token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "conversation retrieved",
				"data":    map[string]any{"id": "conv-1", "status": "completed", "answer": "42"},
			})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, Token: "tok"})
		require.NoError(t, err)
		snap, err := api.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "42", snap.Answer)
		assert.Equal(t, "completed", snap.Status)
	})

	t.Run("Should send emit and answer bodies", func(t *testing.T) {
		var bodies []map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			bodies = append(bodies, body)
			if r.Method == http.MethodPut {
				assert.Equal(t, "/api/v0/conversations/conv-1/answer", r.URL.Path)
				writeJSON(w, http.StatusOK, map[string]any{"message": "answer saved"})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"message": "event emitted", "data": map[string]any{"id": "e1"}})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL})
		require.NoError(t, err)
		env, err := api.Emit(ctx, "conv-1", streaming.EventTypeStepAdded, json.RawMessage(`{"message":"hi"}`), true)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"e1"}`, string(env))
		require.NoError(t, api.SaveAnswer(ctx, "conv-1", "done"))
		require.Len(t, bodies, 2)
		assert.Equal(t, "step_added", bodies[0]["type"])
		assert.Equal(t, true, bodies[0]["is_significant"])
		assert.Equal(t, "done", bodies[1]["answer"])
	})

	t.Run("Should not resend a drain whose reply was lost", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				hj, ok := w.(http.Hijacker)
				if !assert.True(t, ok) {
					return
				}
				conn, _, err := hj.Hijack()
				if assert.NoError(t, err) {
					_ = conn.Close()
				}
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "events drained",
				"data":    map[string]any{"events": []any{}, "count": 0},
			})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, UserID: "user-1"})
		require.NoError(t, err)
		events, err := api.DrainEvents(ctx, "conv-1")
		assert.Error(t, err)
		assert.Empty(t, events)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should not resend an emit after a server error", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusBadGateway, map[string]any{"details": "upstream failed"})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, UserID: "user-1"})
		require.NoError(t, err)
		_, err = api.Emit(ctx, "conv-1", streaming.EventTypeAnswerStream, json.RawMessage(`{"text":"a"}`), false)
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should retry a conversation read after a server error", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"details": "busy"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "conversation retrieved",
				"data":    map[string]any{"id": "conv-1", "status": "completed", "answer": "42"},
			})
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL, UserID: "user-1"})
		require.NoError(t, err)
		snap, err := api.LoadConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "42", snap.Answer)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Should reject a base URL without scheme", func(t *testing.T) {
		_, err := NewAPIClient(APIOptions{BaseURL: "localhost:5080"})
		assert.Error(t, err)
	})
}
