package streamrouter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/compozy/statusstream/engine/infra/pubsub"
	"github.com/compozy/statusstream/engine/infra/server/appstate"
	authmw "github.com/compozy/statusstream/engine/infra/server/middleware/auth"
	"github.com/compozy/statusstream/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/statusstream/engine/infra/server/routes"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	engine   *gin.Engine
	state    *appstate.State
	repo     *conversation.MemoryRepository
	queue    *streaming.RedisQueue
	channels *streaming.ChannelRouter
	redis    *miniredis.Miniredis
	hub      *Hub
}

func newTestEnv(t *testing.T, emitLimit int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue, err := streaming.NewRedisQueue(client, &streaming.QueueOptions{Namespace: "test"})
	require.NoError(t, err)
	provider, err := pubsub.NewRedisProvider(client)
	require.NoError(t, err)
	channels, err := streaming.NewChannelRouter(provider, "test:")
	require.NoError(t, err)
	repo := conversation.NewMemoryRepository()
	limitCfg := ratelimit.DefaultConfig()
	limitCfg.EmitRate = ratelimit.RateConfig{Limit: emitLimit, Period: time.Minute}
	limiter, err := ratelimit.NewEmitLimiter(limitCfg, nil)
	require.NoError(t, err)
	emitter, err := streaming.NewEmitter(queue, channels, repo, streaming.WithRateLimiter(limiter))
	require.NoError(t, err)
	state, err := appstate.NewState(config.Default(), appstate.BaseDeps{
		Queue:         queue,
		Channels:      channels,
		Emitter:       emitter,
		Conversations: repo,
		Guard:         auth.NewGuard(repo),
	}, nil)
	require.NoError(t, err)
	hub := NewHub(HubConfig{PingInterval: time.Second, WriteTimeout: time.Second})
	t.Cleanup(hub.Close)
	r := gin.New()
	r.Use(appstate.StateMiddleware(state))
	r.Use(authmw.NewManager(nil, false).Middleware())
	Register(r.Group(routes.Base()), hub)
	return &testEnv{
		engine:   r,
		state:    state,
		repo:     repo,
		queue:    queue,
		channels: channels,
		redis:    mr,
		hub:      hub,
	}
}

func (e *testEnv) seed(t *testing.T, id, owner string) {
	t.Helper()
	require.NoError(t, e.repo.Create(t.Context(), &conversation.Conversation{ID: id, OwnerID: owner}))
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(authmw.DevUserHeader, user)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data
}

func problemCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	code, _ := out["code"].(string)
	return code
}
