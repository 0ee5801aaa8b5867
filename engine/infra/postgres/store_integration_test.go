package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore starts a disposable PostgreSQL container and migrates it.
func newTestStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("statusstream"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(terminateCtx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, dsn))
	store, err := NewStore(ctx, &Config{ConnString: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestConversationRepo_Postgres(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(ctx, t)
	repo := NewConversationRepo(store.Pool())

	t.Run("Should round-trip a conversation and its updates", func(t *testing.T) {
		conv := &conversation.Conversation{ID: "conv-pg-1", OwnerID: "alice", Title: "Queues"}
		require.NoError(t, repo.Create(ctx, conv))

		owner, err := repo.Owner(ctx, "conv-pg-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", owner)

		require.NoError(t, repo.SaveAnswer(ctx, "conv-pg-1", "final answer"))
		require.NoError(t, repo.MarkStatus(ctx, "conv-pg-1", conversation.StatusCompleted, ""))
		got, err := repo.Get(ctx, "conv-pg-1")
		require.NoError(t, err)
		assert.Equal(t, "final answer", got.Answer)
		assert.Equal(t, conversation.StatusCompleted, got.Status)
	})
	t.Run("Should report duplicates and unknown ids", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &conversation.Conversation{ID: "conv-pg-2", OwnerID: "bob"}))
		err := repo.Create(ctx, &conversation.Conversation{ID: "conv-pg-2", OwnerID: "bob"})
		assert.ErrorIs(t, err, conversation.ErrAlreadyExists)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, conversation.ErrNotFound)
		assert.ErrorIs(t, repo.SaveAnswer(ctx, "missing", "x"), conversation.ErrNotFound)
	})
	t.Run("Should answer health checks", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
