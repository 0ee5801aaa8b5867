package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *ConversationRepo {
	t.Helper()
	ctx := context.Background()
	s, err := NewStore(ctx, &Config{Path: filepath.Join(t.TempDir(), "conversations.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })
	require.NoError(t, s.Migrate(ctx))
	return NewConversationRepo(s.DB())
}

func TestConversationRepo(t *testing.T) {
	t.Run("Should create and read back a conversation", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := t.Context()
		conv := &conversation.Conversation{ID: "c-1", OwnerID: "alice", Title: "Market scan"}
		require.NoError(t, repo.Create(ctx, conv))

		got, err := repo.Get(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, "Market scan", got.Title)
		assert.Equal(t, conversation.StatusPending, got.Status)
		assert.WithinDuration(t, conv.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("Should reject duplicate ids", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Create(ctx, &conversation.Conversation{ID: "c-1", OwnerID: "alice"}))
		err := repo.Create(ctx, &conversation.Conversation{ID: "c-1", OwnerID: "bob"})
		assert.ErrorIs(t, err, conversation.ErrAlreadyExists)
	})

	t.Run("Should resolve the owner", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Create(ctx, &conversation.Conversation{ID: "c-1", OwnerID: "alice"}))
		owner, err := repo.Owner(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", owner)
	})

	t.Run("Should return ErrNotFound for unknown ids", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := t.Context()
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, conversation.ErrNotFound)
		_, err = repo.Owner(ctx, "missing")
		assert.ErrorIs(t, err, conversation.ErrNotFound)
		assert.ErrorIs(t, repo.SaveAnswer(ctx, "missing", "x"), conversation.ErrNotFound)
		assert.ErrorIs(t, repo.MarkStatus(ctx, "missing", conversation.StatusFailed, "x"), conversation.ErrNotFound)
	})

	t.Run("Should persist the answer before the completion status", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Create(ctx, &conversation.Conversation{ID: "c-1", OwnerID: "alice"}))
		require.NoError(t, repo.SaveAnswer(ctx, "c-1", "the complete answer"))
		require.NoError(t, repo.MarkStatus(ctx, "c-1", conversation.StatusCompleted, ""))

		got, err := repo.Get(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "the complete answer", got.Answer)
		assert.Equal(t, conversation.StatusCompleted, got.Status)
		assert.Empty(t, got.Error)
	})

	t.Run("Should reject unknown statuses before touching the database", func(t *testing.T) {
		repo := newTestRepo(t)
		err := repo.MarkStatus(t.Context(), "c-1", conversation.Status("paused"), "")
		assert.ErrorIs(t, err, conversation.ErrInvalidStatus)
	})
}
