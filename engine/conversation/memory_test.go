package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	t.Run("Should create a pending conversation with a generated id", func(t *testing.T) {
		repo := NewMemoryRepository()
		conv := &Conversation{OwnerID: "alice", Title: "Quarterly research"}
		require.NoError(t, repo.Create(t.Context(), conv))
		assert.NotEmpty(t, conv.ID)
		got, err := repo.Get(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, "alice", got.OwnerID)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("Should reject a conversation without owner", func(t *testing.T) {
		repo := NewMemoryRepository()
		err := repo.Create(t.Context(), &Conversation{ID: "c-1"})
		require.Error(t, err)
	})

	t.Run("Should reject duplicate ids", func(t *testing.T) {
		repo := NewMemoryRepository()
		require.NoError(t, repo.Create(t.Context(), &Conversation{ID: "c-1", OwnerID: "alice"}))
		err := repo.Create(t.Context(), &Conversation{ID: "c-1", OwnerID: "bob"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("Should return ErrNotFound for unknown conversations", func(t *testing.T) {
		repo := NewMemoryRepository()
		_, err := repo.Get(t.Context(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.Owner(t.Context(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.SaveAnswer(t.Context(), "missing", "x"), ErrNotFound)
	})

	t.Run("Should save the answer and status", func(t *testing.T) {
		ctx := context.Background()
		repo := NewMemoryRepository()
		require.NoError(t, repo.Create(ctx, &Conversation{ID: "c-1", OwnerID: "alice"}))
		require.NoError(t, repo.SaveAnswer(ctx, "c-1", "full answer"))
		require.NoError(t, repo.MarkStatus(ctx, "c-1", StatusCompleted, ""))
		got, err := repo.Get(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "full answer", got.Answer)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.True(t, got.Status.IsTerminal())
	})

	t.Run("Should reject unknown statuses", func(t *testing.T) {
		repo := NewMemoryRepository()
		require.NoError(t, repo.Create(t.Context(), &Conversation{ID: "c-1", OwnerID: "alice"}))
		err := repo.MarkStatus(t.Context(), "c-1", Status("paused"), "")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}
