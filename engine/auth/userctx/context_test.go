package userctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContext(t *testing.T) {
	t.Run("Should round trip the user id", func(t *testing.T) {
		ctx := WithUserID(context.Background(), "user-1")
		id, ok := UserIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "user-1", id)
	})
	t.Run("Should report missing user", func(t *testing.T) {
		_, ok := UserIDFromContext(context.Background())
		assert.False(t, ok)
		_, err := MustUserID(context.Background())
		assert.ErrorIs(t, err, ErrNoUser)
	})
	t.Run("Should treat empty id as missing", func(t *testing.T) {
		_, ok := UserIDFromContext(WithUserID(context.Background(), ""))
		assert.False(t, ok)
	})
	t.Run("Should recognize the system identity", func(t *testing.T) {
		assert.True(t, IsSystem(SystemUser))
		assert.False(t, IsSystem("user-1"))
	})
}

func TestValidateUserID(t *testing.T) {
	t.Run("Should accept plain identifiers", func(t *testing.T) {
		for _, id := range []string{"user-1", SystemUser, "2bXk9z_abc"} {
			assert.NoError(t, ValidateUserID(id), id)
		}
	})
	t.Run("Should reject empty ids and reserved characters", func(t *testing.T) {
		for _, id := range []string{"", "u:interaction_x", "a b", "a\tb"} {
			assert.ErrorIs(t, ValidateUserID(id), ErrInvalidUser, id)
		}
	})
}
