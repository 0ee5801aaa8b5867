package core_test

import (
	"sort"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Run("Should generate distinct parseable ids", func(t *testing.T) {
		seen := make(map[core.ID]struct{})
		for range 100 {
			id, err := core.NewID()
			require.NoError(t, err)
			require.False(t, id.IsZero())
			parsed, err := core.ParseID(id.String())
			require.NoError(t, err)
			assert.Equal(t, id, parsed)
			seen[id] = struct{}{}
		}
		assert.Len(t, seen, 100)
	})

	t.Run("Should sort ids minted in later seconds after earlier ones", func(t *testing.T) {
		first := core.MustNewID()
		time.Sleep(1100 * time.Millisecond)
		second := core.MustNewID()
		ids := []string{second.String(), first.String()}
		sort.Strings(ids)
		assert.Equal(t, []string{first.String(), second.String()}, ids)
	})
}

func TestParseID(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "Should reject an empty id", input: "", wantErr: "empty ID"},
		{name: "Should reject a conversation style id", input: "conv-123", wantErr: "invalid ID format"},
		{name: "Should reject punctuation", input: "!@#$%^&*()", wantErr: "invalid ID format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := core.ParseID(tc.input)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.True(t, id.IsZero())
		})
	}
}
