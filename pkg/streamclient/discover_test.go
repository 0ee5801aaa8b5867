package streamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverConversationID(t *testing.T) {
	t.Run("Should read the meta tag", func(t *testing.T) {
		page := `<html><head><meta name="conversation-id" content="conv-7"></head>
			<body><div data-conversation-id="other"></div></body></html>`
		id, err := DiscoverConversationID(strings.NewReader(page))
		require.NoError(t, err)
		assert.Equal(t, "conv-7", id)
	})

	t.Run("Should fall back to the data attribute", func(t *testing.T) {
		page := `<html><body><section><div class="chat" data-conversation-id=" conv-9 "></div></section></body></html>`
		id, err := DiscoverConversationID(strings.NewReader(page))
		require.NoError(t, err)
		assert.Equal(t, "conv-9", id)
	})

	t.Run("Should report pages without a conversation", func(t *testing.T) {
		_, err := DiscoverConversationID(strings.NewReader(`<html><meta name="description" content="x"></html>`))
		assert.ErrorIs(t, err, ErrNoConversation)
	})

	t.Run("Should fetch and inspect a page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><meta name="conversation-id" content="conv-page"></head></html>`))
		}))
		defer srv.Close()
		api, err := NewAPIClient(APIOptions{BaseURL: srv.URL})
		require.NoError(t, err)
		id, err := api.DiscoverConversation(context.Background(), srv.URL+"/chat/1")
		require.NoError(t, err)
		assert.Equal(t, "conv-page", id)
	})
}
