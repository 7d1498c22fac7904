package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClientComplete_VerbatimReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "the-model", req.Model)
		require.Len(t, req.Messages, 1)
		_ = json.NewEncoder(w).Encode(Turn{Role: "assistant", Content: "fine, thanks"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop(), WithModel("the-model"))
	turn, err := c.Complete(context.Background(), []Turn{{Role: "user", Content: "how are you"}})
	require.NoError(t, err)
	require.Equal(t, "assistant", turn.Role)
	require.Equal(t, "fine, thanks", turn.Content)
}

func TestClientComplete_CoercesShapelessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"just a string"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	turn, err := c.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "assistant", turn.Role)
	require.Equal(t, `"just a string"`, turn.Content)
}

func TestClientComplete_ErrorTextPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail wins", http.StatusBadGateway, `{"error":"upstream error","detail":"rate limited"}`, "rate limited"},
		{"error next", http.StatusBadRequest, `{"error":"messages[] required"}`, "messages[] required"},
		{"bare status last", http.StatusInternalServerError, `not json`, "HTTP 500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, zerolog.Nop())
			_, err := c.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}})
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
