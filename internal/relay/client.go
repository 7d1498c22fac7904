package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const defaultClientTimeout = 60 * time.Second

// Client calls the relay server. One attempt per call, no retries; the
// caller's fallback turn stands in for retry.
type Client struct {
	http  *resty.Client
	model string
	log   zerolog.Logger
}

// ClientOption customizes a relay client.
type ClientOption func(*Client)

// WithModel sets the model forwarded with every request.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithSessionToken attaches a bearer token to every request.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) { c.http.SetAuthToken(token) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient builds a client against the relay's base URL.
func NewClient(baseURL string, log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(defaultClientTimeout).
			SetHeader("Content-Type", "application/json"),
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the turn history and returns the assistant reply. A 2xx
// body carrying both role and content is returned verbatim; any other 2xx
// body is coerced into an assistant turn over the raw response text.
func (c *Client) Complete(ctx context.Context, turns []Turn) (*Turn, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ChatRequest{Messages: turns, Model: c.model}).
		Post("/chat")
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s", errorText(resp.StatusCode(), resp.Body()))
	}

	var turn Turn
	if err := json.Unmarshal(resp.Body(), &turn); err == nil && turn.Role != "" && turn.Content != "" {
		return &turn, nil
	}
	c.log.Warn().Int("status", resp.StatusCode()).Msg("relay reply missing role/content, coercing")
	return &Turn{Role: "assistant", Content: string(resp.Body())}, nil
}

// errorText resolves a non-2xx body to a message: detail first, then error,
// then the bare status.
func errorText(status int, body []byte) string {
	var er struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Detail != "" {
			return er.Detail
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
