package relay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/auth"
	"github.com/pozgpt/chat/internal/recovery"
	"github.com/pozgpt/chat/internal/respond"
)

const defaultUpstreamTimeout = 90 * time.Second

// ServerOptions configures the relay server.
type ServerOptions struct {
	// UpstreamURL is the OpenAI-style chat completions endpoint.
	UpstreamURL string
	// UpstreamAPIKey is the server-held credential; it never reaches clients.
	UpstreamAPIKey string
	// Model is used when the request names none.
	Model string
	// JWTSecret, when set, requires a valid session bearer token on /chat.
	JWTSecret string
}

// Server forwards conversation turns to the upstream completion API.
type Server struct {
	opts ServerOptions
	http *resty.Client
	log  zerolog.Logger
}

// NewServer builds a relay server. The upstream client carries the bearer
// credential on every call.
func NewServer(opts ServerOptions, log zerolog.Logger) *Server {
	return &Server{
		opts: opts,
		http: resty.New().
			SetTimeout(defaultUpstreamTimeout).
			SetAuthToken(opts.UpstreamAPIKey).
			SetHeader("Content-Type", "application/json"),
		log: log,
	}
}

// Router assembles the relay's HTTP surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recovery.Middleware)

	chat := http.Handler(http.HandlerFunc(s.handleChat))
	if s.opts.JWTSecret != "" {
		chat = s.requireSession(chat)
	}
	r.Handle("/chat", chat).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireSession rejects /chat calls without a valid session token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			respond.WriteError(w, http.StatusUnauthorized, "missing bearer token", "")
			return
		}
		if _, err := auth.VerifyToken(s.opts.JWTSecret, token); err != nil {
			respond.WriteError(w, http.StatusUnauthorized, "invalid session token", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// upstreamRequest is the OpenAI-style completions body.
type upstreamRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
}

type upstreamResponse struct {
	Choices []struct {
		Message Turn `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		s.count(http.StatusBadRequest)
		respond.WriteError(w, http.StatusBadRequest, "messages[] required", "")
		return
	}
	model := req.Model
	if model == "" {
		model = s.opts.Model
	}

	start := time.Now()
	resp, err := s.http.R().
		SetContext(r.Context()).
		SetBody(upstreamRequest{Model: model, Messages: req.Messages}).
		Post(s.opts.UpstreamURL)
	upstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Msg("upstream request failed")
		s.count(http.StatusBadGateway)
		respond.WriteError(w, http.StatusBadGateway, "upstream request failed", err.Error())
		return
	}

	var body upstreamResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if resp.IsError() {
		detail := strings.TrimSpace(string(resp.Body()))
		if decodeErr == nil && body.Error != nil && body.Error.Message != "" {
			detail = body.Error.Message
		}
		s.log.Warn().Int("status", resp.StatusCode()).Str("detail", detail).Msg("upstream returned error")
		s.count(resp.StatusCode())
		respond.WriteError(w, resp.StatusCode(), "upstream error", detail)
		return
	}
	if decodeErr != nil || len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		s.log.Warn().Msg("upstream response carried no content")
		s.count(http.StatusBadGateway)
		respond.WriteError(w, http.StatusBadGateway, "no content in upstream response", "")
		return
	}

	s.count(http.StatusOK)
	respond.WriteJSON(w, http.StatusOK, Turn{
		Role:    "assistant",
		Content: body.Choices[0].Message.Content,
	})
}

func (s *Server) count(status int) {
	chatRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}
