// Package relayservice wires the inference relay server: configuration,
// router, and a graceful-shutdown serving loop.
package relayservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/config"
	"github.com/pozgpt/chat/internal/logger"
	"github.com/pozgpt/chat/internal/relay"
)

// Run starts the relay HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("chat-relay")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if cfg.UpstreamAPIKey == "" {
		log.Warn().Msg("CHAT_UPSTREAM_API_KEY is empty, upstream calls will be rejected")
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("upstream_url", cfg.UpstreamURL).
		Str("model", cfg.Model).
		Bool("session_check", cfg.JWTSecret != "").
		Msg("Relay starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	srv := relay.NewServer(relay.ServerOptions{
		UpstreamURL:    cfg.UpstreamURL,
		UpstreamAPIKey: cfg.UpstreamAPIKey,
		Model:          cfg.Model,
		JWTSecret:      cfg.JWTSecret,
	}, log)

	server := newHTTPServer(ctx, cfg, srv.Router())
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Upstream completions can be slow; the write timeout must outlive them.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
