// Package factory builds the storage layer from configuration.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/config"
	"github.com/pozgpt/chat/internal/events"
	storepkg "github.com/pozgpt/chat/internal/store"
	"github.com/pozgpt/chat/internal/store/memstore"
	"github.com/pozgpt/chat/internal/store/notify"
	storepg "github.com/pozgpt/chat/internal/store/postgres"
	storesqlite "github.com/pozgpt/chat/internal/store/sqlite"
)

const connectMaxElapsed = 30 * time.Second

// NewStore returns a store.Store for the configured driver. Postgres opens
// with a bounded exponential-backoff retry so the service survives a database
// that comes up slightly later.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return newPostgres(ctx, cfg, log)
	case "sqlite":
		st, err := storesqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewNotifyingStore wraps the configured store so every mutation publishes a
// change event on the returned bus.
func NewNotifyingStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, *events.Bus, error) {
	inner, err := NewStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	bus := events.NewBus(events.DefaultBuffer)
	return notify.New(inner, bus), bus, nil
}

func newPostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("CHAT_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectMaxElapsed

	st, err := backoff.RetryWithData(func() (storepkg.Store, error) {
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Warn().Err(err).Msg("postgres not ready, retrying")
			return nil, err
		}
		if err := storepg.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, backoff.Permanent(fmt.Errorf("ensure schema: %w", err))
		}
		return storepg.NewWithDB(db), nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info().Msg("postgres store ready")
	return st, nil
}
