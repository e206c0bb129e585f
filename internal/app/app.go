// Package app wires configuration into a ready-to-run dispatcher. It is
// shared by the notifier service and the quakectl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kafkaadapter "github.com/couchcryptid/quake-notifier/internal/adapter/kafka"
	"github.com/couchcryptid/quake-notifier/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-notifier/internal/adapter/mirror"
	redisstore "github.com/couchcryptid/quake-notifier/internal/adapter/redis"
	"github.com/couchcryptid/quake-notifier/internal/adapter/usgs"
	"github.com/couchcryptid/quake-notifier/internal/config"
	"github.com/couchcryptid/quake-notifier/internal/dispatch"
	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/couchcryptid/quake-notifier/internal/observability"
)

// App holds the wired components and the resources that need closing.
type App struct {
	Config     *config.Config
	Store      *redisstore.Store
	Feed       *usgs.Client
	Cards      *domain.CardBuilder
	Delivery   *mirror.Client
	Dispatcher *dispatch.Dispatcher

	writer *kafkaadapter.Writer
	logger *slog.Logger
}

// New connects to Redis and builds every adapter the dispatcher needs.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	store, err := redisstore.NewStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	// Map images are feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var maps domain.MapImageProvider
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		maps = mapbox.NewCachedMapProvider(client, cfg.MapboxCacheSize, metrics)
		metrics.MapEnabled.Set(1)
		logger.Info("mapbox map images enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		metrics.MapEnabled.Set(0)
		logger.Info("mapbox map images disabled")
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Feed:     usgs.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger),
		Cards:    domain.NewCardBuilder(maps),
		Delivery: mirror.NewClient(cfg.MirrorBaseURL, cfg.DeliveryTimeout, logger),
		logger:   logger,
	}

	deps := dispatch.Deps{
		Feed:        a.Feed,
		Directory:   store,
		Credentials: store,
		Delivery:    a.Delivery,
		Cards:       a.Cards,
		Watermark:   store,
	}
	if cfg.KafkaEnabled {
		a.writer = kafkaadapter.NewWriter(cfg, logger)
		deps.Recorder = a.writer
		logger.Info("kafka delivery audit enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	a.Dispatcher = dispatch.New(deps, dispatch.Options{
		Radius:          cfg.MatchRadius,
		InitialLookback: cfg.InitialLookback,
		Concurrency:     cfg.DispatchConcurrency,
		MapTimeout:      cfg.MapboxTimeout,
		DeliveryTimeout: cfg.DeliveryTimeout,
	}, logger, metrics)

	return a, nil
}

// Close releases the Kafka writer and the Redis pool.
func (a *App) Close() error {
	var errs []error
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka writer close: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	return errors.Join(errs...)
}
