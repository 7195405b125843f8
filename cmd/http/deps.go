package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/configs"
	"github.com/hilthontt/impostor/internal/infrastructure/events"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/messaging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
	"github.com/hilthontt/impostor/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/impostor/internal/infrastructure/repository"
	"github.com/hilthontt/impostor/internal/infrastructure/repository/migrations"
	"github.com/hilthontt/impostor/internal/infrastructure/wordsource"
	"github.com/hilthontt/impostor/internal/infrastructure/ws"
	"github.com/hilthontt/impostor/internal/persistence/db"
	auditRepository "github.com/hilthontt/impostor/internal/persistence/repository"
	"github.com/hilthontt/impostor/internal/presentation/handler/health"
	"github.com/hilthontt/impostor/internal/presentation/handler/streams"
)

// dependencies tracks the external connections opened at startup so they can be health
// checked and closed in reverse order.
type dependencies struct {
	logger   logging.Logger
	checks   map[string]health.Check
	closers  []func()
	rabbitmq *messaging.RabbitMQ
}

func (d *dependencies) onClose(fn func()) {
	d.closers = append(d.closers, fn)
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *dependencies) store(ctx context.Context, cfg configs.StoreConfig) (domain.Store, error) {
	if cfg.Driver != "postgres" {
		return repository.NewMemoryStore(), nil
	}

	if cfg.Migrate {
		migrator, err := migrations.New(cfg.PostgresDSN, d.logger)
		if err != nil {
			return nil, err
		}
		err = migrator.Up()
		_ = migrator.Close()
		if err != nil {
			return nil, err
		}
	}

	pool, err := repository.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	d.onClose(pool.Close)
	d.checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }

	return repository.NewPostgresStore(pool), nil
}

func (d *dependencies) publisher(cfg configs.RabbitMQConfig, m *metrics.Metrics) (domain.EventPublisher, error) {
	if !cfg.Enabled {
		return events.NewNopPublisher(), nil
	}

	rabbitmq, err := messaging.NewRabbitMQ(cfg.URI)
	if err != nil {
		return nil, err
	}
	d.rabbitmq = rabbitmq
	d.onClose(rabbitmq.Close)
	d.checks["rabbitmq"] = func(context.Context) error {
		if rabbitmq.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}

	d.logger.Info(logging.RabbitMQ, logging.Startup, "connected to rabbitmq", nil)
	return events.NewRoomPublisher(rabbitmq, m), nil
}

// auditLog returns nil when the audit log is disabled.
func (d *dependencies) auditLog(ctx context.Context, cfg configs.MongoDBConfig) (domain.RoomAuditRepository, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	mongoCfg := db.NewMongoConfig(cfg)
	client, err := db.NewMongoClient(ctx, mongoCfg)
	if err != nil {
		return nil, err
	}
	d.onClose(func() { _ = db.DisconnectMongo(context.Background(), client) })
	d.checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

	audit := auditRepository.NewRoomAuditLogRepository(db.GetDatabase(client, mongoCfg))
	if err := audit.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create audit indexes: %w", err)
	}

	return audit, nil
}

// startAuditConsumer feeds published room events into the audit log. It needs both the
// broker and the audit store.
func (d *dependencies) startAuditConsumer(ctx context.Context, audit domain.RoomAuditRepository) error {
	if audit == nil {
		return nil
	}
	if d.rabbitmq == nil {
		d.logger.Warn(logging.MongoDB, logging.Startup, "audit log enabled without rabbitmq; nothing will be recorded", nil)
		return nil
	}

	return events.NewRoomConsumer(d.rabbitmq, audit, d.logger).Listen(ctx)
}

func (d *dependencies) rateLimiter(ctx context.Context, cfg *configs.Config) (ratelimiter.Limiter, error) {
	var cache ratelimiter.GetterSetter

	switch cfg.RateLimiter.Backend {
	case "redis":
		client, err := ratelimiter.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		d.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		cache = ratelimiter.NewRedis(client)
	default:
		cache = ratelimiter.NewInMemory()
	}
	d.onClose(func() { _ = cache.Close() })

	return ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Cache:            cache,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	}), nil
}

func wordSource(cfg configs.WordsConfig) domain.WordSource {
	if cfg.Source == "http" {
		return wordsource.NewHTTPSource(cfg.URL, cfg.Timeout)
	}
	return wordsource.NewStaticSource()
}

func streamOptions(cfg configs.StreamConfig) streams.Options {
	return streams.Options{
		KeepAlive: cfg.KeepAlive,
		WebSocket: ws.Options{
			WriteTimeout: cfg.WriteTimeout,
			PongWait:     cfg.PongWait,
		},
	}
}
