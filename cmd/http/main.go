package main

import (
	"context"
	"log"

	"github.com/hilthontt/impostor/internal/application/lifecycle"
	"github.com/hilthontt/impostor/internal/infrastructure/configs"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
	"github.com/hilthontt/impostor/internal/infrastructure/profanity"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/hilthontt/impostor/internal/infrastructure/roomcode"
	"github.com/hilthontt/impostor/internal/infrastructure/tracing"
	"github.com/hilthontt/impostor/internal/infrastructure/ws"
	"github.com/hilthontt/impostor/internal/presentation/api"
	"github.com/hilthontt/impostor/internal/presentation/handler/health"
	"github.com/hilthontt/impostor/internal/presentation/handler/rooms"
	"github.com/hilthontt/impostor/internal/presentation/handler/streams"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
		Logger:   cfg.Logger.Logger,
	})
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to initialize the tracer", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer shutdownTracer(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	deps := &dependencies{logger: logger, checks: map[string]health.Check{}}
	defer deps.Close()

	store, err := deps.store(ctx, cfg.Store)
	if err != nil {
		logger.Fatal(logging.Postgres, logging.Startup, "failed to open the store", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	publisher, err := deps.publisher(cfg.RabbitMQ, m)
	if err != nil {
		logger.Fatal(logging.RabbitMQ, logging.Startup, "failed to connect to rabbitmq", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	audit, err := deps.auditLog(ctx, cfg.MongoDB)
	if err != nil {
		logger.Fatal(logging.MongoDB, logging.Startup, "failed to connect to mongodb", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	if err := deps.startAuditConsumer(ctx, audit); err != nil {
		logger.Fatal(logging.RabbitMQ, logging.Startup, "failed to start the audit consumer", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	limiter, err := deps.rateLimiter(ctx, cfg)
	if err != nil {
		logger.Fatal(logging.Redis, logging.Startup, "failed to set up the rate limiter", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	filter, err := profanity.NewProfanityFilter()
	if err != nil {
		logger.Fatal(logging.Validation, logging.Startup, "failed to load the profanity filter", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	hub := push.NewHub(cfg.Stream.PollInterval, m)

	manager := lifecycle.NewManager(
		store,
		roomcode.NewGenerator(),
		wordSource(cfg.Words),
		hub,
		logger,
		lifecycle.WithEventPublisher(publisher),
		lifecycle.WithMetrics(m),
	)

	roomHandler := rooms.NewHandler(manager, audit, filter, logger)
	streamHandler := streams.NewHandler(manager, ws.NewUpgrader(cfg.HTTP.AllowedOrigins), logger, streamOptions(cfg.Stream))
	healthHandler := health.NewHandler(deps.checks)

	app := api.NewApplication(*cfg, roomHandler, streamHandler, healthHandler, m, logger, limiter)
	// ends every open stream so shutdown is not held up by them
	app.RegisterOnShutdown(hub.Shutdown)

	logger.Info(logging.General, logging.Startup, "starting impostor", map[logging.ExtraKey]any{
		"store":       cfg.Store.Driver,
		"words":       cfg.Words.Source,
		"rateLimiter": cfg.RateLimiter.Backend,
		"rabbitmq":    cfg.RabbitMQ.Enabled,
		"mongodb":     cfg.MongoDB.Enabled,
	})

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		logger.Error(logging.General, logging.Shutdown, "server stopped with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}
