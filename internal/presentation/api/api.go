package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/impostor/internal/infrastructure/configs"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
	"github.com/hilthontt/impostor/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/impostor/internal/presentation/handler/health"
	roomHandler "github.com/hilthontt/impostor/internal/presentation/handler/rooms"
	streamHandler "github.com/hilthontt/impostor/internal/presentation/handler/streams"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	APIPrefix       = "/impostor/v1"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Application struct {
	config        configs.Config
	roomHandler   *roomHandler.Handler
	streamHandler *streamHandler.Handler
	healthHandler *healthHandler.Handler
	metrics       *metrics.Metrics
	logger        logging.Logger
	ratelimiter   ratelimiter.Limiter

	onShutdown []func()
}

func NewApplication(
	config configs.Config,
	roomHandler *roomHandler.Handler,
	streamHandler *streamHandler.Handler,
	healthHandler *healthHandler.Handler,
	metrics *metrics.Metrics,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:        config,
		roomHandler:   roomHandler,
		streamHandler: streamHandler,
		healthHandler: healthHandler,
		metrics:       metrics,
		logger:        logger,
		ratelimiter:   ratelimiter,
	}
}

// RegisterOnShutdown adds fn to run when graceful shutdown begins. Hijacked and streaming
// connections are not tracked by the server, so this is how they get told to finish.
func (app *Application) RegisterOnShutdown(fn func()) {
	app.onShutdown = append(app.onShutdown, fn)
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(app.loggerMiddleware)
	r.Use(app.prometheusMiddleware)
	r.Use(app.enableCors)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(app.rateLimiterMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Route("/room", func(r chi.Router) {
				r.Post("/", app.roomHandler.CreateRoomHandler)
				r.Get("/", app.roomHandler.ListRoomsHandler)
				r.Get("/{roomId}", app.roomHandler.GetRoomHandler)
				r.Get("/{roomId}/audit", app.roomHandler.GetAuditLogHandler)
			})

			r.Route("/user", func(r chi.Router) {
				r.Post("/", app.roomHandler.JoinRoomHandler)
				r.Get("/", app.roomHandler.ListUsersHandler)
			})

			r.Post("/start", app.roomHandler.StartHandler)
			r.Post("/end", app.roomHandler.EndHandler)
			r.Post("/close", app.roomHandler.CloseHandler)
		})

		// long-lived; no request timeout
		r.Get("/sse/owner/{ownerId}", app.streamHandler.OwnerSSEHandler)
		r.Get("/sse/player/{userId}", app.streamHandler.PlayerSSEHandler)
		r.Get("/ws/owner/{ownerId}", app.streamHandler.OwnerWSHandler)
		r.Get("/ws/player/{userId}", app.streamHandler.PlayerWSHandler)
	})

	r.Get("/health", app.healthHandler.GetHealth)
	r.Get("/healthz", app.healthHandler.GetHealth)
	r.Get("/live", app.healthHandler.GetHealth)
	r.Get("/ready", app.healthHandler.GetReady)
	r.Handle("/metrics", app.metrics.Handler())

	return otelhttp.NewHandler(r, "impostor",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:    app.config.Addr(),
		Handler: mux,
		// Streams stay open indefinitely, so only the header read is bounded.
		ReadHeaderTimeout: app.config.HTTP.ReadTimeout,
		IdleTimeout:       app.config.HTTP.IdleTimeout,
	}

	srv.RegisterOnShutdown(app.healthHandler.MarkUnhealthy)
	for _, fn := range app.onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"signal": s.String(),
		})

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	return nil
}
