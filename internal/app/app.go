package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage"
	"github.com/xenking/bistro/internal/storage/rediscache"
	"github.com/xenking/bistro/pkg/health"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers; *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Server is the fully wired HTTP application.
type Server struct {
	store   *storage.Store
	health  *health.Health
	handler http.Handler
	closers []func()
}

// New opens storage, wires the domain services and builds the router.
// Background workers stop when ctx is done.
func New(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) (_ *Server, rerr error) {
	s := &Server{}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	// Storage + migrations.
	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	s.store = store
	s.closers = append(s.closers, store.Close)

	// Health check service.
	s.health = health.New()
	s.health.AddReadinessCheck(store.Driver, 5*time.Second, health.PingCheck(store))
	s.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	s.health.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Optional Redis read-through cache in front of menu lookups.
	var menus menu.Repository = store.Menu
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		s.closers = append(s.closers, func() { _ = rdb.Close() })

		s.health.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		menus = rediscache.NewMenu(store.Menu, rdb, "bistro", cfg.Redis.TTL)
		lg.Info("Menu cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	// Domain services.
	orderService := order.NewService(menus, store.Orders,
		order.WithTracerProvider(m.TracerProvider()),
	)
	authenticator := auth.NewAuthenticator(store.Users)
	keyVerifier := auth.NewKeyVerifier(store.APIKeys, []byte(cfg.APIKeyPepper))

	// HTTP handlers.
	h, err := handler.New(orderService, menus, authenticator, keyVerifier,
		handler.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	// Router: middleware runs inside chi so route patterns are known when
	// requests are logged and labelled.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("bistro-api", m),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", s.health.LiveEndpoint)
	r.Get("/readyz", s.health.ReadyEndpoint)
	h.Register(r)
	s.handler = r

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases storage and cache connections in reverse order of opening.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	s, err := New(ctx, zctx.From(ctx), m, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	s.health.Start(ctx, 10*time.Second)
	s.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		s.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
