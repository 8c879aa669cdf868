package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/catalog"
	"github.com/xenking/burger-ledger/internal/domain/order"
	"github.com/xenking/burger-ledger/internal/domain/payment"
	"github.com/xenking/burger-ledger/internal/handler"
	"github.com/xenking/burger-ledger/internal/lock"
	"github.com/xenking/burger-ledger/internal/lock/redislock"
	"github.com/xenking/burger-ledger/internal/storage/postgres"
	"github.com/xenking/burger-ledger/pkg/health"
	"github.com/xenking/burger-ledger/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("merchant", cfg.MerchantAccount),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc, err := health.New(
		health.WithLogger(lg.Named("health")),
		health.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create health service")
	}
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Per-order lock and rate limit counters: Redis when configured,
	// in-process otherwise.
	var (
		locker  order.Locker = lock.NewKeyed()
		limiter httpmiddleware.Limiter
	)
	if cfg.Lock.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		locker = redislock.New(rdb, redislock.Config{TTL: cfg.Lock.TTL})
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		lg.Info("Using Redis order locks and rate limits", zap.String("addr", cfg.Lock.RedisAddr))
	} else {
		memLimiter := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		memLimiter.StartCleanup(ctx)
		limiter = memLimiter
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Event sinks.
	sink, closeSinks, err := newEventSink(lg, cfg.Events)
	if err != nil {
		return errors.Wrap(err, "create event sinks")
	}
	defer closeSinks()

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Domain services.
	merchant := account.ID(cfg.MerchantAccount)
	ledger, err := order.NewLedger(merchant, catalog.Default(), orderRepo, locker, sink,
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}
	gate, err := payment.NewGate(merchant, orderRepo, locker, txRunner, accountRepo, sink,
		payment.WithMeterProvider(m.MeterProvider()),
		payment.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create payment gate")
	}

	// HTTP handlers.
	h := handler.NewHandler(ledger, gate)
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Router: health endpoints + API routes on one server.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Route("/api", func(r chi.Router) {
		h.Routes(r, security.Middleware)
	})
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderOrIP(handler.APIKeyHeader),
				Limiter: limiter,
			}),
			httpmiddleware.Instrument("burger-ledger", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
