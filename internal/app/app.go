package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/backend"
	"github.com/xenking/sticker-storefront/internal/couponindex"
	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/handler"
	"github.com/xenking/sticker-storefront/internal/storage/memory"
	"github.com/xenking/sticker-storefront/internal/storage/postgres"
	"github.com/xenking/sticker-storefront/pkg/health"
	"github.com/xenking/sticker-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("api_url", cfg.APIURL),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
	)

	srv, err := newServer(ctx, cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	defer srv.close()

	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// server is the assembled application without its listener.
type server struct {
	handler http.Handler
	health  *health.Health
	watcher *order.Watcher
	closers []func()
}

// close waits for background charge watches and releases storage. The
// watches stop once the context passed to newServer is done.
func (s *server) close() {
	s.watcher.Wait()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newServer(ctx context.Context, cfg *Config, tp trace.TracerProvider, mp metric.MeterProvider) (_ *server, rerr error) {
	lg := zctx.From(ctx)
	srv := &server{health: health.New()}
	defer func() {
		if rerr != nil {
			for i := len(srv.closers) - 1; i >= 0; i-- {
				srv.closers[i]()
			}
		}
	}()

	// Session state: PostgreSQL when configured, otherwise process memory.
	var (
		sessions order.SessionStore
		receipts order.ReceiptLog
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		srv.closers = append(srv.closers, pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		srv.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

		kv := postgres.NewKVStore(pool)
		sessions, receipts = kv, postgres.NewReceiptLog(pool)
		go purgeSessions(ctx, kv, cfg.PurgeInterval, cfg.CartTTL)
	} else {
		lg.Warn("No database configured, session state is kept in memory")
		sessions, receipts = memory.NewKVStore(), &memory.ReceiptLog{}
	}

	// Remote REST backend.
	api, err := backend.New(cfg.APIURL, backend.Options{
		Timeout:        cfg.RequestTimeout,
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create backend client")
	}
	srv.health.AddReadinessCheck("backend", 5*time.Second,
		health.HTTPCheck(&http.Client{Timeout: 5 * time.Second}, cfg.APIURL),
	)
	srv.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Domain services.
	var filter coupon.Filter
	if cfg.CouponIndex != "" {
		f, err := couponindex.Load(cfg.CouponIndex)
		if err != nil {
			return nil, errors.Wrap(err, "load coupon index")
		}
		lg.Info("Coupon index loaded", zap.String("path", cfg.CouponIndex), zap.Uint("bits", f.Cap()))
		filter = f
	}
	couponValidator := coupon.NewValidator(api, filter)

	orderService := order.NewService(order.Config{
		Shipping:     cfg.Shipping(),
		ExpiresIn:    cfg.PixExpiresIn,
		PollInterval: cfg.PixPollInterval,
	}, api, api, receipts)
	srv.watcher = order.NewWatcher(ctx, orderService, sessions,
		cart.Options{TTL: cfg.CartTTL}, cfg.PixExpiresIn,
	)

	// HTTP handlers.
	h, err := handler.New(handler.Config{
		Shipping: cfg.Shipping(),
		CartTTL:  cfg.CartTTL,
		Session: handler.SessionConfig{
			CookieName: cfg.Session.CookieName,
			MaxAge:     cfg.Session.MaxAge,
			Secure:     cfg.Session.Secure,
		},
	}, api, couponValidator, orderService, sessions, srv.watcher, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", srv.health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", srv.health.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	srv.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.CookieOrIP(cfg.Session.CookieName),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("storefront", routeFinder, tp, mp),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
	return srv, nil
}

// purgeSessions deletes session state untouched for longer than ttl, every
// interval, until ctx is done. A non-positive interval disables it.
func purgeSessions(ctx context.Context, kv *postgres.KVStore, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	lg := zctx.From(ctx).Named("purge")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := kv.Purge(ctx, now.Add(-ttl))
			if err != nil {
				if ctx.Err() == nil {
					lg.Error("Purge session state", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				lg.Info("Purged session state", zap.Int64("rows", n))
			}
		}
	}
}
