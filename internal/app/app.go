// Package app wires configuration, storage, domain services, and the HTTP
// server into a running storefront API.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/altmarket/storefront/internal/cache"
	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/checkout"
	"github.com/altmarket/storefront/internal/domain/geo"
	"github.com/altmarket/storefront/internal/domain/order"
	"github.com/altmarket/storefront/internal/domain/pricing"
	"github.com/altmarket/storefront/internal/geoip"
	"github.com/altmarket/storefront/internal/handler"
	"github.com/altmarket/storefront/internal/repository"
	"github.com/altmarket/storefront/pkg/health"
	"github.com/altmarket/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	segmentRepo := repository.NewSegmentRepository(pool)
	countryRepo := repository.NewCountryRepository(pool)
	vatRateRepo := repository.NewVatRateRepository(pool)
	currencyRepo := repository.NewCurrencyRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	addressRepo := repository.NewAddressRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	paymentRepo := repository.NewPaymentMethodRepository(pool)
	shippingRepo := repository.NewShippingMethodRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	transactor := repository.NewTransactor(pool, cfg.LockTimeout)

	// Shared in-memory cache for idempotency keys and geo lookups.
	memCache := cache.NewMemory()
	memCache.StartJanitor(ctx, time.Minute)

	// Domain services.
	pricer := pricing.NewResolver(vatRateRepo, currencyRepo)
	geoResolver := geo.NewResolver(
		addressRepo,
		countryRepo,
		geoip.NewClient(cfg.GeoIP.BaseURL, cfg.GeoIP.Timeout),
		memCache,
		cfg.DefaultCountryID,
	)
	aggregator := cart.NewAggregator(cartRepo, productRepo, segmentRepo, pricer)
	validator := checkout.NewValidator(
		customerRepo,
		addressRepo,
		segmentRepo,
		productRepo,
		countryRepo,
		cartRepo,
		paymentRepo,
		shippingRepo,
		cfg.GuestSegmentID,
	)
	creator := order.NewCreator(validator, pricer, productRepo, segmentRepo, orderRepo, transactor, memCache)

	// HTTP facade.
	h := handler.NewHandler(
		handler.Config{GuestSegmentID: cfg.GuestSegmentID},
		pricer,
		productRepo,
		segmentRepo,
		customerRepo,
		geoResolver,
		aggregator,
		creator,
		orderRepo,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

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
				AllowHeaders:     []string{"Content-Type", "Idempotency-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
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
