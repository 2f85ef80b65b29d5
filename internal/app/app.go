package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
	"github.com/xenking/pdv-backend/internal/domain/sale"
	"github.com/xenking/pdv-backend/internal/handler"
	"github.com/xenking/pdv-backend/internal/storage/cache"
	"github.com/xenking/pdv-backend/internal/storage/postgres"
	"github.com/xenking/pdv-backend/pkg/health"
	"github.com/xenking/pdv-backend/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Int64("default_customer_id", cfg.DefaultCustomerID),
		zap.Bool("catalog_cache", cfg.Redis.Addr != ""),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var (
		products  product.Repository  = postgres.NewProductRepository(pool)
		customers customer.Repository = postgres.NewCustomerRepository(pool)
		saleOpts                      = []sale.Option{
			sale.WithTracerProvider(m.TracerProvider()),
			sale.WithMeterProvider(m.MeterProvider()),
		}
	)

	// Catalog cache is optional; without Redis the repositories are
	// queried directly.
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		catalog := cache.NewCatalog(rdb, products, customers, cfg.Redis.CatalogTTL)
		products, customers = catalog.Products(), catalog.Customers()
		saleOpts = append(saleOpts, sale.WithCommitHook(catalog.CommitHook()))
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", catalog))
	}

	processor, err := sale.NewProcessor(
		postgres.NewSaleStore(pool),
		postgres.NewAuditLog(pool),
		sale.Config{
			DefaultCustomerID: cfg.DefaultCustomerID,
			AuditTimeout:      cfg.AuditTimeout,
		},
		saleOpts...,
	)
	if err != nil {
		return errors.Wrap(err, "create sale processor")
	}

	authenticator := auth.NewAuthenticator(postgres.NewOperatorRepository(pool), []byte(cfg.PDVCodePepper))
	h := handler.NewHandler(authenticator, products, customers, processor)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.TerminalOrIP,
			}),
			httpmiddleware.Instrument("pdv-api", routeFinder, m),
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
