package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/apiclient"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/checkout"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/handlers"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/localstore"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/config"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/observability"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/secrets"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/session"
	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/storefront"
)

const sweepInterval = time.Minute

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	levelName, _ := config.Lookup("LOG_LEVEL")
	baseLogger, err := observability.NewLogger(levelName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	projectID, err := config.Lookup("STOREFRONT_SECRETS_PROJECT_ID")
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}
	fallbackPath, _ := config.Lookup("STOREFRONT_SECRETS_FALLBACK_FILE")
	secretOpts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
	}
	if fallbackPath != "" {
		secretOpts = append(secretOpts, secrets.WithFallbackFile(fallbackPath))
	}
	fetcher, err := secrets.NewFetcher(ctx, secretOpts...)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	events := observability.EventLogger(logger)

	local, err := localstore.OpenSQLite(ctx, cfg.Storage.LocalStoreDSN)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := local.Close(); err != nil {
			logger.Warn("local store close error", zap.Error(err))
		}
	}()

	cartCache, closeCache := newCartCache(ctx, logger, cfg.Storage)
	defer closeCache()

	api, err := apiclient.New(apiclient.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: cfg.API.BreakerCooldown,
		Logger:          logger.Named("apiclient"),
	})
	if err != nil {
		logger.Fatal("failed to initialise api client", zap.Error(err))
	}

	var processor checkout.Processor
	switch cfg.Payment.Provider {
	case config.PaymentProviderStripe:
		stripeProcessor, err := checkout.NewStripeProcessor(checkout.StripeConfig{
			APIKey: cfg.Payment.StripeAPIKey,
			Logger: events,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe processor", zap.Error(err))
		}
		processor = stripeProcessor
	default:
		apiProcessor, err := checkout.NewAPIProcessor(api)
		if err != nil {
			logger.Fatal("failed to initialise payment processor", zap.Error(err))
		}
		processor = apiProcessor
	}

	registry, err := storefront.NewRegistry(storefront.Deps{
		API:        api,
		LocalStore: local,
		CartCache:  cartCache,
		Processor:  processor,
		Fees: checkout.Fees{
			Delivery: cfg.Pricing.DeliveryFee,
			Platform: cfg.Pricing.PlatformFee,
			TaxRate:  cfg.Pricing.TaxRate,
			Currency: cfg.Pricing.Currency,
		},
		ShopID: cfg.Shop.ID,
		Restaurant: domain.RestaurantInfo{
			Name:    cfg.Shop.RestaurantName,
			Phone:   cfg.Shop.RestaurantPhone,
			Address: cfg.Shop.RestaurantAddress,
		},
		PaymentTimeout: cfg.Payment.Timeout,
		IdleTimeout:    cfg.Session.IdleTimeout,
		Logger:         events,
	})
	if err != nil {
		logger.Fatal("failed to initialise session registry", zap.Error(err))
	}
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go registry.Run(sweepCtx, sweepInterval)

	cookies, err := session.NewManager(session.Config{
		HashKey:  []byte(cfg.Session.HashKey),
		BlockKey: []byte(cfg.Session.BlockKey),
		Secure:   cfg.Session.Secure,
	})
	if err != nil {
		logger.Fatal("failed to initialise session cookies", zap.Error(err))
	}

	storefrontHandlers, err := handlers.NewStorefrontHandlers(handlers.StorefrontDeps{
		Cookies:  cookies,
		Registry: registry,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise storefront handlers", zap.Error(err))
	}

	version := strings.TrimSpace(os.Getenv("STOREFRONT_VERSION"))
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(version),
		handlers.WithHealthClock(func() time.Time { return time.Now().UTC() }),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithTimeout(cfg.Server.WriteTimeout),
		handlers.WithSessionMiddleware(storefrontHandlers.Middleware()),
		handlers.WithStorefront(storefrontHandlers),
	)

	// WriteTimeout stays zero so the cart event stream is not cut; non-stream routes carry
	// their own timeout middleware.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening",
			zap.String("environment", cfg.Environment),
			zap.String("paymentProvider", cfg.Payment.Provider),
			zap.Time("startedAt", startedAt),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newCartCache returns the per-user cart cache: Redis when an address is configured, an
// in-process map otherwise.
func newCartCache(ctx context.Context, logger *zap.Logger, cfg config.StorageConfig) (localstore.Store, func()) {
	addr := strings.TrimSpace(cfg.CartCacheRedisAddr)
	if addr == "" {
		return localstore.NewMemory(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("cart cache redis unreachable; using in-process cache", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return localstore.NewMemory(), func() {}
	}
	return localstore.NewRedis(client, cfg.CartCacheTTL), func() {
		if err := client.Close(); err != nil {
			logger.Warn("cart cache close error", zap.Error(err))
		}
	}
}
