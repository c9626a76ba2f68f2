package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velora-labs/storefront-api/internal/api"
	"github.com/velora-labs/storefront-api/internal/cache"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/events"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/payment"
	"github.com/velora-labs/storefront-api/internal/services"
	"github.com/velora-labs/storefront-api/pkg/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "storefront-api").Logger()

	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down meter provider")
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if schemaSQL, err := os.ReadFile("schema.sql"); err != nil {
		log.Warn().Err(err).Msg("could not read schema.sql, assuming schema already exists")
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		log.Warn().Err(err).Msg("could not initialize schema, assuming schema already exists")
	}

	// Optional infrastructure: a missing address leaves the nil-safe client
	// disabled rather than failing startup.
	var productCache *cache.ProductCache
	if cfg.RedisAddr != "" {
		productCache, err = cache.NewProductCache(cfg.RedisAddr, cfg.RedisPassword, appMetrics)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, product cache disabled")
			productCache = nil
		}
	}
	defer productCache.Close()

	var publisher *events.Publisher
	if cfg.KafkaBrokers != "" {
		publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	}
	defer publisher.Close()

	gateway := payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.CheckoutSessionTTL)

	productService := services.NewProductService(database, appMetrics, productCache)
	categoryService := services.NewCategoryService(database, appMetrics)
	cartService := services.NewCartService(database, appMetrics, productService)
	wishlistService := services.NewWishlistService(database, appMetrics, productService)
	orderService := services.NewOrderService(database, appMetrics, productService, cartService, gateway, publisher, cfg.Currency)
	fulfillmentService := services.NewFulfillmentService(database, appMetrics, gateway, publisher, productCache, orderService)
	reviewService := services.NewReviewService(database, appMetrics)
	settingsService := services.NewSettingsService(database, appMetrics)

	go cartService.MonitorActiveCarts(ctx)
	go fulfillmentService.RunReconciliation(ctx, cfg.ReconcileInterval, cfg.CheckoutSessionTTL+cfg.ReconcileGrace)

	app := api.NewApp(cfg, database, appMetrics,
		productService, categoryService, cartService, wishlistService,
		orderService, fulfillmentService, reviewService, settingsService)

	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.AppPort).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
