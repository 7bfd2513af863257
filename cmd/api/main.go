package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/partsplit-prereg/cmd/mainconfig"
	"github.com/wolfman30/partsplit-prereg/internal/api/router"
	"github.com/wolfman30/partsplit-prereg/internal/app/bootstrap"
	appconfig "github.com/wolfman30/partsplit-prereg/internal/config"
	"github.com/wolfman30/partsplit-prereg/internal/events"
	"github.com/wolfman30/partsplit-prereg/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/partsplit-prereg/internal/http/middleware"
	"github.com/wolfman30/partsplit-prereg/internal/notify"
	"github.com/wolfman30/partsplit-prereg/internal/observability/metrics"
	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting partsplit pre-registration API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	clients := bootstrap.Clients{}
	if cfg.ObjectBackend == appconfig.ObjectBackendS3 {
		clients.S3 = s3.NewFromConfig(awsCfg, mainconfig.S3Options(cfg))
	}
	if cfg.RecordBackend == appconfig.RecordBackendDynamoDB {
		clients.DynamoDB = dynamodb.NewFromConfig(awsCfg)
	}
	pool, err := bootstrap.BuildDBPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		clients.DB = pool
	}
	if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		clients.Redis = redisClient
	}

	stores, err := bootstrap.BuildStores(cfg, clients, logger)
	if err != nil {
		logger.Error("failed to configure registration stores", "error", err)
		os.Exit(1)
	}

	metricsHandler, registrationMetrics := setupMetrics()
	listeners, err := buildListeners(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure registration listeners", "error", err)
		os.Exit(1)
	}

	sessions := registration.NewSessions(
		bootstrap.FlowFactory(cfg, stores, listeners, registrationMetrics, logger),
		cfg.SessionIdleTimeout,
		logger,
	)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Registration:       handlers.NewRegistrationHandler(sessions, stores.Previews, cfg.UploadMaxBytes, logger),
		AdminRegistrations: handlers.NewAdminRegistrationsHandler(stores.Lister, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	}
	if stores.LocalObjects != nil {
		routerCfg.Uploads = handlers.NewUploadsHandler(stores.LocalObjects, logger)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UploadTimeout + cfg.PersistTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	sessions.CloseAll(shutdownCtx)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers registration metrics on a dedicated registry.
func setupMetrics() (http.Handler, *metrics.RegistrationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRegistrationMetrics(reg)
}

// buildListeners wires the post-submission side effects: the queue event and
// the confirmation email.
func buildListeners(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (registration.Listeners, error) {
	var listeners registration.Listeners

	if cfg.RegistrationQueueURL != "" {
		listeners = append(listeners, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.RegistrationQueueURL, logger))
	}

	var sesClient notify.SESClient
	if cfg.EmailProvider == "ses" {
		sesClient = sesv2.NewFromConfig(awsCfg)
	}
	sender, err := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	if err != nil {
		return nil, err
	}
	if sender != nil {
		listeners = append(listeners, notify.NewConfirmationMailer(sender, logger))
	}
	return listeners, nil
}
