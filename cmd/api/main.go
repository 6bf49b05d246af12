package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"apphub/docs"
	"apphub/internal/config"
	"apphub/internal/database"
	"apphub/internal/database/migration"
	handlers "apphub/internal/http/handler"
	"apphub/internal/http/middleware"
	"apphub/internal/logging"
	"apphub/internal/otel"
	"apphub/internal/pathguard"
	"apphub/internal/repository/postgres"
	"apphub/internal/scanner"
	"apphub/internal/service"
	"apphub/internal/storage"
	"apphub/internal/upload"
)

// @title AppHub API
// @version 1.0
// @description Trust and content-ingestion core of the AppHub software portal.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	placer, err := upload.NewPlacer(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}
	uploadMetrics, err := upload.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register upload metrics: %w", err)
	}

	var sc scanner.Scanner = scanner.Disabled{}
	if cfg.Scanner.Enabled {
		sc = scanner.NewClamd(cfg.Scanner.Socket, cfg.Scanner.Timeout)
	} else {
		logger.Warn("malware_scanning_disabled")
	}
	pipeline := upload.NewPipeline(cfg.Upload, cfg.Storage, placer, sc, uploadMetrics, logger)

	// Optional S3-compatible mirror of accepted artifacts (MinIO-supported)
	var mirror storage.Storage
	if cfg.MinIO.Enabled() {
		if mirror, err = storage.NewMinIO(ctx, cfg.MinIO); err != nil {
			return fmt.Errorf("initialize object storage: %w", err)
		}
	}

	svc := service.NewPortalService(service.Options{
		Store:          postgres.NewStore(db),
		Pipeline:       pipeline,
		Guard:          pathguard.New(cfg.Storage.Root),
		Mirror:         mirror,
		InternalPrefix: cfg.Storage.InternalPrefix,
		Logger:         logger,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(handlers.NewAppConfig(cfg.Upload, logger))

	// Register global middleware
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger))
	app.Use(promMiddleware.Handler())

	// Swagger UI with dynamic host and scheme, registered ahead of the
	// identity-gated routes
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, handlers.Options{
		Service:  svc,
		CSRF:     cfg.CSRF,
		Gatherer: reg,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("server_listening", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
