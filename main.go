// Package main provides the entry point for the darzi-notify order notification service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/darzihub/darzi-notify/app/handlers"
	"github.com/darzihub/darzi-notify/app/router"
	"github.com/darzihub/darzi-notify/app/scheduler"
	"github.com/darzihub/darzi-notify/app/services"
	businessflow "github.com/darzihub/darzi-notify/business_flow"
	"github.com/darzihub/darzi-notify/config"
	"github.com/darzihub/darzi-notify/models"
	"github.com/darzihub/darzi-notify/repository"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.Println("Starting darzi-notify...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initializeLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	events := repository.NewNotificationEventRepository(db)
	counters := repository.NewReminderCounterRepository(db)
	reports := repository.NewPollReportRepository(db)

	// Transport
	transport, closeTransport, err := initializeTransport(ctx, cfg.WhatsApp, logger)
	if err != nil {
		log.Fatalf("Failed to initialize transport: %v", err)
	}

	// Row source
	source, err := initializeSource(ctx, cfg.Sheets)
	if err != nil {
		log.Fatalf("Failed to initialize row source: %v", err)
	}

	// Circuit breaker store
	suspensions, err := initializeSuspensionStore(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to initialize suspension store: %v", err)
	}

	renderer, err := services.NewRenderer("")
	if err != nil {
		log.Fatalf("Failed to parse message templates: %v", err)
	}

	metrics := businessflow.NewDispatchMetrics(prometheus.DefaultRegisterer)
	breaker := businessflow.NewCircuitBreaker(suspensions, cfg.Policy)
	classifier := businessflow.NewClassifier(events, cfg.Policy)
	flow := businessflow.NewDispatchFlow(
		db, events, counters, classifier, breaker, transport, metrics, logger,
		cfg.Scheduler,
		func(c businessflow.Candidate) string {
			body, rerr := renderer.Render(models.MessageTypeFallback, services.TemplateData{
				Name:    c.Name,
				OrderID: c.OrderID,
			})
			if rerr != nil {
				return ""
			}
			return body
		},
	)

	mapper := scheduler.NewMapper(renderer, counters, cfg.Scheduler, logger)
	poller := scheduler.NewPollScheduler(flow, mapper, source, reports, events, metrics, cfg.Scheduler, cfg.Policy, logger)
	stopPoller := poller.Start(ctx)

	adminHandler := handlers.NewAdminHandler(flow, poller, reports, transport)
	r := router.NewFiberRouter(adminHandler, cfg)
	r.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := r.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	stopPoller()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := r.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if closeTransport != nil {
		if err := closeTransport(); err != nil {
			log.Printf("Error closing transport: %v", err)
		}
	}

	log.Println("Server stopped")
}

// initializeLogger writes to a rotating file and stdout.
func initializeLogger(cfg config.LoggingConfig) (*log.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return log.New(io.MultiWriter(rotating, os.Stdout), "[notify] ", log.LstdFlags|log.Lmsgprefix), nil
}

// initializeDatabase opens the configured store. TranslateError lets the
// repositories detect unique-index violations portably across drivers.
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case "sqlite":
		if mkErr := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", mkErr)
		}
		db, err = gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.Path)), gormCfg)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func initializeTransport(ctx context.Context, cfg config.WhatsAppConfig, logger *log.Logger) (businessflow.Transport, func() error, error) {
	switch cfg.Provider {
	case "whatsmeow":
		if err := os.MkdirAll(filepath.Dir(cfg.SessionDBPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		client, err := services.NewWhatsAppClient(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case "mock":
		return services.NewMockTransport(logger), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported whatsapp provider %q", cfg.Provider)
}

func initializeSource(ctx context.Context, cfg config.SheetsConfig) (services.RowSource, error) {
	switch cfg.Provider {
	case "google":
		return services.NewGoogleSheetsSource(ctx, cfg)
	case "excel":
		return services.NewExcelSource(cfg), nil
	case "mock":
		return services.NewMockRowSource(), nil
	}
	return nil, fmt.Errorf("unsupported sheets provider %q", cfg.Provider)
}

func initializeSuspensionStore(ctx context.Context, cfg config.CacheConfig) (businessflow.SuspensionStore, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return businessflow.NewMemorySuspensionStore(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.DB = cfg.RedisDB
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return businessflow.NewRedisSuspensionStore(client, cfg.RedisPrefix), nil
}
