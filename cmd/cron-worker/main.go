package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/Lavavarshney/Library-Management-System/api/routes"
	"github.com/Lavavarshney/Library-Management-System/internal/catalog"
	"github.com/Lavavarshney/Library-Management-System/internal/cron"
	"github.com/Lavavarshney/Library-Management-System/internal/fines"
	"github.com/Lavavarshney/Library-Management-System/internal/loans"
	"github.com/Lavavarshney/Library-Management-System/internal/notifications"
	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/instance"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
	"github.com/Lavavarshney/Library-Management-System/pkg/migrate"
	"github.com/Lavavarshney/Library-Management-System/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	if cfg.Notifications.Transport == config.TransportMemory {
		logg.Warn(ctx, "memory transport selected; notices from this worker only reach streams in this process")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	} else {
		logg.Warn(ctx, "redis not configured; the scan lock is process local")
	}

	pool, err := dbClient.SQL()
	if err != nil {
		return err
	}
	registry := metrics.NewRegistry(pool)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	systemClock := clock.NewSystem()
	loanService, err := loans.NewService(loans.ServiceParams{
		Repo:       loans.NewRepository(dbClient.DB()),
		Catalog:    catalogService,
		Locker:     loans.NewLocalLocker(cfg.Loans.LockTimeout),
		Policy:     fines.NewPolicy(cfg.Loans.FineUnitRate, cfg.Loans.FineCap),
		Clock:      systemClock,
		Logger:     logg,
		LoanPeriod: time.Duration(cfg.Loans.DefaultLoanDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	notifier, err := notifications.Setup(ctx, notifications.SetupParams{
		Config:  cfg.Notifications,
		GCP:     cfg.GCP,
		PubSub:  cfg.PubSub,
		Redis:   redisClient,
		Logger:  logg,
		Metrics: metrics.NewDispatcherMetrics(registry),
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, notifier.Close()) }()

	scanner, err := cron.NewOverdueScanner(cron.ScannerParams{
		Logger:      logg,
		Loans:       loanService,
		Publisher:   notifier.Dispatcher,
		Clock:       systemClock,
		Interval:    cfg.Loans.ScanInterval(),
		Redis:       redisClient,
		CronMetrics: metrics.NewCronJobMetrics(registry),
		ScanMetrics: metrics.NewScannerMetrics(registry),
	})
	if err != nil {
		return err
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewWorkerRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			PubSub:   notifier.PubSub,
			Gatherer: registry,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err = multierr.Append(err, opsServer.Shutdown(shutdownCtx))
	}()

	return scanner.Run(ctx)
}
