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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
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
		logg.Warn(ctx, "redis not configured; idempotency keys and cross-process locks are disabled")
	}

	pool, err := dbClient.SQL()
	if err != nil {
		return err
	}
	registry := metrics.NewRegistry(pool)

	var locker loans.ItemLocker = loans.NewLocalLocker(cfg.Loans.LockTimeout)
	if cfg.Loans.Locker == config.LockerRedis {
		locker, err = loans.NewRedisLocker(redisClient, logg, cfg.Loans.LockTimeout, cfg.Loans.LockTTL)
		if err != nil {
			return err
		}
	}

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	systemClock := clock.NewSystem()
	loanService, err := loans.NewService(loans.ServiceParams{
		Repo:           loans.NewRepository(dbClient.DB()),
		Catalog:        catalogService,
		Locker:         locker,
		Policy:         fines.NewPolicy(cfg.Loans.FineUnitRate, cfg.Loans.FineCap),
		Clock:          systemClock,
		Logger:         logg,
		Metrics:        metrics.NewLedgerMetrics(registry),
		ItemRetries:    cfg.Loans.ItemUpdateRetries,
		RetryBaseDelay: cfg.Loans.RetryBaseDelay,
		LoanPeriod:     time.Duration(cfg.Loans.DefaultLoanDays) * 24 * time.Hour,
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
		Listen:  true,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, notifier.Close()) }()
	notifier.Start(ctx)

	if cfg.Loans.ScannerEmbedded {
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
		scanCtx, stopScan := context.WithCancel(ctx)
		scannerDone := make(chan struct{})
		go func() {
			defer close(scannerDone)
			if err := scanner.Run(scanCtx); err != nil {
				logg.Error(scanCtx, "embedded overdue scanner stopped", err)
			}
		}()
		// the scan cycle must finish before the db and transport close
		defer func() {
			stopScan()
			<-scannerDone
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			PubSub:     notifier.PubSub,
			Gatherer:   registry,
			Catalog:    catalogService,
			Loans:      loanService,
			Dispatcher: notifier.Dispatcher,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
	}
	// open notification streams never finish on their own
	server.RegisterOnShutdown(notifier.Dispatcher.Hub().Close)

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "port", port), "api listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logg.Info(shutdownCtx, "shutting down http server")
	return server.Shutdown(shutdownCtx)
}
