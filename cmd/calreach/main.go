package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calreach/internal/config"
	"calreach/internal/constants"
	"calreach/internal/database"
	"calreach/internal/models"
	"calreach/internal/retry"
	"calreach/internal/scheduling"
	"calreach/internal/service"
	"calreach/internal/tracing"
	"calreach/pkg/calendar"
	calendartypes "calreach/pkg/calendar/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	configPath := flag.String("config", "config.json", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("calreach %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "calreach: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, verbose bool) error {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, parseErr := logrus.ParseLevel(cfg.LogLevel)
		if parseErr != nil {
			level = logrus.InfoLevel
		}
		if level > logrus.InfoLevel {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting calreach")

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    "calreach",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing, continuing without it")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingManager.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracing cleanly")
		}
	}()

	apiKey := os.Getenv("CALREACH_CALENDAR_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("CALREACH_CALENDAR_API_KEY environment variable is required")
	}

	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	if err := backoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path)
		if openErr != nil {
			logger.WithError(openErr).Warn("Database open failed, retrying")
		}
		return openErr
	}); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}()

	provider := calendar.NewClientWithLogger(calendartypes.ClientConfig{
		BaseURL:    cfg.Provider.APIBaseURL,
		APIKey:     apiKey,
		Timeout:    cfg.Provider.Timeout,
		RetryCount: cfg.Provider.RetryCount,
	}, logger)

	accounts := service.NewAccountTracker(db, cfg.Dispatch, logger)
	ledger := service.NewBookingLedger(db, logger)
	generator := scheduling.NewGenerator(logger)
	campaigns := service.NewCampaignService(db, db, generator, logger)
	responses := service.NewResponseTracker(db, logger)

	settings := models.SchedulingSettings{
		AllowDoubleBooking:       cfg.Scheduling.AllowDoubleBooking,
		MaxDoubleBookingsPerSlot: cfg.Scheduling.MaxDoubleBookings,
		FallbackPolicy:           models.FallbackPolicy(cfg.Scheduling.FallbackPolicy),
		EventDuration:            time.Duration(cfg.Scheduling.DefaultDurationMin) * time.Minute,
	}
	dispatcher := service.NewDispatcher(db, db, accounts, ledger, provider, cfg.Dispatch, cfg.Scheduling, settings, logger)

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, verbose)

	dispatcher.Start(ctxWithVerbose)
	defer dispatcher.Stop()

	retention := time.Duration(cfg.Scheduling.StaleCleanupHours) * time.Hour
	cleanup := service.NewScheduler("booking-cleanup", time.Hour, func(taskCtx context.Context) error {
		cleared, clearErr := ledger.ClearStale(taskCtx, retention)
		if clearErr != nil {
			return clearErr
		}
		if cleared > 0 {
			logger.WithField("cleared", cleared).Info("Removed stale bookings")
		}
		return nil
	}, logger)
	go cleanup.Start(ctxWithVerbose)
	defer cleanup.Stop()

	poller := service.NewResponsePoller(provider, responses, db, cfg.Polling, cfg.Retry, logger)
	if err := poller.Start(ctxWithVerbose); err != nil {
		logger.WithError(err).Warn("Failed to start response poller")
	} else {
		defer poller.Stop()
	}

	var stream *calendar.Stream
	if cfg.Provider.StreamEnabled && cfg.Provider.StreamURL != "" {
		stream = calendar.NewStream(cfg.Provider.StreamURL, apiKey, func(pushCtx context.Context, payload []byte) {
			if procErr := responses.ProcessWebhookEvent(pushCtx, payload); procErr != nil {
				logger.WithError(procErr).Warn("Failed to process pushed event")
			}
		}, logger)
		if err := stream.Start(ctxWithVerbose); err != nil {
			logger.WithError(err).Warn("Failed to start provider push stream")
		} else {
			defer stream.Stop()
		}
	}

	watcher := config.NewConfigWatcher(configPath, logger)
	if err := watcher.Start(ctxWithVerbose); err != nil {
		logger.WithError(err).Warn("Failed to start config watcher")
	}
	watcher.OnConfigChange(func(newCfg *models.Config) {
		dispatcher.SetActive(newCfg.Dispatch.StartActive)
	})

	server := NewServer(cfg, campaigns, dispatcher, accounts, responses, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if srvErr := server.Start(); srvErr != nil && srvErr != http.ErrServerClosed {
			serverErrCh <- srvErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case srvErr := <-serverErrCh:
		logger.WithError(srvErr).Error("Server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down server gracefully")
	}

	logger.Info("calreach stopped")
	return nil
}
