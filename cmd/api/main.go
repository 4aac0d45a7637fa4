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

	"github.com/spf13/pflag"

	"github.com/dvloznov/agro-tracker/internal/api"
	"github.com/dvloznov/agro-tracker/internal/app"
	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/agro-tracker/internal/jobs/sqlitestore"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

func main() {
	fs := pflag.NewFlagSet("agro-api", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "Configuration file path")
	fs.String("addr", "", "HTTP listen address")
	fs.Int("workers", 0, "Number of job workers")
	fs.String("queue-store", "", "Job store: memory or sqlite")
	fs.String("ledger-dir", "", "Ledger directory")
	fs.String("inbox-dir", "", "Inbox directory")
	fs.Bool("lock", false, "Hold the ledger directory lock while appending")
	fs.String("log-level", "", "Log level")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.ValidateExtractionKey(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	stack, err := app.Build(ctx, cfg, app.Options{Mirror: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build processor")
	}
	defer stack.Close()

	start, err := stack.Appender.Current(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	log.Info().Str("snapshot", start.Name).Str("dir", start.Dir).Msg("Ledger ready")

	var lock *ledger.WriterLock
	if cfg.Ledger.Lock {
		lock = ledger.NewWriterLock(cfg.Ledger.Dir)
	}
	writer := app.NewLedgerWriter(stack.Processor, start, lock)

	// Initialize job infrastructure
	jobStore, closeStore, err := openJobStore(ctx, cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer closeStore()

	jobQueue := inmemory.NewQueue(cfg.Queue.Capacity, cfg.Queue.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Queue.Workers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, writer.HandleJob); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	handler := api.NewRouter(api.Deps{
		Inbox:     inbox.New(cfg.Inbox.Dir),
		Publisher: jobQueue,
		Store:     jobStore,
		CurrentLedger: func(context.Context) (ledger.Handle, error) {
			return ledger.Latest(cfg.Ledger.Dir)
		},
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight appends finish before the workers are cancelled.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Str("snapshot", writer.Current().Name).Msg("Server exited")
}

func openJobStore(ctx context.Context, cfg config.Queue) (jobs.JobStore, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Msg("Failed to close job store")
			}
		}, nil
	default:
		return inmemory.NewStore(), func() {}, nil
	}
}
