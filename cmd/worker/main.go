package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dvloznov/agro-tracker/internal/app"
	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/agro-tracker/internal/jobs/sqlitestore"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// The worker replays inbox messages that never reached the ledger, e.g.
// after the API server stopped with jobs still queued. Job state is kept in
// SQLite so a message is processed at most once across runs.
func main() {
	fs := pflag.NewFlagSet("agro-worker", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "Configuration file path")
	fs.String("inbox-dir", "", "Inbox directory")
	fs.String("ledger-dir", "", "Ledger directory")
	fs.String("sqlite-path", "", "Job state database")
	fs.String("log-level", "", "Log level")
	watch := fs.Duration("watch", 0, "Poll the inbox at this interval instead of exiting when drained")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	stack, err := app.Build(ctx, cfg, app.Options{Mirror: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build processor")
	}
	defer stack.Close()

	store, err := sqlitestore.Open(ctx, cfg.Queue.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer store.Close()

	var lock *ledger.WriterLock
	if cfg.Ledger.Lock {
		lock = ledger.NewWriterLock(cfg.Ledger.Dir)
	}
	writer := app.NewLedgerWriter(stack.Processor, ledger.Handle{}, lock)
	in := inbox.New(cfg.Inbox.Dir)

	log.Info().Str("inbox", in.Dir()).Str("ledger", cfg.Ledger.Dir).Msg("Starting worker service")

	for {
		n, err := drain(ctx, log, in, store, cfg.Queue, writer.HandleJob)
		if err != nil {
			log.Error().Err(err).Msg("Backlog run failed")
		} else {
			log.Info().Int("messages", n).Str("snapshot", writer.Current().Name).Msg("Backlog drained")
		}

		if *watch <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down worker service...")
			return
		case <-time.After(*watch):
		}
	}
}

// drain queues every pending inbox message and waits for the workers to
// finish them.
func drain(ctx context.Context, log zerolog.Logger, in *inbox.Inbox, store jobs.JobStore, cfg config.Queue, handler jobs.JobHandler) (int, error) {
	pending, err := app.Backlog(ctx, in, store)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	capacity := cfg.Capacity
	if capacity < len(pending) {
		capacity = len(pending)
	}
	queue := inmemory.NewQueue(capacity, cfg.Workers, store)
	if err := queue.Start(ctx, handler); err != nil {
		return 0, err
	}

	queued := make([]string, 0, len(pending))
	for _, job := range pending {
		if err := queue.PublishProcessMessage(ctx, job); err != nil {
			log.Error().Err(err).Str("inbox_path", job.InboxPath).Msg("Failed to enqueue message")
			continue
		}
		queued = append(queued, job.JobID)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for !finished(ctx, store, queued) {
		select {
		case <-ctx.Done():
			_ = queue.Stop(context.Background())
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}

	if err := queue.Stop(ctx); err != nil {
		return 0, err
	}
	return len(queued), nil
}

func finished(ctx context.Context, store jobs.JobStore, ids []string) bool {
	for _, id := range ids {
		got, err := store.GetJob(ctx, id)
		if err != nil {
			return false
		}
		switch got.Status {
		case jobs.JobStatusCompleted, jobs.JobStatusFailed:
		default:
			return false
		}
	}
	return true
}
