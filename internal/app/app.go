// Package app assembles the processing stack from configuration. The API
// server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/agro-tracker/internal/infra/bigquery"
	"github.com/dvloznov/agro-tracker/internal/infra/postgres"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

// NewExtractor returns the extraction backend selected by cfg.
func NewExtractor(ctx context.Context, cfg config.Extraction) (pipeline.Extractor, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return pipeline.NewChatCompletionExtractor(pipeline.ChatConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Title:          cfg.Title,
			Temperature:    cfg.Temperature,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	case config.ProviderGemini:
		return pipeline.NewGeminiExtractor(ctx, cfg.Project, cfg.Location, cfg.Model, float32(cfg.Temperature))
	default:
		return nil, fmt.Errorf("NewExtractor: unknown provider %q", cfg.Provider)
	}
}

// NewAppender returns the ledger appender for cfg. With fallback_date set to
// "today" the wall clock replaces the message timestamp as the fallback.
func NewAppender(cfg config.Ledger) (*ledger.Appender, pipeline.LedgerAppender) {
	a := ledger.NewAppender(cfg.Dir, ledger.WithSheetName(cfg.Sheet))
	if cfg.FallbackDate == config.FallbackToday {
		return a, &todayAppender{Appender: a, now: time.Now}
	}
	return a, a
}

type todayAppender struct {
	*ledger.Appender
	now func() time.Time
}

func (t *todayAppender) Append(ctx context.Context, current ledger.Handle, records []domain.OperationRecord, _ time.Time) (ledger.Handle, error) {
	return t.Appender.Append(ctx, current, records, t.now())
}

// Stack is a configured processor with the resources it holds.
type Stack struct {
	Processor *pipeline.Processor
	Appender  *ledger.Appender
	Reference *reference.Data

	closers []func() error
}

// Options selects optional parts of the stack.
type Options struct {
	// Mirror enables the BigQuery and PostgreSQL sinks, the run recorder and
	// snapshot archival when they are configured.
	Mirror bool
}

// Build loads the reference data and assembles the processor.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	log := logger.FromContext(ctx)

	ref, err := reference.Load(cfg.Reference.Path)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	extractor, err := NewExtractor(ctx, cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	appender, pa := NewAppender(cfg.Ledger)
	s := &Stack{Appender: appender, Reference: ref}

	popts := []pipeline.ProcessorOption{pipeline.WithAppender(pa)}

	if opts.Mirror {
		if cfg.BigQuery.Project != "" {
			repo, err := infraBQ.NewOperationsRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("Build: %w", err)
			}
			s.closers = append(s.closers, repo.Close)
			popts = append(popts, pipeline.WithSinks(repo), pipeline.WithRunRecorder(repo))
			log.Info().Str("project", cfg.BigQuery.Project).Str("dataset", cfg.BigQuery.Dataset).Msg("BigQuery mirroring enabled")
		}
		if cfg.Postgres.DSN != "" {
			store, err := postgres.NewOperationsStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("Build: %w", err)
			}
			s.closers = append(s.closers, store.Close)
			popts = append(popts, pipeline.WithSinks(store))
			log.Info().Msg("PostgreSQL mirroring enabled")
		}
		if cfg.GCS.Bucket != "" {
			archiver := gcsuploader.NewSnapshotArchiver(gcsuploader.NewGCSStorageService(), cfg.GCS.Bucket, cfg.GCS.Prefix)
			popts = append(popts, pipeline.WithArchiver(archiver))
			log.Info().Str("bucket", cfg.GCS.Bucket).Msg("Snapshot archival enabled")
		}
	}

	s.Processor = pipeline.NewProcessor(extractor, ref, popts...)
	return s, nil
}

// Close releases every resource opened by Build.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
