package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/metrics"
)

// PipelineStep represents a single step in message processing.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Message    Message
	RunID      string
	Completion string
	ExtractErr error
	Outcome    ParseOutcome
	Records    []domain.OperationRecord
	Problems   map[int]error
	Ledger     ledger.Handle
	ArchiveURI string
}

// StartRunStep opens an extraction run in the audit trail.
type StartRunStep struct {
	Recorder  RunRecorder
	Extractor string
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Recorder.StartRun(ctx, state.Message, s.Extractor)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to start extraction run")
		return nil
	}
	state.RunID = runID
	return nil
}

// ExtractStep calls the extraction service. A service failure is kept on the
// state and turned into the placeholder record by ParseStep; only caller
// cancellation stops the pipeline.
type ExtractStep struct {
	Extractor         Extractor
	SystemInstruction string
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	completion, err := s.Extractor.Complete(ctx, s.SystemInstruction, BuildUserMessage(state.Message.Text))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ExtractStep: %w", ctxErr)
		}
		log.Warn().Err(err).Str("extractor", s.Extractor.Name()).Msg("Extraction service call failed")
		state.ExtractErr = err
		return nil
	}

	log.Debug().Int("completion_len", len(completion)).Msg("Received completion")
	state.Completion = completion
	return nil
}

// RecordOutputStep stores the raw completion for the run.
type RecordOutputStep struct {
	Recorder  RunRecorder
	Extractor string
}

func (s *RecordOutputStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.RunID == "" || state.ExtractErr != nil {
		return nil
	}
	if err := s.Recorder.RecordOutput(ctx, state.RunID, s.Extractor, state.Completion); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", state.RunID).Msg("Failed to record model output")
	}
	return nil
}

// ParseStep turns the completion into records.
type ParseStep struct {
	Parser *ResponseParser
}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.ExtractErr != nil {
		state.Outcome = ParseServiceFailed
		state.Records = FallbackRecords(state.Message.Text)
	} else {
		out := s.Parser.Parse(ctx, state.Completion, state.Message.Text)
		state.Outcome = out.Outcome
		state.Records = out.Records
	}

	metrics.ParseOutcomes.WithLabelValues(state.Outcome.String()).Inc()
	if state.Outcome == ParseFailed || state.Outcome == ParseServiceFailed {
		metrics.Fallbacks.Inc()
	}
	return nil
}

// ValidateStep canonicalizes vocabulary values and flags what it cannot match.
type ValidateStep struct {
	Validator *RecordValidator
}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Problems = s.Validator.ValidateAll(state.Records)
	log := logger.FromContext(ctx)
	for i, err := range state.Problems {
		log.Warn().Err(err).Int("index", i).Msg("Record flagged for review")
	}
	return nil
}

// AggregateStep collapses department breakdowns into unit-level records.
type AggregateStep struct{}

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	before := len(state.Records)
	state.Records = EnforceAggregation(state.Records)
	if after := len(state.Records); after != before {
		log := logger.FromContext(ctx)
		log.Info().
			Int("before", before).
			Int("after", after).
			Msg("Collapsed duplicate operation records")
	}
	return nil
}

// AppendStep writes the records to a new ledger snapshot.
type AppendStep struct {
	Appender LedgerAppender
}

func (s *AppendStep) Execute(ctx context.Context, state *PipelineState) error {
	fallback := state.Message.ReceivedAt
	if fallback.IsZero() {
		fallback = time.Now()
	}

	next, err := s.Appender.Append(ctx, state.Ledger, state.Records, fallback)
	if err != nil {
		return fmt.Errorf("AppendStep: %w", err)
	}
	state.Ledger = next
	metrics.RecordsAppended.Add(float64(len(state.Records)))
	return nil
}

// ArchiveStep copies the new snapshot to long-term storage.
type ArchiveStep struct {
	Archiver SnapshotArchiver
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	uri, err := s.Archiver.ArchiveSnapshot(ctx, state.Ledger.Path())
	if err != nil {
		// The local snapshot is committed; archival is retried with the next one.
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("snapshot", state.Ledger.Name).Msg("Failed to archive snapshot")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// SinkStep mirrors the records into downstream stores.
type SinkStep struct {
	Sinks []RecordSink
}

func (s *SinkStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, sink := range s.Sinks {
		if err := sink.InsertOperations(ctx, state.RunID, state.Records); err != nil {
			return fmt.Errorf("SinkStep: %w", err)
		}
	}
	return nil
}

// FinishRunStep closes the extraction run.
type FinishRunStep struct {
	Recorder RunRecorder
}

func (s *FinishRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.RunID == "" {
		return nil
	}
	if err := s.Recorder.FinishRun(ctx, state.RunID, state.Outcome, state.ExtractErr); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", state.RunID).Msg("Failed to finish extraction run")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
