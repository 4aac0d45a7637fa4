package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

// Message is one incoming field report.
type Message struct {
	ID         string
	Sender     string
	Text       string
	ReceivedAt time.Time
}

// Processor turns field reports into ledger records.
type Processor struct {
	extractor Extractor
	parser    *ResponseParser
	validator *RecordValidator
	system    string

	appender LedgerAppender
	archiver SnapshotArchiver
	sinks    []RecordSink
	recorder RunRecorder
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithAppender sets the ledger appender used by ProcessAndAppend.
func WithAppender(a LedgerAppender) ProcessorOption {
	return func(p *Processor) { p.appender = a }
}

// WithArchiver uploads every new snapshot after it is committed.
func WithArchiver(a SnapshotArchiver) ProcessorOption {
	return func(p *Processor) { p.archiver = a }
}

// WithSinks mirrors appended records into additional stores.
func WithSinks(sinks ...RecordSink) ProcessorOption {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

// WithRunRecorder records every extraction call and its raw output.
func WithRunRecorder(r RunRecorder) ProcessorOption {
	return func(p *Processor) { p.recorder = r }
}

// NewProcessor creates a Processor. The system instruction is rendered once
// from the reference data.
func NewProcessor(extractor Extractor, ref *reference.Data, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor: extractor,
		parser:    NewResponseParser(),
		validator: NewRecordValidator(ref),
		system:    BuildSystemInstruction(ref),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SystemInstruction returns the instruction sent with every request.
func (p *Processor) SystemInstruction() string {
	return p.system
}

func (p *Processor) analysisSteps() []PipelineStep {
	var steps []PipelineStep
	if p.recorder != nil {
		steps = append(steps, &StartRunStep{Recorder: p.recorder, Extractor: p.extractor.Name()})
	}
	steps = append(steps, &ExtractStep{Extractor: p.extractor, SystemInstruction: p.system})
	if p.recorder != nil {
		steps = append(steps, &RecordOutputStep{Recorder: p.recorder, Extractor: p.extractor.Name()})
	}
	steps = append(steps,
		&ParseStep{Parser: p.parser},
		&ValidateStep{Validator: p.validator},
		&AggregateStep{},
	)
	return steps
}

// Analyze runs extraction, parsing, validation and aggregation and returns
// the full pipeline state.
func (p *Processor) Analyze(ctx context.Context, msg Message) (*PipelineState, error) {
	ctx = withMessageLogger(ctx, msg)
	state := &PipelineState{Message: msg}

	steps := p.analysisSteps()
	if p.recorder != nil {
		steps = append(steps, &FinishRunStep{Recorder: p.recorder})
	}
	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Process returns the validated records for one message. Extraction and
// parsing failures yield the placeholder record rather than an error.
func (p *Processor) Process(ctx context.Context, msg Message) ([]domain.OperationRecord, error) {
	state, err := p.Analyze(ctx, msg)
	if err != nil {
		return nil, err
	}
	return state.Records, nil
}

// ProcessAndAppend processes one message and appends its records to the
// ledger identified by current. The returned handle names the new snapshot
// and must be passed to the next call.
func (p *Processor) ProcessAndAppend(ctx context.Context, current ledger.Handle, msg Message) (ledger.Handle, []domain.OperationRecord, error) {
	if p.appender == nil {
		return current, nil, errors.New("ProcessAndAppend: no ledger appender configured")
	}

	ctx = withMessageLogger(ctx, msg)
	state := &PipelineState{Message: msg, Ledger: current}

	steps := p.analysisSteps()
	steps = append(steps, &AppendStep{Appender: p.appender})
	if p.archiver != nil {
		steps = append(steps, &ArchiveStep{Archiver: p.archiver})
	}
	if len(p.sinks) > 0 {
		steps = append(steps, &SinkStep{Sinks: p.sinks})
	}
	if p.recorder != nil {
		steps = append(steps, &FinishRunStep{Recorder: p.recorder})
	}

	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		// A failed sink does not undo the committed snapshot.
		return state.Ledger, state.Records, err
	}

	log := logger.FromContext(ctx)

	log.Info().
		Str("snapshot", state.Ledger.Name).
		Int("records", len(state.Records)).
		Str("outcome", state.Outcome.String()).
		Msg("Message appended to ledger")

	return state.Ledger, state.Records, nil
}

func withMessageLogger(ctx context.Context, msg Message) context.Context {
	fields := map[string]interface{}{}
	if msg.ID != "" {
		fields["message_id"] = msg.ID
	}
	if msg.Sender != "" {
		fields["sender"] = msg.Sender
	}
	if len(fields) == 0 {
		return ctx
	}
	return logger.WithContext(ctx, logger.WithFields(logger.FromContext(ctx), fields))
}
