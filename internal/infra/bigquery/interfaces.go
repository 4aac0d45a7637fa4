package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
)

// OperationsRepository is the BigQuery warehouse for extracted operations.
// It holds a shared client to avoid creating a new connection for each
// operation. It serves as both a record sink and the extraction audit trail.
type OperationsRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

var (
	_ pipeline.RecordSink  = (*OperationsRepository)(nil)
	_ pipeline.RunRecorder = (*OperationsRepository)(nil)
)

// NewOperationsRepository creates a repository for the given project and
// dataset with a shared BigQuery client.
func NewOperationsRepository(ctx context.Context, projectID, datasetID string) (*OperationsRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewOperationsRepository: creating client: %w", err)
	}
	return &OperationsRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *OperationsRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertOperations converts records into rows and streams them into the
// operations table.
func (r *OperationsRepository) InsertOperations(ctx context.Context, runID string, records []domain.OperationRecord) error {
	now := r.now()
	rows := make([]*OperationRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ToOperationRow(uuid.NewString(), runID, rec, now))
	}
	return InsertOperationsWithClient(ctx, r.client, r.projectID, r.datasetID, rows)
}

// QueryOperationsByDateRange delegates to QueryOperationsByDateRangeWithClient.
func (r *OperationsRepository) QueryOperationsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*OperationRow, error) {
	return QueryOperationsByDateRangeWithClient(ctx, r.client, r.projectID, r.datasetID, startDate, endDate)
}

// StartRun opens an extraction run for msg.
func (r *OperationsRepository) StartRun(ctx context.Context, msg pipeline.Message, extractor string) (string, error) {
	return StartExtractionRunWithClient(ctx, r.client, r.projectID, r.datasetID, &ExtractionRunRow{
		MessageID:     msg.ID,
		Sender:        msg.Sender,
		StartedTS:     r.now(),
		Extractor:     extractor,
		ParserVersion: pipeline.ParserVersion,
	})
}

// RecordOutput stores the raw completion for a run.
func (r *OperationsRepository) RecordOutput(ctx context.Context, runID, extractor, completion string) error {
	return InsertModelOutputWithClient(ctx, r.client, r.projectID, r.datasetID, &ModelOutputRow{
		OutputID:  uuid.NewString(),
		RunID:     runID,
		ModelName: extractor,
		RawText:   bigquery.NullString{StringVal: completion, Valid: true},
		CreatedTS: bigquery.NullTimestamp{Timestamp: r.now(), Valid: true},
	})
}

// FinishRun closes a run with the status derived from the parse outcome.
func (r *OperationsRepository) FinishRun(ctx context.Context, runID string, outcome pipeline.ParseOutcome, runErr error) error {
	return FinishExtractionRunWithClient(ctx, r.client, r.projectID, r.datasetID, runID, RunStatus(outcome), outcome.String(), runErr)
}

// RunStatus maps a parse outcome onto an extraction_runs status.
func RunStatus(outcome pipeline.ParseOutcome) string {
	switch outcome {
	case pipeline.ParseStrictOK, pipeline.ParseRepairedOK:
		return RunStatusSuccess
	case pipeline.ParseServiceFailed:
		return RunStatusFailed
	default:
		return RunStatusFallback
	}
}
