package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const (
	extractionRunsTable = "extraction_runs"
	maxErrorLen         = 2000
)

// StartExtractionRunWithClient inserts a new row into extraction_runs with
// status=RUNNING and returns the generated run_id.
func StartExtractionRunWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, row *ExtractionRunRow) (string, error) {
	runID := uuid.NewString()
	if row.StartedTS.IsZero() {
		row.StartedTS = time.Now()
	}

	q := client.Query(fmt.Sprintf(`
		INSERT `+"`%s.%s.%s`"+` (
			run_id,
			message_id,
			sender,
			started_ts,
			extractor,
			parser_version,
			status
		)
		VALUES (
			@run_id,
			@message_id,
			@sender,
			@started_ts,
			@extractor,
			@parser_version,
			@status
		)
	`, projectID, datasetID, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "message_id", Value: row.MessageID},
		{Name: "sender", Value: row.Sender},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "extractor", Value: row.Extractor},
		{Name: "parser_version", Value: row.ParserVersion},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartExtractionRun: %w", err)
	}
	return runID, nil
}

// FinishExtractionRunWithClient sets status, parse_outcome, finished_ts and
// error_message for a run.
func FinishExtractionRunWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, runID, status, outcome string, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorLen {
			errMsg = errMsg[:maxErrorLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE `+"`%s.%s.%s`"+`
		SET status = @status,
		    parse_outcome = @parse_outcome,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, projectID, datasetID, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "parse_outcome", Value: outcome},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishExtractionRun: %w", err)
	}
	return nil
}

// runDML runs a DML statement and waits for it. DML avoids the streaming
// buffer, so rows can be updated right after insertion.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
