package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses written to extraction_runs.status.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusSuccess  = "SUCCESS"
	RunStatusFallback = "FALLBACK"
	RunStatusFailed   = "FAILED"
)

type ExtractionRunRow struct {
	RunID     string `bigquery:"run_id"`     // REQUIRED
	MessageID string `bigquery:"message_id"` // NULLABLE
	Sender    string `bigquery:"sender"`     // NULLABLE

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Extractor     string `bigquery:"extractor"`      // NULLABLE
	ParserVersion string `bigquery:"parser_version"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ParseOutcome string `bigquery:"parse_outcome"` // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE
}
