package bigquery

import "cloud.google.com/go/bigquery"

type ModelOutputRow struct {
	OutputID string `bigquery:"output_id"` // REQUIRED
	RunID    string `bigquery:"run_id"`    // REQUIRED

	ModelName string `bigquery:"model_name"` // REQUIRED

	RawText   bigquery.NullString    `bigquery:"raw_text"`   // NULLABLE
	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
	Notes     bigquery.NullString    `bigquery:"notes"`      // NULLABLE
}
