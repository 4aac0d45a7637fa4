package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const modelOutputsTable = "model_outputs"

// InsertModelOutputWithClient inserts a single ModelOutputRow into
// <dataset>.model_outputs using the provided BigQuery client.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, row *ModelOutputRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.%s`"+` (
			output_id, run_id, model_name,
			raw_text, created_ts, notes
		)
		VALUES (
			@output_id, @run_id, @model_name,
			@raw_text, @created_ts, @notes
		)
	`, projectID, datasetID, modelOutputsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "raw_text", Value: row.RawText},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "notes", Value: row.Notes},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertModelOutput: %w", err)
	}
	return nil
}
