package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	operationsTable = "operations"
	dateFormat      = "2006-01-02"
)

// InsertOperationsWithClient streams a batch of OperationRow into
// <dataset>.operations using the provided BigQuery client.
func InsertOperationsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*OperationRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(operationsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertOperations: inserting rows: %w", err)
	}

	return nil
}

// QueryOperationsByDateRangeWithClient returns operations whose date falls
// within [startDate, endDate], oldest first.
func QueryOperationsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, startDate, endDate time.Time) ([]*OperationRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			operation_id,
			run_id,
			operation_date,
			date_text,
			business_unit,
			operation,
			crop,
			area_today_ha,
			area_cumulative_ha,
			yield_today_c,
			yield_cumulative_c,
			source_excerpt,
			review_fields,
			created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE operation_date >= @start_date
		  AND operation_date <= @end_date
		ORDER BY operation_date, created_ts
	`, projectID, datasetID, operationsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryOperationsByDateRange: query read: %w", err)
	}

	var rows []*OperationRow
	for {
		var r OperationRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryOperationsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
