package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/numeric"
)

type OperationRow struct {
	OperationID string              `bigquery:"operation_id"` // REQUIRED
	RunID       bigquery.NullString `bigquery:"run_id"`       // NULLABLE

	OperationDate bigquery.NullDate   `bigquery:"operation_date"` // NULLABLE
	DateText      bigquery.NullString `bigquery:"date_text"`      // NULLABLE, raw value when not a date

	BusinessUnit string `bigquery:"business_unit"` // REQUIRED (may be empty)
	Operation    string `bigquery:"operation"`     // REQUIRED (may be empty)
	Crop         string `bigquery:"crop"`          // REQUIRED (may be empty)

	AreaToday       *big.Rat `bigquery:"area_today_ha"`      // NULLABLE NUMERIC
	AreaCumulative  *big.Rat `bigquery:"area_cumulative_ha"` // NULLABLE NUMERIC
	YieldToday      *big.Rat `bigquery:"yield_today_c"`      // NULLABLE NUMERIC
	YieldCumulative *big.Rat `bigquery:"yield_cumulative_c"` // NULLABLE NUMERIC

	SourceExcerpt string   `bigquery:"source_excerpt"` // REQUIRED
	ReviewFields  []string `bigquery:"review_fields"`  // REPEATED STRING

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// ToOperationRow converts a record into a warehouse row. Values that do not
// parse as dates or numbers are left NULL and their fields are listed in
// ReviewFields.
func ToOperationRow(id, runID string, rec domain.OperationRecord, now time.Time) *OperationRow {
	row := &OperationRow{
		OperationID:   id,
		RunID:         bigquery.NullString{StringVal: runID, Valid: runID != ""},
		BusinessUnit:  rec.BusinessUnit,
		Operation:     rec.Operation,
		Crop:          rec.Crop,
		SourceExcerpt: rec.SourceExcerpt,
		CreatedTS:     now,
	}

	review := make(map[domain.Field]bool)
	for _, f := range rec.Review {
		review[f] = true
	}

	if rec.Date != "" {
		if d, err := civil.ParseDate(rec.Date); err == nil {
			row.OperationDate = bigquery.NullDate{Date: d, Valid: true}
		} else {
			row.DateText = bigquery.NullString{StringVal: rec.Date, Valid: true}
			review[domain.FieldDate] = true
		}
	}

	numbers := []struct {
		field domain.Field
		dst   **big.Rat
	}{
		{domain.FieldAreaToday, &row.AreaToday},
		{domain.FieldAreaCumulative, &row.AreaCumulative},
		{domain.FieldYieldToday, &row.YieldToday},
		{domain.FieldYieldCumulative, &row.YieldCumulative},
	}
	for _, n := range numbers {
		raw := rec.Get(n.field)
		if raw == "" {
			continue
		}
		v, ok := numeric.Parse(raw)
		if !ok {
			review[n.field] = true
			continue
		}
		*n.dst = v.Rat()
	}

	for _, c := range domain.Columns {
		if review[c.Field] {
			row.ReviewFields = append(row.ReviewFields, c.Key)
		}
	}

	return row
}
