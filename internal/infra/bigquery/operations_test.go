package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
)

func TestToOperationRow(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	rec := domain.OperationRecord{
		Date:           "2025-03-10",
		BusinessUnit:   `ПУ "Юг"`,
		Operation:      "2-я подкормка",
		Crop:           "Озимые",
		AreaToday:      "1749.00",
		AreaCumulative: "2559,5",
		YieldToday:     "около 5",
		SourceExcerpt:  `ПУ "Юг" - 1749/2559`,
		Review:         []domain.Field{domain.FieldCrop},
	}

	got := ToOperationRow("op-1", "run-1", rec, now)

	if got.OperationID != "op-1" || got.RunID != (bigquery.NullString{StringVal: "run-1", Valid: true}) {
		t.Errorf("ids = %q, %+v", got.OperationID, got.RunID)
	}
	wantDate := bigquery.NullDate{Date: civil.Date{Year: 2025, Month: time.March, Day: 10}, Valid: true}
	if got.OperationDate != wantDate {
		t.Errorf("OperationDate = %+v, want %+v", got.OperationDate, wantDate)
	}
	if got.DateText.Valid {
		t.Errorf("DateText = %+v, want NULL", got.DateText)
	}
	if got.AreaToday.Cmp(big.NewRat(1749, 1)) != 0 {
		t.Errorf("AreaToday = %v", got.AreaToday)
	}
	if got.AreaCumulative.Cmp(big.NewRat(5119, 2)) != 0 {
		t.Errorf("AreaCumulative = %v", got.AreaCumulative)
	}
	if got.YieldToday != nil || got.YieldCumulative != nil {
		t.Errorf("yields = %v, %v; want NULL", got.YieldToday, got.YieldCumulative)
	}
	if diff := cmp.Diff([]string{"crop", "yield_today"}, got.ReviewFields); diff != "" {
		t.Errorf("ReviewFields mismatch (-want +got):\n%s", diff)
	}
	if !got.CreatedTS.Equal(now) {
		t.Errorf("CreatedTS = %v", got.CreatedTS)
	}
}

func TestToOperationRowPlaceholder(t *testing.T) {
	got := ToOperationRow("op-2", "", domain.Sentinel("нечитаемо"), time.Time{})

	if got.RunID.Valid {
		t.Errorf("RunID = %+v, want NULL", got.RunID)
	}
	if got.OperationDate.Valid || got.DateText.Valid {
		t.Errorf("date = %+v / %+v, want NULL", got.OperationDate, got.DateText)
	}
	if got.SourceExcerpt != "нечитаемо" || len(got.ReviewFields) != 0 {
		t.Errorf("row = %+v", got)
	}
}

func TestToOperationRowTextDate(t *testing.T) {
	got := ToOperationRow("op-3", "", domain.OperationRecord{Date: "10.03"}, time.Time{})

	if got.OperationDate.Valid {
		t.Errorf("OperationDate = %+v, want NULL", got.OperationDate)
	}
	if got.DateText != (bigquery.NullString{StringVal: "10.03", Valid: true}) {
		t.Errorf("DateText = %+v", got.DateText)
	}
	if diff := cmp.Diff([]string{"date"}, got.ReviewFields); diff != "" {
		t.Errorf("ReviewFields mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		outcome pipeline.ParseOutcome
		want    string
	}{
		{pipeline.ParseStrictOK, RunStatusSuccess},
		{pipeline.ParseRepairedOK, RunStatusSuccess},
		{pipeline.ParseFailed, RunStatusFallback},
		{pipeline.ParseServiceFailed, RunStatusFailed},
	}
	for _, tt := range tests {
		if got := RunStatus(tt.outcome); got != tt.want {
			t.Errorf("RunStatus(%v) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
