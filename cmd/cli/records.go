package main

import (
	"github.com/dvloznov/agro-tracker/internal/console"
	"github.com/dvloznov/agro-tracker/internal/domain"
)

// reviewMark follows values that need a human look.
const reviewMark = " *"

func renderRecords(records []domain.OperationRecord) string {
	headers := make([]string, 0, len(domain.Columns))
	aligns := make([]console.Alignment, 0, len(domain.Columns))
	for _, c := range domain.Columns {
		headers = append(headers, c.Title)
		if c.Kind == domain.KindNumber {
			aligns = append(aligns, console.AlignRight)
		} else {
			aligns = append(aligns, console.AlignLeft)
		}
	}

	rows := make([][]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		row := make([]string, 0, len(domain.Columns))
		for _, c := range domain.Columns {
			v := rec.Get(c.Field)
			if rec.NeedsReview(c.Field) {
				v += reviewMark
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return console.RenderTable(headers, rows, aligns)
}
