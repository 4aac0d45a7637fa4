package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/agro-tracker/internal/domain"
)

// ReadRecords returns the body rows of a snapshot as records. Date cells are
// rendered as YYYY-MM-DD; other cells keep their stored value. Blank rows
// are skipped.
func ReadRecords(path string) ([]domain.OperationRecord, error) {
	records, err := readRecords(path, false)
	if err != nil {
		return nil, fmt.Errorf("ReadRecords: %w", err)
	}
	return records, nil
}

// ReadFlagged returns the body rows that carry at least one review mark,
// with Review set from the cell fills.
func ReadFlagged(path string) ([]domain.OperationRecord, error) {
	records, err := readRecords(path, true)
	if err != nil {
		return nil, fmt.Errorf("ReadFlagged: %w", err)
	}

	out := records[:0]
	for _, rec := range records {
		if len(rec.Review) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

func readRecords(path string, withReview bool) ([]domain.OperationRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	header := FindHeader(rows)
	if err := header.Err(); err != nil {
		return nil, err
	}

	marked := reviewStyles(f)

	var out []domain.OperationRecord
	for i, cells := range rows[header.Row:] {
		var rec domain.OperationRecord
		for field, col := range header.Columns {
			if col-1 >= len(cells) {
				continue
			}
			v := strings.TrimSpace(cells[col-1])
			if field == domain.FieldDate {
				v = serialToDate(v)
			}
			rec.Set(field, v)
		}
		if rec.IsEmpty() && rec.SourceExcerpt == "" {
			continue
		}
		if withReview {
			row := header.Row + i + 1
			for field, col := range header.Columns {
				cell, err := excelize.CoordinatesToCellName(col, row)
				if err != nil {
					return nil, err
				}
				id, err := f.GetCellStyle(sheet, cell)
				if err != nil {
					return nil, fmt.Errorf("style %s: %w", cell, err)
				}
				if marked(id) {
					rec.MarkReview(field)
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// serialToDate converts a spreadsheet date serial into YYYY-MM-DD. Text
// values are returned unchanged.
func serialToDate(v string) string {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(dateLayout)
}

// reviewStyles returns a predicate reporting whether a style id carries the
// review fill. Results are cached per id.
func reviewStyles(f *excelize.File) func(id int) bool {
	cache := make(map[int]bool)
	return func(id int) bool {
		if id == 0 {
			return false
		}
		if v, ok := cache[id]; ok {
			return v
		}
		var hit bool
		if s, err := f.GetStyle(id); err == nil {
			for _, c := range s.Fill.Color {
				if strings.HasSuffix(strings.ToUpper(strings.TrimPrefix(c, "#")), reviewFill) {
					hit = true
				}
			}
		}
		cache[id] = hit
		return hit
	}
}
