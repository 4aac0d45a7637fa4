// Package evaluate measures extraction quality against labeled examples.
package evaluate

import (
	"strings"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/numeric"
)

// ErrorType classifies a comparison error.
type ErrorType string

const (
	ErrorExtraRows     ErrorType = "extra_rows"
	ErrorMissingRow    ErrorType = "missing_row"
	ErrorValueMismatch ErrorType = "value_mismatch"
)

// Pair is one labeled message with the records extracted from it.
type Pair struct {
	Message  string
	Expected []domain.OperationRecord
	Actual   []domain.OperationRecord
}

// CompareError is one difference between expected and actual records.
type CompareError struct {
	PairIndex int
	Message   string
	Type      ErrorType

	// Row is the expected row index; -1 for extra_rows.
	Row int
	// Field is the compared column; unset for extra_rows.
	Field domain.Field

	Expected string
	Actual   string

	// ExpectedRows and ActualRows are set for extra_rows.
	ExpectedRows int
	ActualRows   int
}

// Column returns the column title of the error, or "all" for extra_rows.
func (e CompareError) Column() string {
	if e.Type == ErrorExtraRows {
		return "all"
	}
	return e.Field.Title()
}

// CellComparison is the outcome for one column of one row.
type CellComparison struct {
	Field    domain.Field
	Expected string
	Actual   string
	Match    bool
}

// RowComparison lines up expected row Row of a pair with the actual row at
// the same index. Either side may be missing.
type RowComparison struct {
	PairIndex int
	Row       int
	Message   string
	Cells     []CellComparison
	Match     bool
}

// Metrics are the aggregate accuracy figures.
type Metrics struct {
	// Overall is correct cells over compared cells.
	Overall float64
	// Row is fully correct expected rows over all expected rows.
	Row float64
	// Message is fully correct pairs over all pairs.
	Message float64
	// Columns is the accuracy of each compared column.
	Columns map[domain.Field]float64

	CorrectCells int
	TotalCells   int
	CorrectRows  int
	TotalRows    int
	CorrectPairs int
	TotalPairs   int
}

// Result is the full evaluation output.
type Result struct {
	Metrics Metrics
	Errors  []CompareError
	Rows    []RowComparison
}

type counter struct {
	correct, total int
}

func (c counter) ratio() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.correct) / float64(c.total)
}

// Compare evaluates every pair over the compared columns.
//
// A pair with more actual rows than expected rows scores zero: its expected
// cells and rows all count as incorrect and a single extra_rows error is
// recorded. Otherwise each expected row is compared with the actual row at
// the same index; a missing actual row makes every cell of that row a
// missing_row error.
func Compare(pairs []Pair) Result {
	var (
		res     Result
		cells   counter
		rows    counter
		msgs    counter
		columns = make(map[domain.Field]*counter, len(domain.ComparedFields))
	)
	for _, f := range domain.ComparedFields {
		columns[f] = &counter{}
	}

	for i, p := range pairs {
		msgs.total++
		rows.total += len(p.Expected)
		res.Rows = append(res.Rows, lineUp(i, p)...)

		if len(p.Actual) > len(p.Expected) {
			cells.total += len(p.Expected) * len(domain.ComparedFields)
			for _, f := range domain.ComparedFields {
				columns[f].total += len(p.Expected)
			}
			res.Errors = append(res.Errors, CompareError{
				PairIndex:    i,
				Message:      p.Message,
				Type:         ErrorExtraRows,
				Row:          -1,
				ExpectedRows: len(p.Expected),
				ActualRows:   len(p.Actual),
			})
			continue
		}

		pairCorrect := 0
		pairTotal := 0
		for j := range p.Expected {
			exp := &p.Expected[j]
			rowCorrect := 0

			for _, f := range domain.ComparedFields {
				pairTotal++
				columns[f].total++

				if j >= len(p.Actual) {
					res.Errors = append(res.Errors, CompareError{
						PairIndex: i,
						Message:   p.Message,
						Type:      ErrorMissingRow,
						Row:       j,
						Field:     f,
						Expected:  exp.Get(f),
					})
					continue
				}

				act := &p.Actual[j]
				if ValuesMatch(f, exp.Get(f), act.Get(f)) {
					pairCorrect++
					rowCorrect++
					columns[f].correct++
					continue
				}
				res.Errors = append(res.Errors, CompareError{
					PairIndex: i,
					Message:   p.Message,
					Type:      ErrorValueMismatch,
					Row:       j,
					Field:     f,
					Expected:  exp.Get(f),
					Actual:    act.Get(f),
				})
			}

			if rowCorrect == len(domain.ComparedFields) {
				rows.correct++
			}
		}

		cells.correct += pairCorrect
		cells.total += pairTotal
		if pairTotal > 0 && pairCorrect == pairTotal {
			msgs.correct++
		}
	}

	res.Metrics = Metrics{
		Overall:      cells.ratio(),
		Row:          rows.ratio(),
		Message:      msgs.ratio(),
		Columns:      make(map[domain.Field]float64, len(columns)),
		CorrectCells: cells.correct,
		TotalCells:   cells.total,
		CorrectRows:  rows.correct,
		TotalRows:    rows.total,
		CorrectPairs: msgs.correct,
		TotalPairs:   msgs.total,
	}
	for f, c := range columns {
		res.Metrics.Columns[f] = c.ratio()
	}
	return res
}

// lineUp builds the side-by-side rows of a pair for reporting.
func lineUp(i int, p Pair) []RowComparison {
	n := len(p.Expected)
	if len(p.Actual) > n {
		n = len(p.Actual)
	}

	out := make([]RowComparison, 0, n)
	for j := 0; j < n; j++ {
		rc := RowComparison{PairIndex: i, Row: j, Message: p.Message, Match: true}
		haveExp, haveAct := j < len(p.Expected), j < len(p.Actual)
		for _, f := range domain.ComparedFields {
			var c CellComparison
			c.Field = f
			if haveExp {
				c.Expected = displayValue(f, p.Expected[j].Get(f))
			}
			if haveAct {
				c.Actual = displayValue(f, p.Actual[j].Get(f))
			}
			c.Match = haveExp && haveAct && ValuesMatch(f, p.Expected[j].Get(f), p.Actual[j].Get(f))
			if !c.Match {
				rc.Match = false
			}
			rc.Cells = append(rc.Cells, c)
		}
		out = append(out, rc)
	}
	return out
}

// ValuesMatch compares one expected and one actual value of column f.
// Values that are both blank match. Numeric columns are normalized first.
func ValuesMatch(f domain.Field, expected, actual string) bool {
	e, a := blankToEmpty(expected), blankToEmpty(actual)
	if e == "" && a == "" {
		return true
	}
	if f.IsNumeric() {
		return numeric.Normalize(e) == numeric.Normalize(a)
	}
	return e == a
}

func displayValue(f domain.Field, v string) string {
	v = blankToEmpty(v)
	if f.IsNumeric() {
		return numeric.Normalize(v)
	}
	return v
}

func blankToEmpty(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "N/A", "null", "None":
		return ""
	}
	return v
}
