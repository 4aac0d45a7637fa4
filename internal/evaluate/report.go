package evaluate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/agro-tracker/internal/console"
	"github.com/dvloznov/agro-tracker/internal/domain"
)

const (
	resultsSheet = "Результаты"
	metricsSheet = "Метрики"
	errorsSheet  = "Ошибки"

	yes = "Да"
	no  = "Нет"
)

// WriteWorkbook saves the evaluation report to path. The workbook has one
// sheet of side-by-side rows, one of metrics and one of typed errors.
func WriteWorkbook(path string, res Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WriteWorkbook: create dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("WriteWorkbook: %w", err)
	}
	for _, name := range []string{metricsSheet, errorsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("WriteWorkbook: new sheet %s: %w", name, err)
		}
	}

	if err := writeSheet(f, resultsSheet, resultsTable(res)); err != nil {
		return fmt.Errorf("WriteWorkbook: %w", err)
	}
	if err := writeSheet(f, metricsSheet, metricsTable(res.Metrics)); err != nil {
		return fmt.Errorf("WriteWorkbook: %w", err)
	}
	if err := writeSheet(f, errorsSheet, errorsTable(res.Errors)); err != nil {
		return fmt.Errorf("WriteWorkbook: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("WriteWorkbook: save: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func resultsTable(res Result) [][]any {
	header := []any{"Сообщение", "Номер сообщения", "Номер строки"}
	for _, f := range domain.ComparedFields {
		header = append(header, "Ожидаемое "+f.Title(), "Фактическое "+f.Title(), "Совпадение "+f.Title())
	}
	header = append(header, "Совпадение")

	out := [][]any{header}
	for _, rc := range res.Rows {
		msg := ""
		if rc.Row == 0 {
			msg = rc.Message
		}
		row := []any{msg, rc.PairIndex + 1, rc.Row + 1}
		for _, c := range rc.Cells {
			row = append(row, c.Expected, c.Actual, yesNo(c.Match))
		}
		row = append(row, yesNo(rc.Match))
		out = append(out, row)
	}
	return out
}

func metricsTable(m Metrics) [][]any {
	out := [][]any{
		{"Метрика", "Значение"},
		{"Общая точность", m.Overall},
		{"Точность по строкам", m.Row},
		{"Точность по сообщениям", m.Message},
	}
	for _, f := range domain.ComparedFields {
		out = append(out, []any{"Точность по колонке " + f.Title(), m.Columns[f]})
	}
	return out
}

func errorsTable(errs []CompareError) [][]any {
	out := [][]any{{
		"message_index", "message", "error_type", "row_index", "column",
		"expected_value", "actual_value", "expected_rows", "actual_rows",
	}}
	for _, e := range errs {
		row := []any{e.PairIndex, e.Message, string(e.Type)}
		if e.Type == ErrorExtraRows {
			row = append(row, "", e.Column(), "", "", e.ExpectedRows, e.ActualRows)
		} else {
			row = append(row, e.Row, e.Column(), e.Expected, e.Actual, "", "")
		}
		out = append(out, row)
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return yes
	}
	return no
}

// RenderSummary writes the metrics and error breakdown as console tables.
func RenderSummary(w io.Writer, res Result) error {
	m := res.Metrics
	rows := [][]string{
		{"Общая точность", percent(m.Overall), fmt.Sprintf("%d/%d", m.CorrectCells, m.TotalCells)},
		{"Точность по строкам", percent(m.Row), fmt.Sprintf("%d/%d", m.CorrectRows, m.TotalRows)},
		{"Точность по сообщениям", percent(m.Message), fmt.Sprintf("%d/%d", m.CorrectPairs, m.TotalPairs)},
	}
	for _, f := range domain.ComparedFields {
		rows = append(rows, []string{f.Title(), percent(m.Columns[f]), ""})
	}
	aligns := []console.Alignment{console.AlignLeft, console.AlignRight, console.AlignRight}

	var b strings.Builder
	b.WriteString(console.RenderTable([]string{"Метрика", "Значение", "Ячейки"}, rows, aligns))
	b.WriteString("\n")

	if len(res.Errors) == 0 {
		b.WriteString("Ошибок не обнаружено\n")
	} else {
		byType, byColumn := ErrorCounts(res.Errors)
		b.WriteString(console.RenderTable([]string{"Тип ошибки", "Количество"}, countRows(byType), aligns[:2]))
		b.WriteString("\n")
		b.WriteString(console.RenderTable([]string{"Колонка", "Ошибок"}, countRows(byColumn), aligns[:2]))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderErrors writes one table of differences per message that has any.
func RenderErrors(w io.Writer, res Result) error {
	var b strings.Builder
	byPair := make(map[int][]CompareError)
	var order []int
	for _, e := range res.Errors {
		if _, ok := byPair[e.PairIndex]; !ok {
			order = append(order, e.PairIndex)
		}
		byPair[e.PairIndex] = append(byPair[e.PairIndex], e)
	}

	for _, i := range order {
		errs := byPair[i]
		fmt.Fprintf(&b, "Сообщение #%d:\n%s\n", i+1, errs[0].Message)
		var rows [][]string
		for _, e := range errs {
			row := ""
			if e.Row >= 0 {
				row = strconv.Itoa(e.Row + 1)
			}
			exp, act := e.Expected, e.Actual
			if e.Type == ErrorExtraRows {
				exp, act = strconv.Itoa(e.ExpectedRows), strconv.Itoa(e.ActualRows)
			}
			rows = append(rows, []string{string(e.Type), row, e.Column(), exp, act})
		}
		b.WriteString(console.RenderTable([]string{"Тип", "Строка", "Колонка", "Ожидалось", "Получено"}, rows, nil))
		b.WriteString("\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func countRows(counts []Count) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Key, strconv.Itoa(c.N)})
	}
	return rows
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}
