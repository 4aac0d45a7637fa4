package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/metrics"
)

const (
	headerFill   = "D8E4BC"
	reviewFill   = "FFFF00"
	inferredFill = "DDEBF7"
	columnWidth  = 18
	dateLayout   = "2006-01-02"
	dateNumFmt   = "dd.mm.yyyy"
)

// Flag marks a written cell.
type Flag int

const (
	FlagNone Flag = iota
	// FlagReview marks values a person should check.
	FlagReview
	// FlagInferred marks values filled in by the appender.
	FlagInferred
)

func (f Flag) String() string {
	switch f {
	case FlagReview:
		return "review"
	case FlagInferred:
		return "inferred"
	default:
		return "none"
	}
}

// Appender writes records into ledger snapshots. It holds no reference to a
// current snapshot; callers pass the handle returned by the previous call.
// Appender does not lock. Callers that may run concurrently take a
// WriterLock first.
type Appender struct {
	dir   string
	clock func() time.Time
	sheet string
}

// Option customizes an Appender.
type Option func(*Appender)

// WithClock sets the clock used to name snapshots.
func WithClock(clock func() time.Time) Option {
	return func(a *Appender) { a.clock = clock }
}

// WithSheetName sets the sheet created by Init. A blank name keeps
// DefaultSheetName.
func WithSheetName(name string) Option {
	return func(a *Appender) {
		if name = strings.TrimSpace(name); name != "" {
			a.sheet = name
		}
	}
}

// NewAppender creates an Appender for snapshots in dir.
func NewAppender(dir string, opts ...Option) *Appender {
	a := &Appender{
		dir:   dir,
		clock: time.Now,
		sheet: DefaultSheetName,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the snapshot directory.
func (a *Appender) Dir() string {
	return a.dir
}

// Init creates a snapshot holding only the canonical header.
func (a *Appender) Init(ctx context.Context) (Handle, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("Init: create dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), a.sheet); err != nil {
		return Handle{}, fmt.Errorf("Init: rename sheet: %w", err)
	}

	for i, c := range domain.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return Handle{}, fmt.Errorf("Init: %w", err)
		}
		if err := f.SetCellStr(a.sheet, cell, c.Title); err != nil {
			return Handle{}, fmt.Errorf("Init: write header: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return Handle{}, fmt.Errorf("Init: header style: %w", err)
	}
	last, err := excelize.ColumnNumberToName(len(domain.Columns))
	if err != nil {
		return Handle{}, fmt.Errorf("Init: %w", err)
	}
	if err := f.SetCellStyle(a.sheet, "A1", last+"1", style); err != nil {
		return Handle{}, fmt.Errorf("Init: apply header style: %w", err)
	}
	if err := f.SetColWidth(a.sheet, "A", last, columnWidth); err != nil {
		return Handle{}, fmt.Errorf("Init: column width: %w", err)
	}

	h, err := a.commit(f, Handle{Dir: a.dir})
	if err != nil {
		return Handle{}, fmt.Errorf("Init: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("snapshot", h.Name).Msg("Created ledger")
	return h, nil
}

// Current returns the latest snapshot in the ledger directory, creating the
// ledger when none exists.
func (a *Appender) Current(ctx context.Context) (Handle, error) {
	h, err := Latest(a.dir)
	if errors.Is(err, ErrNoSnapshot) {
		return a.Init(ctx)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("Current: %w", err)
	}
	return h, nil
}

// Append writes records below the last filled row of the snapshot named by
// current and commits the result as a new snapshot. A zero handle resolves
// to the latest snapshot in the ledger directory. The snapshot named by
// current is never modified.
func (a *Appender) Append(ctx context.Context, current Handle, records []domain.OperationRecord, fallbackDate time.Time) (Handle, error) {
	log := logger.FromContext(ctx)

	if current.IsZero() {
		h, err := a.Current(ctx)
		if err != nil {
			return Handle{}, fmt.Errorf("Append: %w", err)
		}
		current = h
	}

	f, err := excelize.OpenFile(current.Path())
	if err != nil {
		return Handle{}, fmt.Errorf("Append: open %s: %w", current.Name, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Handle{}, fmt.Errorf("Append: read rows: %w", err)
	}

	header := FindHeader(rows)
	if err := header.Err(); err != nil {
		log.Error().Str("snapshot", current.Name).Str("header", header.Status.String()).Msg("Ledger header not found")
		return Handle{}, fmt.Errorf("Append: %s: %w", current.Name, err)
	}

	row := FirstFreeRow(rows, header)
	log.Debug().Int("header_row", header.Row).Int("cursor", row).Msg("Located ledger cursor")

	w := &rowWriter{f: f, sheet: sheet, columns: header.Columns, styles: make(map[styleKey]int)}
	for i := range records {
		if err := w.write(row+i, &records[i], fallbackDate); err != nil {
			return Handle{}, fmt.Errorf("Append: row %d: %w", row+i, err)
		}
	}

	next, err := a.commit(f, current)
	if err != nil {
		return Handle{}, fmt.Errorf("Append: %w", err)
	}

	for flag, n := range w.flagged {
		metrics.FlaggedCells.WithLabelValues(flag.String()).Add(float64(n))
	}

	log.Info().
		Str("from", current.Name).
		Str("snapshot", next.Name).
		Int("first_row", row).
		Int("records", len(records)).
		Msg("Appended to ledger")

	return next, nil
}

// commit saves f under a fresh timestamp name in the directory of prev. The
// name always sorts after prev and never replaces an existing file.
func (a *Appender) commit(f *excelize.File, prev Handle) (Handle, error) {
	dir := prev.Dir
	if dir == "" {
		dir = a.dir
	}

	ts := a.clock().UTC()
	if prevTS, ok := prev.Timestamp(); ok && !ts.After(prevTS) {
		ts = prevTS.Add(time.Nanosecond)
	}

	h := Handle{Dir: dir, Name: snapshotName(ts)}
	for {
		_, err := os.Stat(h.Path())
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return Handle{}, fmt.Errorf("commit: stat: %w", err)
		}
		ts = ts.Add(time.Nanosecond)
		h.Name = snapshotName(ts)
	}

	if err := f.SaveAs(h.Path()); err != nil {
		return Handle{}, fmt.Errorf("commit: save %s: %w", h.Name, err)
	}
	return h, nil
}

type styleKey struct {
	flag Flag
	date bool
}

type rowWriter struct {
	f       *excelize.File
	sheet   string
	columns map[domain.Field]int
	styles  map[styleKey]int
	flagged map[Flag]int
}

func (w *rowWriter) write(row int, rec *domain.OperationRecord, fallbackDate time.Time) error {
	for _, c := range domain.Columns {
		col, ok := w.columns[c.Field]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}

		value, flag := coerce(c, rec.Get(c.Field), fallbackDate)
		if rec.NeedsReview(c.Field) {
			flag = FlagReview
		}

		if err := w.f.SetCellValue(w.sheet, cell, value); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}

		_, isDate := value.(time.Time)
		if flag == FlagNone && !isDate {
			continue
		}
		style, err := w.style(styleKey{flag: flag, date: isDate})
		if err != nil {
			return err
		}
		if err := w.f.SetCellStyle(w.sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style %s: %w", cell, err)
		}
		if flag != FlagNone {
			if w.flagged == nil {
				w.flagged = make(map[Flag]int)
			}
			w.flagged[flag]++
		}
	}
	return nil
}

func (w *rowWriter) style(k styleKey) (int, error) {
	if id, ok := w.styles[k]; ok {
		return id, nil
	}

	s := &excelize.Style{}
	switch k.flag {
	case FlagReview:
		s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{reviewFill}}
	case FlagInferred:
		s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{inferredFill}}
	}
	if k.date {
		numFmt := dateNumFmt
		s.CustomNumFmt = &numFmt
	}

	id, err := w.f.NewStyle(s)
	if err != nil {
		return 0, fmt.Errorf("new style: %w", err)
	}
	w.styles[k] = id
	return id, nil
}

// coerce converts a record value into the cell value for its column.
// Values that cannot be converted are written as text and flagged.
func coerce(c domain.Column, raw string, fallbackDate time.Time) (any, Flag) {
	v := strings.TrimSpace(raw)

	switch c.Kind {
	case domain.KindDate:
		if v == "" {
			if fallbackDate.IsZero() {
				return "", FlagReview
			}
			y, m, d := fallbackDate.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), FlagInferred
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return raw, FlagReview
		}
		return t, FlagNone

	case domain.KindNumber:
		if v == "" {
			return "", FlagReview
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return raw, FlagReview
		}
		return int64(n), FlagNone

	default:
		if v == "" {
			return "", FlagReview
		}
		return raw, FlagNone
	}
}
