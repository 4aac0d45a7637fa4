package ledger

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/dvloznov/agro-tracker/internal/domain"
)

const (
	// HeaderScanRows bounds the header search.
	HeaderScanRows = 50

	// HeaderMinMatches is how many canonical titles a row needs to be the header.
	HeaderMinMatches = 7
)

var (
	// ErrHeaderNotFound means no row within the scan window looks like the
	// ledger header. The ledger is not written.
	ErrHeaderNotFound = errors.New("ledger header not found")

	// ErrLedgerEmpty means the sheet has no rows at all. It is always
	// wrapped together with ErrHeaderNotFound.
	ErrLedgerEmpty = errors.New("ledger sheet is empty")
)

// HeaderStatus tags the outcome of the header search.
type HeaderStatus int

const (
	HeaderNotFound HeaderStatus = iota
	HeaderFound
	LedgerEmpty
)

func (s HeaderStatus) String() string {
	switch s {
	case HeaderFound:
		return "found"
	case LedgerEmpty:
		return "empty"
	default:
		return "not_found"
	}
}

// HeaderResult is the result of FindHeader.
type HeaderResult struct {
	Status HeaderStatus

	// Row is the 1-based header row when Status is HeaderFound.
	Row int

	// Columns maps each recognized field to its 1-based column.
	Columns map[domain.Field]int
}

// Err converts a non-found result into the error returned by Append.
func (r HeaderResult) Err() error {
	switch r.Status {
	case HeaderFound:
		return nil
	case LedgerEmpty:
		return errors.Join(ErrHeaderNotFound, ErrLedgerEmpty)
	default:
		return ErrHeaderNotFound
	}
}

// AnchorColumn returns the column used to find the first free row: the
// business unit, then the date, then the first column.
func (r HeaderResult) AnchorColumn() int {
	if c, ok := r.Columns[domain.FieldBusinessUnit]; ok {
		return c
	}
	if c, ok := r.Columns[domain.FieldDate]; ok {
		return c
	}
	return 1
}

var folder = cases.Fold()

// titleFields maps folded header titles to fields. Only the titles the
// appender writes, plus legacy spellings, count as header cells.
var titleFields = buildTitleFields()

func buildTitleFields() map[string]domain.Field {
	m := make(map[string]domain.Field, len(domain.Columns)+len(domain.LegacyTitles))
	for _, c := range domain.Columns {
		m[foldTitle(c.Title)] = c.Field
	}
	for title, f := range domain.LegacyTitles {
		m[foldTitle(title)] = f
	}
	return m
}

func foldTitle(s string) string {
	return folder.String(norm.NFC.String(strings.Join(strings.Fields(s), " ")))
}

func headerField(cell string) (domain.Field, bool) {
	s := foldTitle(cell)
	if s == "" {
		return 0, false
	}
	f, ok := titleFields[s]
	return f, ok
}

// FindHeader scans the first HeaderScanRows rows and returns the first row
// in which at least HeaderMinMatches cells carry a canonical column title.
func FindHeader(rows [][]string) HeaderResult {
	if len(rows) == 0 {
		return HeaderResult{Status: LedgerEmpty}
	}

	limit := len(rows)
	if limit > HeaderScanRows {
		limit = HeaderScanRows
	}

	for i := 0; i < limit; i++ {
		matches := 0
		cols := make(map[domain.Field]int)
		for j, cell := range rows[i] {
			f, ok := headerField(cell)
			if !ok {
				continue
			}
			matches++
			if _, dup := cols[f]; !dup {
				cols[f] = j + 1
			}
		}
		if matches >= HeaderMinMatches {
			return HeaderResult{Status: HeaderFound, Row: i + 1, Columns: cols}
		}
	}

	return HeaderResult{Status: HeaderNotFound}
}

// FirstFreeRow returns the first row below the header whose anchor cell is
// empty.
func FirstFreeRow(rows [][]string, header HeaderResult) int {
	anchor := header.AnchorColumn() - 1
	row := header.Row + 1
	for row-1 < len(rows) {
		cells := rows[row-1]
		if anchor >= len(cells) || strings.TrimSpace(cells[anchor]) == "" {
			break
		}
		row++
	}
	return row
}
