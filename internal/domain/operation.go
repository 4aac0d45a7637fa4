package domain

import (
	"sort"
	"strings"
)

// Field identifies one column of an operation record. The order of the
// constants is the fixed ledger column order.
type Field int

const (
	FieldDate Field = iota
	FieldBusinessUnit
	FieldOperation
	FieldCrop
	FieldAreaToday
	FieldAreaCumulative
	FieldYieldToday
	FieldYieldCumulative
	FieldSourceExcerpt
)

// Kind describes how a field is stored in the ledger.
type Kind int

const (
	KindDate Kind = iota
	KindText
	KindNumber
)

// Column describes one ledger column.
type Column struct {
	Field Field
	// Title is the header text written to the ledger.
	Title string
	// Key is the snake_case key accepted from the extraction service.
	Key  string
	Kind Kind
}

// Columns is the canonical ledger layout, in order.
var Columns = []Column{
	{FieldDate, "Дата", "date", KindDate},
	{FieldBusinessUnit, "Подразделение", "business_unit", KindText},
	{FieldOperation, "Операция", "operation", KindText},
	{FieldCrop, "Культура", "crop", KindText},
	{FieldAreaToday, "За день, га", "area_today", KindNumber},
	{FieldAreaCumulative, "С начала операции, га", "area_cumulative", KindNumber},
	{FieldYieldToday, "Вал за день, ц", "yield_today", KindNumber},
	{FieldYieldCumulative, "Вал с начала, ц", "yield_cumulative", KindNumber},
	{FieldSourceExcerpt, "Исходное сообщение", "source_excerpt", KindText},
}

// ComparedFields are the columns that carry extracted facts, i.e. all but
// the source excerpt.
var ComparedFields = []Field{
	FieldDate,
	FieldBusinessUnit,
	FieldOperation,
	FieldCrop,
	FieldAreaToday,
	FieldAreaCumulative,
	FieldYieldToday,
	FieldYieldCumulative,
}

// Column returns the layout entry for f.
func (f Field) Column() Column {
	return Columns[f]
}

// String returns the snake_case key of the field.
func (f Field) String() string {
	if f < 0 || int(f) >= len(Columns) {
		return "unknown"
	}
	return Columns[f].Key
}

// Title returns the ledger header text of the field.
func (f Field) Title() string {
	return Columns[f].Title
}

// IsNumeric reports whether the field holds a decimal quantity.
func (f Field) IsNumeric() bool {
	return Columns[f].Kind == KindNumber
}

// LegacyTitles maps header texts written by older ledgers to their fields.
var LegacyTitles = map[string]Field{
	"Начала операции": FieldAreaCumulative,
}

var aliases = buildAliases()

func buildAliases() map[string]Field {
	m := make(map[string]Field, len(Columns)*3)
	for _, c := range Columns {
		m[foldKey(c.Title)] = c.Field
		m[foldKey(c.Key)] = c.Field
	}
	for title, f := range LegacyTitles {
		m[foldKey(title)] = f
	}
	m[foldKey("areaToday")] = FieldAreaToday
	m[foldKey("areaCumulative")] = FieldAreaCumulative
	m[foldKey("yieldToday")] = FieldYieldToday
	m[foldKey("yieldCumulative")] = FieldYieldCumulative
	m[foldKey("businessUnit")] = FieldBusinessUnit
	m[foldKey("operationType")] = FieldOperation
	m[foldKey("operation_type")] = FieldOperation
	m[foldKey("sourceExcerpt")] = FieldSourceExcerpt
	return m
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LookupField resolves a key from the extraction service or a sheet header
// to a field.
func LookupField(key string) (Field, bool) {
	f, ok := aliases[foldKey(key)]
	return f, ok
}

// OperationRecord is one reported agricultural operation.
type OperationRecord struct {
	Date            string `json:"date"`
	BusinessUnit    string `json:"business_unit"`
	Operation       string `json:"operation"`
	Crop            string `json:"crop"`
	AreaToday       string `json:"area_today"`
	AreaCumulative  string `json:"area_cumulative"`
	YieldToday      string `json:"yield_today"`
	YieldCumulative string `json:"yield_cumulative"`
	SourceExcerpt   string `json:"source_excerpt"`

	// Review lists fields whose values need a human look. The ledger marks
	// those cells.
	Review []Field `json:"review,omitempty"`

	// UnknownKeys lists keys sent by the extraction service that are not
	// part of the record schema.
	UnknownKeys []string `json:"unknown_keys,omitempty"`
}

// Get returns the value of f.
func (r *OperationRecord) Get(f Field) string {
	switch f {
	case FieldDate:
		return r.Date
	case FieldBusinessUnit:
		return r.BusinessUnit
	case FieldOperation:
		return r.Operation
	case FieldCrop:
		return r.Crop
	case FieldAreaToday:
		return r.AreaToday
	case FieldAreaCumulative:
		return r.AreaCumulative
	case FieldYieldToday:
		return r.YieldToday
	case FieldYieldCumulative:
		return r.YieldCumulative
	case FieldSourceExcerpt:
		return r.SourceExcerpt
	}
	return ""
}

// Set assigns v to f.
func (r *OperationRecord) Set(f Field, v string) {
	switch f {
	case FieldDate:
		r.Date = v
	case FieldBusinessUnit:
		r.BusinessUnit = v
	case FieldOperation:
		r.Operation = v
	case FieldCrop:
		r.Crop = v
	case FieldAreaToday:
		r.AreaToday = v
	case FieldAreaCumulative:
		r.AreaCumulative = v
	case FieldYieldToday:
		r.YieldToday = v
	case FieldYieldCumulative:
		r.YieldCumulative = v
	case FieldSourceExcerpt:
		r.SourceExcerpt = v
	}
}

// MarkReview adds f to the review set once.
func (r *OperationRecord) MarkReview(f Field) {
	if r.NeedsReview(f) {
		return
	}
	r.Review = append(r.Review, f)
	sort.Slice(r.Review, func(i, j int) bool { return r.Review[i] < r.Review[j] })
}

// NeedsReview reports whether f was marked for review.
func (r *OperationRecord) NeedsReview(f Field) bool {
	for _, x := range r.Review {
		if x == f {
			return true
		}
	}
	return false
}

// IsEmpty reports whether every compared field is blank.
func (r *OperationRecord) IsEmpty() bool {
	for _, f := range ComparedFields {
		if strings.TrimSpace(r.Get(f)) != "" {
			return false
		}
	}
	return true
}

// Sentinel returns the placeholder record used when extraction or parsing
// fails: every field empty except the verbatim source text.
func Sentinel(source string) OperationRecord {
	return OperationRecord{SourceExcerpt: source}
}
