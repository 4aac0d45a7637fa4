package notionsync

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/numeric"
)

// Board property names.
const (
	PropertyMessage      = "Message"
	PropertyRowKey       = "Row Key"
	PropertyDate         = "Date"
	PropertyDateText     = "Date Text"
	PropertyBusinessUnit = "Business Unit"
	PropertyOperation    = "Operation"
	PropertyCrop         = "Crop"
	PropertyReview       = "Review"
	PropertySnapshot     = "Snapshot"
	PropertyStatus       = "Status"
)

// StatusOpen is the status given to new board cards.
const StatusOpen = "Open"

// Notion rejects rich text items longer than this.
const maxTextLength = 2000

var quantityProperties = map[domain.Field]string{
	domain.FieldAreaToday:       "Area Today (ha)",
	domain.FieldAreaCumulative:  "Area Cumulative (ha)",
	domain.FieldYieldToday:      "Yield Today (c)",
	domain.FieldYieldCumulative: "Yield Cumulative (c)",
}

// RowKey identifies a row by its content: the hex sha256 of every column
// value in ledger order. Equal rows in different snapshots share a key.
func RowKey(rec domain.OperationRecord) string {
	h := sha256.New()
	for i, c := range domain.Columns {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(strings.TrimSpace(rec.Get(c.Field))))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RecordToNotionProperties converts a flagged record into board properties.
// Quantities that do not parse are left out; the Review list names them.
func RecordToNotionProperties(rec domain.OperationRecord, key, snapshot string) notionapi.Properties {
	props := notionapi.Properties{
		PropertyMessage: notionapi.TitleProperty{
			Title: richText(rec.SourceExcerpt),
		},
		PropertyRowKey: notionapi.RichTextProperty{
			RichText: richText(key),
		},
		PropertyStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: StatusOpen},
		},
	}

	if rec.Date != "" {
		if t, err := time.Parse("2006-01-02", rec.Date); err == nil {
			d := notionapi.Date(t)
			props[PropertyDate] = notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &d},
			}
		} else {
			props[PropertyDateText] = notionapi.RichTextProperty{RichText: richText(rec.Date)}
		}
	}

	if rec.BusinessUnit != "" {
		props[PropertyBusinessUnit] = notionapi.RichTextProperty{RichText: richText(rec.BusinessUnit)}
	}

	// Select options cannot contain commas.
	if rec.Operation != "" {
		props[PropertyOperation] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: strings.ReplaceAll(rec.Operation, ",", " ")},
		}
	}
	if rec.Crop != "" {
		props[PropertyCrop] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: strings.ReplaceAll(rec.Crop, ",", " ")},
		}
	}

	for f, name := range quantityProperties {
		v, ok := numeric.Parse(rec.Get(f))
		if !ok {
			continue
		}
		props[name] = notionapi.NumberProperty{Number: v.InexactFloat64()}
	}

	if len(rec.Review) > 0 {
		opts := make([]notionapi.Option, 0, len(rec.Review))
		for _, f := range rec.Review {
			opts = append(opts, notionapi.Option{Name: f.String()})
		}
		props[PropertyReview] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}

	if snapshot != "" {
		props[PropertySnapshot] = notionapi.RichTextProperty{RichText: richText(snapshot)}
	}

	return props
}

// SnapshotProperties is the update applied to a card seen again in a newer
// snapshot.
func SnapshotProperties(snapshot string) notionapi.Properties {
	return notionapi.Properties{
		PropertySnapshot: notionapi.RichTextProperty{RichText: richText(snapshot)},
	}
}

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxTextLength {
		s = string(r[:maxTextLength])
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// extractRowKey reads the row key of an existing board card.
func extractRowKey(page notionapi.Page) string {
	prop, ok := page.Properties[PropertyRowKey]
	if !ok {
		return ""
	}
	rt, ok := prop.(*notionapi.RichTextProperty)
	if !ok || len(rt.RichText) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range rt.RichText {
		b.WriteString(t.PlainText)
	}
	return b.String()
}
