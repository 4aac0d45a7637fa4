package pipeline

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/numeric"
)

// notAvailable is the placeholder some models emit instead of an empty value.
const notAvailable = "N/A"

// toRecord maps one decoded completion object onto the record schema.
// Keys are matched against the ledger titles and their snake_case aliases;
// anything else is collected in UnknownKeys and not carried further. When
// two keys map to the same field the first non-empty value in key order wins.
func toRecord(obj map[string]any) domain.OperationRecord {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rec domain.OperationRecord
	for _, k := range keys {
		f, ok := domain.LookupField(k)
		if !ok {
			rec.UnknownKeys = append(rec.UnknownKeys, k)
			continue
		}
		if rec.Get(f) != "" {
			continue
		}

		value, structured := cleanValue(obj[k])
		if structured {
			rec.MarkReview(f)
		}
		if f.IsNumeric() && value != "" {
			value = numeric.Normalize(value)
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				rec.MarkReview(f)
			}
		}
		rec.Set(f, value)
	}

	return rec
}

// cleanValue renders a decoded JSON value as text. null and "N/A" become
// empty strings. structured is true for objects and lists, which never
// belong in a record field.
func cleanValue(v any) (s string, structured bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.EqualFold(strings.TrimSpace(t), notAvailable) {
			return "", false
		}
		return t, false
	case json.Number:
		return t.String(), false
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), false
	case bool:
		return strconv.FormatBool(t), false
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", true
		}
		return strings.TrimSpace(string(b)), true
	}
}
