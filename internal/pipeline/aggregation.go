package pipeline

import (
	"strings"
	"unicode"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/numeric"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

type aggregationKey struct {
	date, unit, operation, crop string
}

func keyOf(r *domain.OperationRecord) aggregationKey {
	return aggregationKey{
		date:      reference.Fold(r.Date),
		unit:      reference.Fold(r.BusinessUnit),
		operation: reference.Fold(r.Operation),
		crop:      reference.Fold(r.Crop),
	}
}

// EnforceAggregation guarantees one record per reported operation. Records
// sharing date, business unit, operation and crop are collapsed:
//
//   - a row the report marks as the unit total ("По ПУ", "ПоПу", or the unit
//     named without a department) is kept alone;
//   - failing that, a row whose area today equals the sum of the others and
//     whose area since start is at least theirs is kept alone;
//   - otherwise the rows are a department breakdown and are replaced by one
//     row holding their sums.
//
// Records without an operation are passed through. Output keeps the order of
// first appearance.
func EnforceAggregation(records []domain.OperationRecord) []domain.OperationRecord {
	groups := make(map[aggregationKey][]int)
	var order []aggregationKey
	var out []domain.OperationRecord
	slot := make(map[aggregationKey]int)

	for i := range records {
		r := &records[i]
		if strings.TrimSpace(r.Operation) == "" {
			out = append(out, *r)
			continue
		}
		k := keyOf(r)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
			slot[k] = len(out)
			out = append(out, domain.OperationRecord{})
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		idx := groups[k]
		group := make([]domain.OperationRecord, len(idx))
		for j, i := range idx {
			group[j] = records[i]
		}
		out[slot[k]] = collapse(group)
	}

	return out
}

func collapse(group []domain.OperationRecord) domain.OperationRecord {
	if len(group) == 1 {
		return group[0]
	}
	if i, ok := markedTotal(group); ok {
		return group[i]
	}
	if i, ok := findAggregate(group); ok {
		return group[i]
	}
	return sumBreakdown(group)
}

// markedTotal returns the only row of the group whose excerpt reports a unit
// total.
func markedTotal(group []domain.OperationRecord) (int, bool) {
	found := -1
	for i := range group {
		if !isUnitTotal(group[i]) {
			continue
		}
		if found >= 0 {
			return 0, false
		}
		found = i
	}
	return found, found >= 0
}

func isUnitTotal(r domain.OperationRecord) bool {
	excerpt := reference.Fold(r.SourceExcerpt)
	if excerpt == "" {
		return false
	}
	words := strings.FieldsFunc(excerpt, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	total := false
	for _, w := range words {
		switch {
		case strings.HasPrefix(w, "отд"):
			return false
		case w == "пу" || w == "попу":
			total = true
		}
	}
	if unit := reference.Fold(r.BusinessUnit); unit != "" && strings.Contains(excerpt, unit) {
		total = true
	}
	return total
}

// findAggregate returns the index of the row whose area today is the sum of
// the others. Its area since start must cover theirs, strictly when the group
// has two rows, since two departments may report identical figures.
func findAggregate(group []domain.OperationRecord) (int, bool) {
	strict := len(group) == 2
	for i := range group {
		candidate := group[i]
		if candidate.AreaToday == "" {
			continue
		}

		var todays, cumulatives []string
		for j := range group {
			if j == i {
				continue
			}
			todays = append(todays, group[j].AreaToday)
			cumulatives = append(cumulatives, group[j].AreaCumulative)
		}

		sum, ok := numeric.Sum(todays...)
		if !ok || !numeric.Equal(sum, candidate.AreaToday) {
			continue
		}
		if !coversCumulative(candidate.AreaCumulative, cumulatives, strict) {
			continue
		}
		return i, true
	}
	return 0, false
}

func coversCumulative(total string, parts []string, strict bool) bool {
	rest, ok := numeric.Sum(parts...)
	if !ok {
		return !strict
	}
	restValue, _ := numeric.Parse(rest)
	totalValue, ok := numeric.Parse(total)
	if !ok {
		return !strict
	}
	if strict {
		return totalValue.GreaterThan(restValue)
	}
	return totalValue.GreaterThanOrEqual(restValue)
}

// sumBreakdown folds department rows into one unit-level row.
func sumBreakdown(group []domain.OperationRecord) domain.OperationRecord {
	out := group[0]
	out.Review = append([]domain.Field(nil), group[0].Review...)
	out.UnknownKeys = nil

	for _, f := range []domain.Field{
		domain.FieldAreaToday,
		domain.FieldAreaCumulative,
		domain.FieldYieldToday,
		domain.FieldYieldCumulative,
	} {
		values := make([]string, len(group))
		for i := range group {
			values[i] = group[i].Get(f)
		}
		if sum, ok := numeric.Sum(values...); ok {
			out.Set(f, sum)
		} else if hasAny(values) {
			out.MarkReview(f)
		}
	}

	var excerpts []string
	seen := make(map[string]bool)
	for i := range group {
		for _, f := range group[i].Review {
			out.MarkReview(f)
		}
		e := strings.TrimSpace(group[i].SourceExcerpt)
		if e != "" && !seen[e] {
			seen[e] = true
			excerpts = append(excerpts, e)
		}
	}
	out.SourceExcerpt = strings.Join(excerpts, "\n")

	return out
}

func hasAny(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
