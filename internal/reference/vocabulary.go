package reference

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	folder = cases.Fold()

	// departmentRef matches "Отд 11", "отд.11", "отделение 11" and a bare "11".
	departmentRef = regexp.MustCompile(`^(?:отд(?:еление)?\.?\s*)?(\d{1,3})$`)

	unitNoise = strings.NewReplacer(`"`, "", "«", "", "»", "", "'", "", " ", "")
)

// Fold returns the comparison form of s: NFC-normalized, case-folded and
// trimmed, with inner whitespace runs collapsed to one space.
func Fold(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(folder.String(s)), " ")
}

type vocabulary struct {
	operations map[string]string
	crops      map[string]string
	units      map[string]string
}

func newVocabulary(d *Data) *vocabulary {
	v := &vocabulary{
		operations: make(map[string]string, len(d.Operations)),
		crops:      make(map[string]string, len(d.Crops)),
		units:      make(map[string]string, len(d.Units)),
	}
	for _, op := range d.Operations {
		v.operations[Fold(op)] = op
	}
	for _, c := range d.Crops {
		v.crops[Fold(c)] = c
	}
	for _, u := range d.Units {
		v.units[unitKey(u.Name)] = u.Name
	}
	// Abbreviations resolve into whichever vocabulary holds the expansion.
	for abbr, full := range d.Abbreviations {
		key := Fold(full)
		if canon, ok := v.operations[key]; ok {
			v.operations[Fold(abbr)] = canon
		}
		if canon, ok := v.crops[key]; ok {
			v.crops[Fold(abbr)] = canon
		}
	}
	return v
}

// unitKey strips the "ПУ" prefix, quotes and spaces so that `ПУ "Север"`,
// "ПУ Север" and "Север" compare equal.
func unitKey(s string) string {
	k := Fold(s)
	k = strings.TrimPrefix(k, "пу")
	return unitNoise.Replace(k)
}

// lookup builds the vocabulary index on first use. The tables must not
// change afterwards.
func (d *Data) lookup() *vocabulary {
	d.vocabOnce.Do(func() { d.vocab = newVocabulary(d) })
	return d.vocab
}

// CanonicalOperation maps an operation name or abbreviation onto the
// vocabulary entry.
func (d *Data) CanonicalOperation(s string) (string, bool) {
	canon, ok := d.lookup().operations[Fold(s)]
	return canon, ok
}

// CanonicalCrop maps a crop name or abbreviation onto the vocabulary entry.
func (d *Data) CanonicalCrop(s string) (string, bool) {
	canon, ok := d.lookup().crops[Fold(s)]
	return canon, ok
}

// ResolveUnit maps a business unit name or a department reference onto the
// canonical business unit name.
func (d *Data) ResolveUnit(s string) (string, bool) {
	if canon, ok := d.lookup().units[unitKey(s)]; ok {
		return canon, true
	}
	if m := departmentRef.FindStringSubmatch(Fold(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return d.UnitForDepartment(n)
		}
	}
	return "", false
}
