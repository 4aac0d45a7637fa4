// Package reference loads the lookup tables the extraction service is
// instructed with and the records are validated against: the
// department-to-unit map, the canonical operation and crop vocabularies,
// abbreviation hints and worked examples.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/agro-tracker/internal/domain"
)

// ErrMissing is returned when reference data is absent or incomplete.
var ErrMissing = errors.New("reference data missing")

// Unit is a business unit and the departments that roll up into it.
type Unit struct {
	Name        string `yaml:"name" json:"name"`
	Departments []int  `yaml:"departments" json:"departments"`
}

// Example is a hand-labeled message with the rows it should produce.
type Example struct {
	Message string           `yaml:"message" json:"message"`
	Rows    []map[string]any `yaml:"rows" json:"rows"`
}

// Data is the full reference set.
type Data struct {
	Units      []Unit   `yaml:"units" json:"units"`
	Operations []string `yaml:"operations" json:"operations"`
	Crops      []string `yaml:"crops" json:"crops"`

	// Abbreviations maps shorthand seen in messages to canonical words,
	// e.g. "пах" -> "Пахота".
	Abbreviations map[string]string `yaml:"abbreviations" json:"abbreviations"`

	Examples []Example `yaml:"examples" json:"examples"`

	vocabOnce sync.Once
	vocab     *vocabulary
}

// Load reads reference data from a YAML or JSON file. The format is chosen
// by extension; anything that is not .json is read as YAML.
func Load(path string) (*Data, error) {
	if path == "" {
		return nil, fmt.Errorf("Load: %w: no path configured", ErrMissing)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Load: %w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	var d Data
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &d)
	} else {
		err = yaml.Unmarshal(raw, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("Load: decoding %s: %w", path, err)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &d, nil
}

// Validate checks that the tables needed before any extraction request are
// present and builds the lookup indexes.
func (d *Data) Validate() error {
	switch {
	case len(d.Units) == 0:
		return fmt.Errorf("%w: no business units", ErrMissing)
	case len(d.Operations) == 0:
		return fmt.Errorf("%w: no operations vocabulary", ErrMissing)
	case len(d.Crops) == 0:
		return fmt.Errorf("%w: no crops vocabulary", ErrMissing)
	}

	seen := make(map[int]string)
	for _, u := range d.Units {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("%w: unit with empty name", ErrMissing)
		}
		for _, dep := range u.Departments {
			if prev, ok := seen[dep]; ok && prev != u.Name {
				return fmt.Errorf("department %d assigned to both %q and %q", dep, prev, u.Name)
			}
			seen[dep] = u.Name
		}
	}

	d.lookup()
	return nil
}

// UnitForDepartment returns the business unit a department number rolls up into.
func (d *Data) UnitForDepartment(n int) (string, bool) {
	for _, u := range d.Units {
		for _, dep := range u.Departments {
			if dep == n {
				return u.Name, true
			}
		}
	}
	return "", false
}

// DepartmentTable returns department numbers in ascending order paired with
// their unit names.
func (d *Data) DepartmentTable() [][2]string {
	type pair struct {
		dep  int
		unit string
	}
	var pairs []pair
	for _, u := range d.Units {
		for _, dep := range u.Departments {
			pairs = append(pairs, pair{dep, u.Name})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dep < pairs[j].dep })

	out := make([][2]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, [2]string{strconv.Itoa(p.dep), p.unit})
	}
	return out
}

// WithExamples returns a copy of d whose worked examples are replaced.
func (d *Data) WithExamples(examples []Example) *Data {
	cp := &Data{
		Units:         d.Units,
		Operations:    d.Operations,
		Crops:         d.Crops,
		Abbreviations: d.Abbreviations,
		Examples:      examples,
	}
	cp.lookup()
	return cp
}

// Records converts the labeled rows into operation records. Keys that are
// not record fields are dropped; nil becomes an empty string and numbers
// are rendered as text.
func (e Example) Records() []domain.OperationRecord {
	out := make([]domain.OperationRecord, 0, len(e.Rows))
	for _, row := range e.Rows {
		var rec domain.OperationRecord
		for k, v := range row {
			f, ok := domain.LookupField(k)
			if !ok {
				continue
			}
			rec.Set(f, stringify(v))
		}
		out = append(out, rec)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
