package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

func testReference(t *testing.T) *reference.Data {
	t.Helper()
	ref := &reference.Data{
		Units: []reference.Unit{
			{Name: `ПУ "Север"`, Departments: []int{3, 7}},
			{Name: `ПУ "Юг"`, Departments: []int{11, 12, 16, 17}},
		},
		Operations:    []string{"Сев", "Пахота", "2-я подкормка"},
		Crops:         []string{"Озимые", "Сахарная свекла"},
		Abbreviations: map[string]string{"сах св": "Сахарная свекла", "пах": "Пахота"},
		Examples: []reference.Example{{
			Message: "Отд 12 сев сах св 25/475",
			Rows: []map[string]any{{
				"Подразделение":         `ПУ "Юг"`,
				"Операция":              "Сев",
				"Культура":              "Сахарная свекла",
				"За день, га":           25,
				"С начала операции, га": 475,
			}},
		}},
	}
	if err := ref.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return ref
}

func TestRecordValidator(t *testing.T) {
	v := NewRecordValidator(testReference(t))

	tests := []struct {
		name    string
		in      domain.OperationRecord
		want    domain.OperationRecord
		wantErr string
	}{
		{
			name: "canonical spelling",
			in:   domain.OperationRecord{BusinessUnit: "юг", Operation: "СЕВ", Crop: "сах св"},
			want: domain.OperationRecord{BusinessUnit: `ПУ "Юг"`, Operation: "Сев", Crop: "Сахарная свекла"},
		},
		{
			name: "department reference",
			in:   domain.OperationRecord{BusinessUnit: "Отд 7", Operation: "пах"},
			want: domain.OperationRecord{BusinessUnit: `ПУ "Север"`, Operation: "Пахота"},
		},
		{
			name: "unknown values flagged",
			in:   domain.OperationRecord{BusinessUnit: "Отд 99", Operation: "Боронование", Crop: "Рис"},
			want: domain.OperationRecord{
				BusinessUnit: "Отд 99",
				Operation:    "Боронование",
				Crop:         "Рис",
				Review:       []domain.Field{domain.FieldBusinessUnit, domain.FieldOperation, domain.FieldCrop},
			},
			wantErr: "invalid operation",
		},
		{
			name:    "unknown keys reported",
			in:      domain.OperationRecord{Operation: "Сев", UnknownKeys: []string{"note"}},
			want:    domain.OperationRecord{Operation: "Сев", UnknownKeys: []string{"note"}},
			wantErr: "unrecognized keys: note",
		},
		{
			name: "placeholder untouched",
			in:   domain.Sentinel("текст"),
			want: domain.Sentinel("текст"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.in
			err := v.Validate(&rec)
			if tt.wantErr == "" && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, rec); diff != "" {
				t.Errorf("Validate() record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateAll(t *testing.T) {
	v := NewRecordValidator(testReference(t))
	records := []domain.OperationRecord{
		{Operation: "Сев"},
		{Operation: "Полив"},
	}

	problems := v.ValidateAll(records)
	if len(problems) != 1 || problems[1] == nil {
		t.Errorf("ValidateAll() = %v, want one problem at index 1", problems)
	}
	if !records[1].NeedsReview(domain.FieldOperation) {
		t.Error("records[1] operation not flagged")
	}
}
