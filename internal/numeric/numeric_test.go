package numeric

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"dropped point recovered", "1259680", "12596.80"},
		{"five digits only formatted", "37400", "37400.00"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"comma separator", "12,5", "12.50"},
		{"surrounding whitespace", "  307 ", "307.00"},
		{"already canonical", "307.00", "307.00"},
		{"large with point kept", "1259680.5", "1259680.50"},
		{"six digits below threshold", "999999", "999999.00"},
		{"exactly one million not repaired", "1000000", "1000000.00"},
		{"negative dropped point", "-1259680", "-12596.80"},
		{"non numeric returned trimmed", " 5га вымочки ", "5га вымочки"},
		{"fraction rounding", "0.456", "0.46"},
		{"tie rounds away from zero", "0.125", "0.13"},
		{"tie above an even digit", "0.165", "0.17"},
		{"negative tie", "-2,345", "-2.35"},
		{"zero", "0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.token); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
		wantOK bool
	}{
		{"department breakdown", []string{"307", "671", "462", "309"}, "1749.00", true},
		{"skips empty", []string{"25", "", "0,5"}, "25.50", true},
		{"all empty", []string{"", " "}, "", false},
		{"non numeric", []string{"12", "abc"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sum(tt.tokens...)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Sum(%v) = (%q, %v), want (%q, %v)", tt.tokens, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal("307", "307.00") {
		t.Error("Equal(307, 307.00) = false, want true")
	}
	if !Equal("", "") {
		t.Error("Equal(\"\", \"\") = false, want true")
	}
	if Equal("307", "308") {
		t.Error("Equal(307, 308) = true, want false")
	}
}
