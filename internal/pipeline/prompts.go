package pipeline

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

// BuildSystemInstruction renders the reference tables, vocabularies and
// worked examples into the instruction sent with every extraction request.
func BuildSystemInstruction(ref *reference.Data) string {
	var b strings.Builder

	b.WriteString("You are an expert in parsing agricultural field reports. ")
	b.WriteString("Extract structured information about every operation in the message.\n\n")

	b.WriteString("=== Department to business unit ===\n")
	for _, row := range ref.DepartmentTable() {
		b.WriteString("Отд " + row[0] + " -> " + row[1] + "\n")
	}
	b.WriteString("\n")

	b.WriteString("=== Operations (use EXACTLY one of these) ===\n")
	for _, op := range ref.Operations {
		b.WriteString("- " + op + "\n")
	}
	b.WriteString("\n")

	b.WriteString("=== Crops (use EXACTLY one of these, or empty string) ===\n")
	for _, c := range ref.Crops {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n")

	if len(ref.Abbreviations) > 0 {
		b.WriteString("=== Abbreviations ===\n")
		abbrs := make([]string, 0, len(ref.Abbreviations))
		for a := range ref.Abbreviations {
			abbrs = append(abbrs, a)
		}
		sort.Strings(abbrs)
		for _, a := range abbrs {
			b.WriteString(`"` + a + `" = "` + ref.Abbreviations[a] + "\"\n")
		}
		b.WriteString("\n")
	}

	for i, ex := range ref.Examples {
		b.WriteString("Example " + strconv.Itoa(i+1) + ":\n```\n" + ex.Message + "\n```\n")
		b.WriteString("Should be parsed into:\n")
		rows := ex.Records()
		for j := range rows {
			if rows[j].SourceExcerpt == "" {
				rows[j].SourceExcerpt = ex.Message
			}
		}
		b.WriteString(renderRows(rows))
		b.WriteString("\n\n")
	}

	b.WriteString("Output format:\n")
	b.WriteString("- Return ONLY a JSON array of objects, one object per operation.\n")
	b.WriteString("- Every object has exactly these keys: ")
	titles := make([]string, 0, len(domain.Columns))
	for _, c := range domain.Columns {
		titles = append(titles, `"`+c.Title+`"`)
	}
	b.WriteString(strings.Join(titles, ", ") + ".\n")
	b.WriteString("- If a value cannot be extracted use an empty string. Never use null or \"N/A\".\n")
	b.WriteString("- Pairs like \"41/501\" mean area today / area since the operation started.\n")
	b.WriteString("- Resolve department numbers to their business unit with the table above.\n")
	b.WriteString("- Emit ONE object per operation and business unit. If the message gives a unit total ")
	b.WriteString("(\"По ПУ\", \"ПоПу\") use it; if it only gives departments, sum them. ")
	b.WriteString("Never emit one object per department.\n")
	b.WriteString("- Put every line of the message that describes the operation, including shared date, ")
	b.WriteString("operation or crop lines, into \"" + domain.FieldSourceExcerpt.Title() + "\".\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")

	return b.String()
}

// BuildUserMessage joins one or more field reports into a single prompt.
func BuildUserMessage(messages ...string) string {
	return strings.Join(messages, BatchSeparator)
}

// renderRows renders records as a JSON array with keys in ledger order.
func renderRows(records []domain.OperationRecord) string {
	var b strings.Builder
	b.WriteString("[\n")
	for i := range records {
		b.WriteString("  {")
		for j, c := range domain.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(c.Title) + ": " + quote(records[i].Get(c.Field)))
		}
		b.WriteString("}")
		if i < len(records)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String()
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

