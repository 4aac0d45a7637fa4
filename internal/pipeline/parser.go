package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// ParseOutcome tags how a completion was turned into records.
type ParseOutcome int

const (
	// ParseFailed means neither stage produced usable objects.
	ParseFailed ParseOutcome = iota
	// ParseStrictOK means the completion decoded as-is.
	ParseStrictOK
	// ParseRepairedOK means the completion decoded after bracket extraction.
	ParseRepairedOK
	// ParseServiceFailed means the extraction service returned an error and
	// nothing was parsed.
	ParseServiceFailed
)

func (o ParseOutcome) String() string {
	switch o {
	case ParseStrictOK:
		return "strict"
	case ParseRepairedOK:
		return "repaired"
	case ParseServiceFailed:
		return "service_failed"
	default:
		return "failed"
	}
}

// ParseResult is the output of one parsing stage.
type ParseResult struct {
	Outcome ParseOutcome
	Objects []map[string]any
	Err     error
}

// OK reports whether the stage produced objects.
func (r ParseResult) OK() bool {
	return r.Outcome == ParseStrictOK || r.Outcome == ParseRepairedOK
}

// ParseOutput is what ResponseParser hands to the rest of the pipeline.
type ParseOutput struct {
	Outcome ParseOutcome
	Records []domain.OperationRecord
}

// Fallback reports whether the records are the placeholder for an
// unparseable completion.
func (o ParseOutput) Fallback() bool {
	return o.Outcome == ParseFailed || o.Outcome == ParseServiceFailed
}

// ParseStrict decodes the completion directly. A single top-level object is
// treated as a one-element list.
func ParseStrict(raw string) ParseResult {
	objs, err := decodeObjects([]byte(raw))
	if err != nil {
		return ParseResult{Outcome: ParseFailed, Err: fmt.Errorf("ParseStrict: %w", err)}
	}
	return ParseResult{Outcome: ParseStrictOK, Objects: objs}
}

// ParseRepaired makes one bounded attempt to recover a list from a noisy
// completion: newlines are removed and the text from the first '[' through
// the last ']' is decoded. When the completion holds no brackets, a fenced
// single object is tried instead.
func ParseRepaired(raw string) ParseResult {
	collapsed := strings.NewReplacer("\r", "", "\n", "").Replace(raw)

	start := strings.Index(collapsed, "[")
	end := strings.LastIndex(collapsed, "]")
	if start != -1 && end > start {
		objs, err := decodeObjects([]byte(collapsed[start : end+1]))
		if err != nil {
			return ParseResult{Outcome: ParseFailed, Err: fmt.Errorf("ParseRepaired: bracket extraction: %w", err)}
		}
		return ParseResult{Outcome: ParseRepairedOK, Objects: objs}
	}

	clean := cleanModelJSON(raw)
	if strings.HasPrefix(clean, "{") {
		objs, err := decodeObjects([]byte(clean))
		if err == nil {
			return ParseResult{Outcome: ParseRepairedOK, Objects: objs}
		}
		return ParseResult{Outcome: ParseFailed, Err: fmt.Errorf("ParseRepaired: fenced object: %w", err)}
	}

	return ParseResult{Outcome: ParseFailed, Err: errors.New("ParseRepaired: no JSON list found")}
}

// ResponseParser turns raw completions into validated operation records.
// It never returns an error: anything it cannot read becomes a single
// placeholder record carrying the source text.
type ResponseParser struct{}

// NewResponseParser creates a ResponseParser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// Parse runs the strict stage, then the repair stage, then falls back to the
// placeholder record. source is the text kept on the placeholder; when empty
// the completion itself is used.
func (p *ResponseParser) Parse(ctx context.Context, completion, source string) ParseOutput {
	log := logger.FromContext(ctx)
	if source == "" {
		source = completion
	}

	res := ParseStrict(completion)
	if !res.OK() {
		log.Debug().Err(res.Err).Msg("Strict parse failed, attempting repair")
		res = ParseRepaired(completion)
	}
	if !res.OK() {
		log.Warn().
			Err(res.Err).
			Int("completion_len", len(completion)).
			Msg("Completion could not be parsed, emitting placeholder record")
		return ParseOutput{Outcome: ParseFailed, Records: FallbackRecords(source)}
	}

	records := make([]domain.OperationRecord, 0, len(res.Objects))
	for i, obj := range res.Objects {
		rec := toRecord(obj)
		if len(rec.UnknownKeys) > 0 {
			log.Warn().
				Int("index", i).
				Strs("unknown_keys", rec.UnknownKeys).
				Msg("Completion object has keys outside the record schema")
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		log.Warn().Str("stage", res.Outcome.String()).Msg("Completion decoded to an empty list, emitting placeholder record")
		return ParseOutput{Outcome: res.Outcome, Records: FallbackRecords(source)}
	}

	log.Debug().
		Str("stage", res.Outcome.String()).
		Int("records", len(records)).
		Msg("Completion parsed")

	return ParseOutput{Outcome: res.Outcome, Records: records}
}

// FallbackRecords returns the single placeholder record used when extraction
// or parsing fails.
func FallbackRecords(source string) []domain.OperationRecord {
	return []domain.OperationRecord{domain.Sentinel(source)}
}

// decodeObjects decodes data as either one JSON object or a list of JSON
// objects. Trailing content after the value is an error.
func decodeObjects(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode: trailing data after JSON value")
	}

	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("decode: element %d is %T, want object", i, item)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode: top-level value is %T, want object or list", v)
	}
}

// cleanModelJSON strips Markdown code fences the model sometimes wraps its
// answer in.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
