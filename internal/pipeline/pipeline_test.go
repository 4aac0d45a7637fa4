package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

type mockExtractor struct {
	CompleteFunc func(ctx context.Context, system, user string) (string, error)
}

func (m *mockExtractor) Complete(ctx context.Context, system, user string) (string, error) {
	return m.CompleteFunc(ctx, system, user)
}

func (m *mockExtractor) Name() string { return "mock" }

type mockAppender struct {
	AppendFunc func(ctx context.Context, current ledger.Handle, records []domain.OperationRecord, fallbackDate time.Time) (ledger.Handle, error)
}

func (m *mockAppender) Append(ctx context.Context, current ledger.Handle, records []domain.OperationRecord, fallbackDate time.Time) (ledger.Handle, error) {
	return m.AppendFunc(ctx, current, records, fallbackDate)
}

type mockSink struct {
	InsertFunc func(ctx context.Context, runID string, records []domain.OperationRecord) error
}

func (m *mockSink) InsertOperations(ctx context.Context, runID string, records []domain.OperationRecord) error {
	return m.InsertFunc(ctx, runID, records)
}

type mockRecorder struct {
	started  []string
	outputs  []string
	outcomes []pipeline.ParseOutcome
}

func (m *mockRecorder) StartRun(ctx context.Context, msg pipeline.Message, extractor string) (string, error) {
	m.started = append(m.started, msg.ID)
	return "run-" + msg.ID, nil
}

func (m *mockRecorder) RecordOutput(ctx context.Context, runID, extractor, completion string) error {
	m.outputs = append(m.outputs, completion)
	return nil
}

func (m *mockRecorder) FinishRun(ctx context.Context, runID string, outcome pipeline.ParseOutcome, runErr error) error {
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

func loadReference(t *testing.T) *reference.Data {
	t.Helper()
	ref, err := reference.Load("../../configs/reference.yaml")
	if err != nil {
		t.Fatalf("reference.Load() error = %v", err)
	}
	return ref
}

const southReport = `10.03 день
2-я подкормка озимых, ПУ "Юг" - 1749/2559
Отд11- 307/307
Отд 12- 671/671`

func TestProcessCollapsesAggregateAndBreakdown(t *testing.T) {
	completion := "```json\n" + `[
  {"Дата": "2025-03-10", "Подразделение": "Юг", "Операция": "2-я подкормка", "Культура": "озимые", "За день, га": "1749", "С начала операции, га": "2559", "Исходное сообщение": "ПУ \"Юг\" - 1749/2559"},
  {"Дата": "2025-03-10", "Подразделение": "Отд 11", "Операция": "2-я подкормка", "Культура": "Озимые", "За день, га": "307", "С начала операции, га": "307", "Исходное сообщение": "Отд11- 307/307"},
  {"Дата": "2025-03-10", "Подразделение": "Отд 12", "Операция": "2-я подкормка", "Культура": "Озимые", "За день, га": "671", "С начала операции, га": "671", "Исходное сообщение": "Отд 12- 671/671"},
  {"Дата": "2025-03-10", "Подразделение": "Отд 16", "Операция": "2-я подкормка", "Культура": "Озимые", "За день, га": "462", "С начала операции, га": "1272", "Исходное сообщение": "Отд 16- 462/1272"},
  {"Дата": "2025-03-10", "Подразделение": "Отд 17", "Операция": "2-я подкормка", "Культура": "Озимые", "За день, га": "309", "С начала операции, га": "309", "Исходное сообщение": "Отд 17- 309/309"}
]` + "\n```"

	var gotUser string
	ext := &mockExtractor{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
		gotUser = user
		return completion, nil
	}}
	p := pipeline.NewProcessor(ext, loadReference(t))

	records, err := p.Process(context.Background(), pipeline.Message{ID: "1", Text: southReport})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if gotUser != southReport {
		t.Errorf("user message = %q, want the report text", gotUser)
	}

	want := []domain.OperationRecord{{
		Date:           "2025-03-10",
		BusinessUnit:   `ПУ "Юг"`,
		Operation:      "2-я подкормка",
		Crop:           "Озимые",
		AreaToday:      "1749.00",
		AreaCumulative: "2559.00",
		SourceExcerpt:  `ПУ "Юг" - 1749/2559`,
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessServiceFailureYieldsPlaceholder(t *testing.T) {
	ext := &mockExtractor{CompleteFunc: func(context.Context, string, string) (string, error) {
		return "", errors.New("connection reset")
	}}
	rec := &mockRecorder{}
	p := pipeline.NewProcessor(ext, loadReference(t), pipeline.WithRunRecorder(rec))

	state, err := p.Analyze(context.Background(), pipeline.Message{ID: "7", Text: southReport})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if state.Outcome != pipeline.ParseServiceFailed {
		t.Errorf("Outcome = %v, want %v", state.Outcome, pipeline.ParseServiceFailed)
	}
	if diff := cmp.Diff([]domain.OperationRecord{domain.Sentinel(southReport)}, state.Records); diff != "" {
		t.Errorf("Records mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"7"}, rec.started); diff != "" {
		t.Errorf("started runs mismatch (-want +got):\n%s", diff)
	}
	if len(rec.outputs) != 0 {
		t.Errorf("recorded outputs = %v, want none for a failed call", rec.outputs)
	}
	if diff := cmp.Diff([]pipeline.ParseOutcome{pipeline.ParseServiceFailed}, rec.outcomes); diff != "" {
		t.Errorf("finished runs mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessCanceledContext(t *testing.T) {
	ext := &mockExtractor{CompleteFunc: func(ctx context.Context, _, _ string) (string, error) {
		return "", ctx.Err()
	}}
	p := pipeline.NewProcessor(ext, loadReference(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, pipeline.Message{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestProcessAndAppendThreadsHandle(t *testing.T) {
	ext := &mockExtractor{CompleteFunc: func(context.Context, string, string) (string, error) {
		return `[{"Подразделение": "Центр", "Операция": "пах", "Культура": "подс", "За день, га": "41", "С начала операции, га": "501"}]`, nil
	}}

	received := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	var calls []ledger.Handle
	app := &mockAppender{AppendFunc: func(ctx context.Context, current ledger.Handle, records []domain.OperationRecord, fallbackDate time.Time) (ledger.Handle, error) {
		calls = append(calls, current)
		if !fallbackDate.Equal(received) {
			t.Errorf("fallbackDate = %v, want %v", fallbackDate, received)
		}
		return ledger.Handle{Dir: current.Dir, Name: current.Name + "+"}, nil
	}}

	var sunk [][]domain.OperationRecord
	sink := &mockSink{InsertFunc: func(ctx context.Context, runID string, records []domain.OperationRecord) error {
		sunk = append(sunk, records)
		return nil
	}}

	p := pipeline.NewProcessor(ext, loadReference(t), pipeline.WithAppender(app), pipeline.WithSinks(sink))

	h := ledger.Handle{Dir: "d", Name: "a"}
	for i := 0; i < 2; i++ {
		next, records, err := p.ProcessAndAppend(context.Background(), h, pipeline.Message{Text: "Центр пах подс\nОтд 5 41/501", ReceivedAt: received})
		if err != nil {
			t.Fatalf("ProcessAndAppend() error = %v", err)
		}
		if len(records) != 1 || records[0].Crop != "Подсолнечник" || records[0].Operation != "Пахота" {
			t.Errorf("records = %+v", records)
		}
		h = next
	}

	want := []ledger.Handle{{Dir: "d", Name: "a"}, {Dir: "d", Name: "a+"}}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("Append() handles mismatch (-want +got):\n%s", diff)
	}
	if h.Name != "a++" {
		t.Errorf("final handle = %q, want a++", h.Name)
	}
	if len(sunk) != 2 {
		t.Errorf("sink called %d times, want 2", len(sunk))
	}
}

func TestProcessAndAppendHeaderNotFound(t *testing.T) {
	ext := &mockExtractor{CompleteFunc: func(context.Context, string, string) (string, error) {
		return `[]`, nil
	}}
	app := &mockAppender{AppendFunc: func(context.Context, ledger.Handle, []domain.OperationRecord, time.Time) (ledger.Handle, error) {
		return ledger.Handle{}, ledger.ErrHeaderNotFound
	}}
	p := pipeline.NewProcessor(ext, loadReference(t), pipeline.WithAppender(app))

	_, _, err := p.ProcessAndAppend(context.Background(), ledger.Handle{Dir: "d", Name: "a"}, pipeline.Message{Text: "x"})
	if !errors.Is(err, ledger.ErrHeaderNotFound) {
		t.Errorf("ProcessAndAppend() error = %v, want ErrHeaderNotFound", err)
	}
}

func TestProcessAndAppendWritesLedger(t *testing.T) {
	ext := &mockExtractor{CompleteFunc: func(context.Context, string, string) (string, error) {
		return "not json at all", nil
	}}
	dir := t.TempDir()
	clock := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	app := ledger.NewAppender(dir, ledger.WithClock(func() time.Time { return clock }))
	p := pipeline.NewProcessor(ext, loadReference(t), pipeline.WithAppender(app))

	text := "Непонятное сообщение"
	h, _, err := p.ProcessAndAppend(context.Background(), ledger.Handle{}, pipeline.Message{Text: text, ReceivedAt: clock})
	if err != nil {
		t.Fatalf("ProcessAndAppend() error = %v", err)
	}
	if !strings.HasSuffix(h.Name, ledger.SnapshotSuffix) {
		t.Errorf("handle = %+v", h)
	}

	records, err := ledger.ReadRecords(h.Path())
	if err != nil {
		t.Fatalf("ReadRecords() error = %v", err)
	}
	want := []domain.OperationRecord{{Date: "2025-03-12", SourceExcerpt: text}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("ledger records mismatch (-want +got):\n%s", diff)
	}
}
