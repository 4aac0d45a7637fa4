package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
)

type mockProcessor struct {
	ProcessAndAppendFunc func(ctx context.Context, current ledger.Handle, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error)
}

func (m *mockProcessor) ProcessAndAppend(ctx context.Context, current ledger.Handle, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
	return m.ProcessAndAppendFunc(ctx, current, msg)
}

// chainProcessor returns snapshot-N handles and records the handle passed in.
func chainProcessor(dir string, seen *[]ledger.Handle) *mockProcessor {
	n := 0
	return &mockProcessor{
		ProcessAndAppendFunc: func(_ context.Context, current ledger.Handle, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
			*seen = append(*seen, current)
			n++
			rec := domain.OperationRecord{}
			rec.Set(domain.FieldSourceExcerpt, msg.Text)
			return ledger.Handle{Dir: dir, Name: fmt.Sprintf("snapshot-%d", n)}, []domain.OperationRecord{rec}, nil
		},
	}
}

func TestLedgerWriterThreadsHandle(t *testing.T) {
	var seen []ledger.Handle
	start := ledger.Handle{Dir: "d", Name: "snapshot-0"}
	w := NewLedgerWriter(chainProcessor("d", &seen), start, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := w.Write(ctx, pipeline.Message{Text: "сев"}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	want := []string{"snapshot-0", "snapshot-1", "snapshot-2"}
	for i, h := range seen {
		if h.Name != want[i] {
			t.Errorf("call %d got handle %q, want %q", i, h.Name, want[i])
		}
	}
	if got := w.Current().Name; got != "snapshot-3" {
		t.Errorf("Current() = %q, want snapshot-3", got)
	}
}

func TestLedgerWriterWithLockResolvesLatest(t *testing.T) {
	dir := t.TempDir()
	var seen []ledger.Handle
	w := NewLedgerWriter(chainProcessor(dir, &seen), ledger.Handle{Dir: dir, Name: "stale"}, ledger.NewWriterLock(dir))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, _, err := w.Write(ctx, pipeline.Message{Text: "пахота"}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	for i, h := range seen {
		if !h.IsZero() {
			t.Errorf("call %d got handle %+v, want zero handle under lock", i, h)
		}
	}
	if got := w.Current().Name; got != "snapshot-2" {
		t.Errorf("Current() = %q, want snapshot-2", got)
	}
}

func TestLedgerWriterKeepsHandleOnPartialFailure(t *testing.T) {
	sinkErr := errors.New("sink unavailable")
	proc := &mockProcessor{
		ProcessAndAppendFunc: func(_ context.Context, current ledger.Handle, _ pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
			return ledger.Handle{Dir: "d", Name: "committed"}, nil, sinkErr
		},
	}
	w := NewLedgerWriter(proc, ledger.Handle{}, nil)

	_, _, err := w.Write(context.Background(), pipeline.Message{})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Write() error = %v, want %v", err, sinkErr)
	}
	if got := w.Current().Name; got != "committed" {
		t.Errorf("Current() = %q, want the committed snapshot", got)
	}
}

func TestHandleJob(t *testing.T) {
	in := inbox.New(t.TempDir())
	received := time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)
	path, err := in.Save(context.Background(), inbox.Message{Sender: "79990001122", Timestamp: received, Content: "Пахота 15/300"})
	if err != nil {
		t.Fatal(err)
	}

	var got pipeline.Message
	proc := &mockProcessor{
		ProcessAndAppendFunc: func(_ context.Context, _ ledger.Handle, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
			got = msg
			return ledger.Handle{Dir: "d", Name: "next"}, make([]domain.OperationRecord, 2), nil
		},
	}
	w := NewLedgerWriter(proc, ledger.Handle{}, nil)

	job := &jobs.ProcessMessageJob{JobID: "j1", InboxPath: path, Sender: "79990001122", ReceivedAt: received}
	if err := w.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob() error = %v", err)
	}

	if got.Text != "Пахота 15/300" || got.Sender != "79990001122" || !got.ReceivedAt.Equal(received) {
		t.Errorf("message = %+v", got)
	}
	if got.ID != filepath.Base(path) {
		t.Errorf("message ID = %q, want %q", got.ID, filepath.Base(path))
	}
	if job.Records != 2 || job.Snapshot != "next" {
		t.Errorf("job = records %d snapshot %q, want 2 and next", job.Records, job.Snapshot)
	}
}

func TestHandleJobMissingFile(t *testing.T) {
	called := false
	proc := &mockProcessor{
		ProcessAndAppendFunc: func(context.Context, ledger.Handle, pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
			called = true
			return ledger.Handle{}, nil, nil
		},
	}
	w := NewLedgerWriter(proc, ledger.Handle{}, nil)

	job := &jobs.ProcessMessageJob{InboxPath: filepath.Join(t.TempDir(), "gone.txt")}
	err := w.HandleJob(context.Background(), job)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("HandleJob() error = %v, want not exist", err)
	}
	if called {
		t.Error("processor called for a missing message")
	}
}

func TestNewExtractor(t *testing.T) {
	ex, err := NewExtractor(context.Background(), config.Extraction{Provider: config.ProviderOpenAI, Model: "openai/gpt-4o-mini", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	if !strings.Contains(ex.Name(), "gpt-4o-mini") {
		t.Errorf("Name() = %q", ex.Name())
	}

	if _, err := NewExtractor(context.Background(), config.Extraction{Provider: "claude"}); err == nil {
		t.Error("NewExtractor() accepted an unknown provider")
	}
}

func TestTodayAppenderOverridesFallback(t *testing.T) {
	dir := t.TempDir()
	a, pa := NewAppender(config.Ledger{Dir: dir, FallbackDate: config.FallbackToday})
	if pa == pipeline.LedgerAppender(a) {
		t.Fatal("NewAppender() returned the plain appender for fallback_date today")
	}
	ta := pa.(*todayAppender)
	ta.now = func() time.Time { return time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC) }

	rec := domain.OperationRecord{Operation: "Пахота"}
	h, err := pa.Append(context.Background(), ledger.Handle{}, []domain.OperationRecord{rec}, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := ledger.ReadRecords(h.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Get(domain.FieldDate) != "2025-04-02" {
		t.Errorf("records = %+v, want date 2025-04-02", got)
	}

	if _, pa := NewAppender(config.Ledger{Dir: dir, FallbackDate: config.FallbackReceived}); pa == nil {
		t.Error("NewAppender() returned nil")
	} else if _, ok := pa.(*ledger.Appender); !ok {
		t.Errorf("NewAppender() = %T, want *ledger.Appender for fallback_date received", pa)
	}
}
