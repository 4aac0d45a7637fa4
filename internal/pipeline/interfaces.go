package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
)

// Extractor provides an interface for the external natural-language
// extraction service. It is an opaque text-in/text-out call.
type Extractor interface {
	// Complete sends the system instruction and the user message and returns
	// the raw completion text.
	Complete(ctx context.Context, systemInstruction, userMessage string) (string, error)

	// Name identifies the backend and model in logs and run records.
	Name() string
}

// LedgerAppender appends records to a ledger snapshot and returns the handle
// of the new snapshot.
type LedgerAppender interface {
	Append(ctx context.Context, current ledger.Handle, records []domain.OperationRecord, fallbackDate time.Time) (ledger.Handle, error)
}

// SnapshotArchiver copies a committed snapshot to long-term storage.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, localPath string) (string, error)
}

// RecordSink receives the records of every processed message.
type RecordSink interface {
	InsertOperations(ctx context.Context, runID string, records []domain.OperationRecord) error
}

// RunRecorder keeps an audit trail of extraction calls.
type RunRecorder interface {
	StartRun(ctx context.Context, msg Message, extractor string) (string, error)
	RecordOutput(ctx context.Context, runID, extractor, completion string) error
	FinishRun(ctx context.Context, runID string, outcome ParseOutcome, runErr error) error
}
