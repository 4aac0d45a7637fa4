package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
)

// MessageProcessor is the part of pipeline.Processor the writer needs.
type MessageProcessor interface {
	ProcessAndAppend(ctx context.Context, current ledger.Handle, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error)
}

// LedgerWriter serializes appends to one ledger and carries the snapshot
// handle from each append to the next.
//
// With a WriterLock other processes may append to the same directory, so
// the remembered handle is not trusted and the latest snapshot is resolved
// under the lock instead.
type LedgerWriter struct {
	proc MessageProcessor
	lock *ledger.WriterLock

	mu      sync.Mutex
	current ledger.Handle
}

// NewLedgerWriter returns a writer starting at start. A zero start resolves
// to the latest snapshot on the first append. lock may be nil.
func NewLedgerWriter(proc MessageProcessor, start ledger.Handle, lock *ledger.WriterLock) *LedgerWriter {
	return &LedgerWriter{proc: proc, lock: lock, current: start}
}

// Current returns the handle of the last committed snapshot.
func (w *LedgerWriter) Current() ledger.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Write processes msg and appends its records.
func (w *LedgerWriter) Write(ctx context.Context, msg pipeline.Message) (ledger.Handle, []domain.OperationRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.current
	if w.lock != nil {
		if err := w.lock.Lock(ctx); err != nil {
			return current, nil, fmt.Errorf("Write: %w", err)
		}
		defer func() {
			if err := w.lock.Unlock(); err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Msg("Failed to release ledger lock")
			}
		}()
		current = ledger.Handle{}
	}

	next, records, err := w.proc.ProcessAndAppend(ctx, current, msg)
	if !next.IsZero() {
		w.current = next
	}
	if err != nil {
		return next, records, fmt.Errorf("Write: %w", err)
	}
	return next, records, nil
}

// HandleJob is a jobs.JobHandler that processes archived inbox messages.
func (w *LedgerWriter) HandleJob(ctx context.Context, j jobs.Job) error {
	job, ok := j.(*jobs.ProcessMessageJob)
	if !ok {
		return fmt.Errorf("HandleJob: unsupported job type %q", j.GetType())
	}

	text, err := inbox.Read(job.InboxPath)
	if err != nil {
		return fmt.Errorf("HandleJob: %w", err)
	}

	handle, records, err := w.Write(ctx, pipeline.Message{
		ID:         filepath.Base(job.InboxPath),
		Sender:     job.Sender,
		Text:       text,
		ReceivedAt: job.ReceivedAt,
	})
	job.Records = len(records)
	job.Snapshot = handle.Name
	if err != nil {
		return fmt.Errorf("HandleJob: %w", err)
	}
	return nil
}
