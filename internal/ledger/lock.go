package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = ".ledger.lock"

// WriterLock is an advisory file lock on a ledger directory. Processes that
// append to the same ledger hold it around each Append.
type WriterLock struct {
	fl *flock.Flock
}

// NewWriterLock returns the lock for dir.
func NewWriterLock(dir string) *WriterLock {
	return &WriterLock{fl: flock.New(filepath.Join(dir, lockFileName))}
}

// Lock blocks until the lock is held or ctx is done.
func (l *WriterLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("WriterLock: create dir: %w", err)
	}
	ok, err := l.fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("WriterLock: %w", err)
	}
	if !ok {
		return fmt.Errorf("WriterLock: %s is held by another writer", l.fl.Path())
	}
	return nil
}

// Unlock releases the lock.
func (l *WriterLock) Unlock() error {
	return l.fl.Unlock()
}
