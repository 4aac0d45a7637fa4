// Package ledger maintains the append-only xlsx operations ledger. Every
// append writes a new snapshot file; earlier snapshots are never modified.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// SnapshotSuffix ends every snapshot file name.
	SnapshotSuffix = "_ledger.xlsx"

	// TimestampLayout formats the snapshot timestamp token.
	TimestampLayout = "20060102T150405.000000000"

	// DefaultSheetName is the sheet created for a new ledger.
	DefaultSheetName = "Отчёт"
)

var (
	// ErrNoSnapshot is returned when the ledger directory holds no snapshot.
	ErrNoSnapshot = errors.New("no ledger snapshot found")
)

// Handle identifies one immutable ledger snapshot.
type Handle struct {
	Dir  string `json:"dir"`
	Name string `json:"name"`
}

// Path returns the snapshot file path.
func (h Handle) Path() string {
	return filepath.Join(h.Dir, h.Name)
}

// IsZero reports whether h names no snapshot.
func (h Handle) IsZero() bool {
	return h.Name == ""
}

// Timestamp returns the time encoded in the snapshot name.
func (h Handle) Timestamp() (time.Time, bool) {
	return parseSnapshotName(h.Name)
}

func snapshotName(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout) + SnapshotSuffix
}

func parseSnapshotName(name string) (time.Time, bool) {
	token, ok := strings.CutSuffix(name, SnapshotSuffix)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimestampLayout, token)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Latest returns the most recent snapshot in dir.
func Latest(dir string) (Handle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, ErrNoSnapshot
		}
		return Handle{}, fmt.Errorf("Latest: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := parseSnapshotName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return Handle{}, ErrNoSnapshot
	}

	sort.Strings(names)
	return Handle{Dir: dir, Name: names[len(names)-1]}, nil
}

// List returns every snapshot in dir, oldest first.
func List(dir string) ([]Handle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("List: read dir: %w", err)
	}
	var out []Handle
	for _, e := range entries {
		if _, ok := parseSnapshotName(e.Name()); ok && !e.IsDir() {
			out = append(out, Handle{Dir: dir, Name: e.Name()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
