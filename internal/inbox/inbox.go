// Package inbox archives raw incoming messages as text files.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/agro-tracker/internal/logger"
)

// NameLayout formats the message timestamp in archived file names as
// minute_hour_day_month_year.
const NameLayout = "04_15_02_01_2006"

// maxAttempts bounds the retries when a concurrent save takes a number.
const maxAttempts = 100

// Message is a raw message as received.
type Message struct {
	Sender    string
	Timestamp time.Time
	Content   string
}

// Inbox stores messages under a single directory.
type Inbox struct {
	dir string
	mu  sync.Mutex
}

// New creates an Inbox rooted at dir.
func New(dir string) *Inbox {
	return &Inbox{dir: dir}
}

// Dir returns the inbox directory.
func (in *Inbox) Dir() string {
	return in.dir
}

// Save writes msg.Content to {sender}_{n}_{timestamp}.txt, where n is one
// more than the number of files already naming the sender. It returns the
// path of the new file.
func (in *Inbox) Save(ctx context.Context, msg Message) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	sender := safeSender(msg.Sender)
	if sender == "" {
		return "", errors.New("Save: sender is required")
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return "", fmt.Errorf("Save: create inbox dir: %w", err)
	}

	n, err := in.countFor(sender)
	if err != nil {
		return "", fmt.Errorf("Save: %w", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := fmt.Sprintf("%s_%d_%s.txt", sender, n+1+attempt, ts.Format(NameLayout))
		path := filepath.Join(in.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("Save: create %s: %w", name, err)
		}
		if _, err := f.WriteString(msg.Content + "\n"); err != nil {
			f.Close()
			return "", fmt.Errorf("Save: write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("Save: close %s: %w", name, err)
		}

		log := logger.FromContext(ctx)

		log.Debug().Str("file", name).Msg("Message archived")
		return path, nil
	}

	return "", fmt.Errorf("Save: no free file name for sender %s", sender)
}

// List returns the archived message paths in name order.
func (in *Inbox) List() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("List: read inbox dir: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		out = append(out, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// countFor counts the files whose name contains sender.
func (in *Inbox) countFor(sender string) (int, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if strings.Contains(e.Name(), sender) {
			n++
		}
	}
	return n, nil
}

// safeSender strips characters that would escape the inbox directory.
func safeSender(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimLeft(s, "."))
}

// ParseName recovers the sender and timestamp from an archived file name.
// Timestamps have minute precision and are read as UTC.
func ParseName(path string) (sender string, ts time.Time, ok bool) {
	base, found := strings.CutSuffix(filepath.Base(path), ".txt")
	if !found {
		return "", time.Time{}, false
	}
	parts := strings.Split(base, "_")
	tsParts := strings.Count(NameLayout, "_") + 1
	if len(parts) < tsParts+2 {
		return "", time.Time{}, false
	}

	ts, err := time.Parse(NameLayout, strings.Join(parts[len(parts)-tsParts:], "_"))
	if err != nil {
		return "", time.Time{}, false
	}
	if _, err := strconv.Atoi(parts[len(parts)-tsParts-1]); err != nil {
		return "", time.Time{}, false
	}
	sender = strings.Join(parts[:len(parts)-tsParts-1], "_")
	if sender == "" {
		return "", time.Time{}, false
	}
	return sender, ts, true
}

// ParseTimestamp parses the ISO-8601 timestamp sent by the messaging
// gateway, e.g. 2025-03-10T07:15:00.000Z.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseTimestamp: %w", err)
	}
	return t, nil
}

// Read returns the text of an archived message without the trailing newline
// added by Save.
func Read(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("Read: %w", err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}
