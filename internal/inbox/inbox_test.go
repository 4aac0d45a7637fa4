package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveNumbersMessagesPerSender(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "messages")
	in := New(dir)
	ctx := context.Background()
	ts := time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)

	inputs := []Message{
		{Sender: "79001234567", Timestamp: ts, Content: "Отд 12 сев 25/475"},
		{Sender: "79001234567", Timestamp: ts.Add(time.Hour), Content: "второе"},
		{Sender: "79007654321", Timestamp: ts, Content: "другой"},
	}
	var got []string
	for _, m := range inputs {
		path, err := in.Save(ctx, m)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got = append(got, filepath.Base(path))
	}

	want := []string{
		"79001234567_1_15_07_10_03_2025.txt",
		"79001234567_2_15_08_10_03_2025.txt",
		"79007654321_1_15_07_10_03_2025.txt",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Save() names mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(filepath.Join(dir, want[0]))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(raw) != "Отд 12 сев 25/475\n" {
		t.Errorf("file content = %q", raw)
	}

	text, err := Read(filepath.Join(dir, want[0]))
	if err != nil || text != "Отд 12 сев 25/475" {
		t.Errorf("Read() = %q, %v", text, err)
	}

	list, err := in.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Errorf("List() = %v, want 3 files", list)
	}
}

func TestSaveSkipsTakenNumber(t *testing.T) {
	dir := t.TempDir()
	in := New(dir)
	ts := time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)

	// One existing file makes the next number 2, which is already taken.
	if err := os.WriteFile(filepath.Join(dir, "bob_2_15_07_10_03_2025.txt"), []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := in.Save(context.Background(), Message{Sender: "bob", Timestamp: ts, Content: "new"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "bob_3_15_07_10_03_2025.txt" {
		t.Errorf("Save() = %s", filepath.Base(path))
	}
	old, _ := os.ReadFile(filepath.Join(dir, "bob_2_15_07_10_03_2025.txt"))
	if string(old) != "old\n" {
		t.Errorf("existing file overwritten: %q", old)
	}
}

func TestSaveRejectsEmptySender(t *testing.T) {
	in := New(t.TempDir())
	if _, err := in.Save(context.Background(), Message{Sender: "  ", Content: "x"}); err == nil {
		t.Error("Save() error = nil, want error for empty sender")
	}
}

func TestSafeSender(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"79001234567", "79001234567"},
		{"../etc", "_etc"},
		{`a\b/c`, "a_b_c"},
		{" alice ", "alice"},
	}
	for _, tt := range tests {
		if got := safeSender(tt.in); got != tt.want {
			t.Errorf("safeSender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2025-03-10T07:15:00.000Z")
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)) {
		t.Errorf("ParseTimestamp() = %v", got)
	}
	if _, err := ParseTimestamp("10.03.2025"); err == nil {
		t.Error("ParseTimestamp() error = nil, want error")
	}
}

func TestListMissingDir(t *testing.T) {
	got, err := New(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || got != nil {
		t.Errorf("List() = %v, %v; want nil, nil", got, err)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantSender string
		wantTS     time.Time
		wantOK     bool
	}{
		{"plain", "messages/79001234567_2_15_07_10_03_2025.txt", "79001234567", time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC), true},
		{"sender with underscore", "a_b_1_00_09_01_04_2025.txt", "a_b", time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC), true},
		{"not txt", "79001234567_1_15_07_10_03_2025.json", "", time.Time{}, false},
		{"no number", "79001234567_15_07_10_03_2025.txt", "", time.Time{}, false},
		{"bad timestamp", "79001234567_1_99_07_10_03_2025.txt", "", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, ts, ok := ParseName(tt.path)
			if ok != tt.wantOK || sender != tt.wantSender || !ts.Equal(tt.wantTS) {
				t.Errorf("ParseName(%q) = %q, %v, %v; want %q, %v, %v", tt.path, sender, ts, ok, tt.wantSender, tt.wantTS, tt.wantOK)
			}
		})
	}
}

func TestParseNameRoundTrip(t *testing.T) {
	in := New(t.TempDir())
	ts := time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)
	path, err := in.Save(context.Background(), Message{Sender: "79001234567", Timestamp: ts, Content: "сев"})
	if err != nil {
		t.Fatal(err)
	}
	sender, got, ok := ParseName(path)
	if !ok || sender != "79001234567" || !got.Equal(ts) {
		t.Errorf("ParseName(%q) = %q, %v, %v", path, sender, got, ok)
	}
}
