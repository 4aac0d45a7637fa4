package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/jobs/inmemory"
)

func TestBacklog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	in := inbox.New(dir)
	ts := time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)

	var paths []string
	for _, content := range []string{"первое", "второе", "третье", "четвёртое"} {
		p, err := in.Save(ctx, inbox.Message{Sender: "79001234567", Timestamp: ts, Content: content})
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := inmemory.NewStore()
	seed := []*jobs.ProcessMessageJob{
		{JobID: "done", InboxPath: paths[0], Status: jobs.JobStatusCompleted},
		{JobID: "appended", InboxPath: paths[1], Status: jobs.JobStatusFailed, Snapshot: "s.xlsx"},
		{JobID: "failed-early", InboxPath: paths[2], Status: jobs.JobStatusFailed},
	}
	for _, j := range seed {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Backlog(ctx, in, store)
	if err != nil {
		t.Fatalf("Backlog() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Backlog() returned %d jobs, want 2", len(got))
	}
	for i, want := range []string{paths[2], paths[3]} {
		if got[i].InboxPath != want {
			t.Errorf("job %d path = %q, want %q", i, got[i].InboxPath, want)
		}
		if got[i].Sender != "79001234567" || !got[i].ReceivedAt.Equal(ts) {
			t.Errorf("job %d = %+v", i, got[i])
		}
	}
}
