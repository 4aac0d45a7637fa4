package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// Backlog returns a job for every inbox message that has not reached the
// ledger yet. A message counts as done when a job for it completed or
// committed a snapshot before failing, so it is never appended twice.
func Backlog(ctx context.Context, in *inbox.Inbox, store jobs.JobStore) ([]*jobs.ProcessMessageJob, error) {
	log := logger.FromContext(ctx)

	known, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return nil, fmt.Errorf("Backlog: %w", err)
	}
	done := make(map[string]bool, len(known))
	for _, j := range known {
		if j.Status == jobs.JobStatusCompleted || j.Snapshot != "" {
			done[j.InboxPath] = true
		}
	}

	paths, err := in.List()
	if err != nil {
		return nil, fmt.Errorf("Backlog: %w", err)
	}

	var out []*jobs.ProcessMessageJob
	for _, p := range paths {
		if done[p] {
			continue
		}
		sender, ts, ok := inbox.ParseName(p)
		if !ok {
			log.Warn().Str("file", p).Msg("Skipping inbox file with unrecognized name")
			continue
		}
		out = append(out, &jobs.ProcessMessageJob{
			InboxPath:  p,
			Sender:     sender,
			ReceivedAt: ts,
		})
	}
	return out, nil
}
