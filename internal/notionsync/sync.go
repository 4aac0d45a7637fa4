package notionsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// BatchSize is the number of records logged as one batch.
const BatchSize = 100

// Options controls a sync run.
type Options struct {
	// DryRun logs the changes without calling Notion for writes.
	DryRun bool
	// Prune archives cards whose rows are no longer flagged in the snapshot.
	Prune bool
}

// Result counts what a sync run did.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncSnapshot publishes the flagged rows of the snapshot at path.
func SyncSnapshot(ctx context.Context, notionClient NotionService, notionDBID, path string, opts Options) (Result, error) {
	records, err := ledger.ReadFlagged(path)
	if err != nil {
		return Result{}, fmt.Errorf("SyncSnapshot: %w", err)
	}
	return SyncRecords(ctx, notionClient, notionDBID, filepath.Base(path), records, opts)
}

// SyncRecords publishes records to the review board. Cards are keyed by
// RowKey: a row that already has a card only gets its snapshot refreshed,
// so repeated runs do not duplicate cards. Records without review marks are
// ignored. Failures on single cards are logged and counted; the run goes on.
func SyncRecords(ctx context.Context, notionClient NotionService, notionDBID, snapshot string, records []domain.OperationRecord, opts Options) (Result, error) {
	if notionDBID == "" {
		return Result{}, errors.New("SyncRecords: notion database id is required")
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("snapshot", snapshot).
		Int("records", len(records)).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting review board sync")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return Result{}, fmt.Errorf("SyncRecords: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if key := extractRowKey(page); key != "" {
			existing[key] = string(page.ID)
		}
	}
	log.Info().Int("cards", len(existing)).Msg("Retrieved existing review cards")

	var res Result
	wanted := make(map[string]bool)

	for i := 0; i < len(records); i += BatchSize {
		end := min(i+BatchSize, len(records))
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Processing batch")

		for _, rec := range records[i:end] {
			if len(rec.Review) == 0 {
				continue
			}
			key := RowKey(rec)
			if wanted[key] {
				continue
			}
			wanted[key] = true

			rowLog := log.With().Str("row_key", key[:12]).Logger()

			if pageID, ok := existing[key]; ok {
				if opts.DryRun {
					rowLog.Info().Str("page_id", pageID).Msg("[DRY RUN] Would refresh review card")
					res.Updated++
					continue
				}
				if _, err := notionClient.UpdatePage(ctx, pageID, SnapshotProperties(snapshot)); err != nil {
					rowLog.Warn().Err(err).Str("page_id", pageID).Msg("Failed to refresh review card")
					res.Failed++
					continue
				}
				res.Updated++
				continue
			}

			if opts.DryRun {
				rowLog.Info().Str("source_excerpt", rec.SourceExcerpt).Msg("[DRY RUN] Would create review card")
				res.Created++
				continue
			}
			page, err := notionClient.CreatePage(ctx, notionDBID, RecordToNotionProperties(rec, key, snapshot))
			if err != nil {
				rowLog.Warn().Err(err).Msg("Failed to create review card")
				res.Failed++
				continue
			}
			rowLog.Info().Str("page_id", string(page.ID)).Msg("Created review card")
			res.Created++
		}
	}

	if opts.Prune {
		for key, pageID := range existing {
			if wanted[key] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("page_id", pageID).Msg("[DRY RUN] Would archive stale review card")
				res.Archived++
				continue
			}
			if err := notionClient.ArchivePage(ctx, pageID); err != nil {
				log.Warn().Err(err).Str("page_id", pageID).Msg("Failed to archive stale review card")
				res.Failed++
				continue
			}
			res.Archived++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Review board sync completed")

	return res, nil
}

func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
