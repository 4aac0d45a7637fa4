// Package importer loads ledger snapshots into downstream stores.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// Sink receives imported records. The BigQuery and PostgreSQL stores
// implement it.
type Sink interface {
	InsertOperations(ctx context.Context, runID string, records []domain.OperationRecord) error
}

// Importer reads the body rows of a snapshot and writes them to sinks.
// It is decoupled from CLI and HTTP details so both can reuse it.
type Importer struct {
	sinks     []Sink
	batchSize int
	read      func(path string) ([]domain.OperationRecord, error)
}

// DefaultBatchSize bounds the number of records per sink call.
const DefaultBatchSize = 500

// New returns an Importer writing to sinks.
func New(sinks ...Sink) *Importer {
	return &Importer{
		sinks:     sinks,
		batchSize: DefaultBatchSize,
		read:      ledger.ReadRecords,
	}
}

// Import reads the snapshot at path and writes every record to every sink.
// Placeholder rows are imported too so the warehouse keeps unparsed
// messages. It returns the number of records read.
func (i *Importer) Import(ctx context.Context, path string) (int, error) {
	if len(i.sinks) == 0 {
		return 0, errors.New("Import: no sinks configured")
	}

	log := logger.FromContext(ctx)

	records, err := i.read(path)
	if err != nil {
		return 0, fmt.Errorf("Import: %w", err)
	}

	for start := 0; start < len(records); start += i.batchSize {
		end := min(start+i.batchSize, len(records))
		for _, s := range i.sinks {
			if err := s.InsertOperations(ctx, "", records[start:end]); err != nil {
				return start, fmt.Errorf("Import: rows %d-%d: %w", start, end-1, err)
			}
		}
	}

	log.Info().
		Str("snapshot", path).
		Int("records", len(records)).
		Int("sinks", len(i.sinks)).
		Msg("Snapshot imported")

	return len(records), nil
}
