// Package postgres mirrors extracted operations into a PostgreSQL table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/numeric"
)

const insertOperationSQL = `
	INSERT INTO operations (
		run_id, operation_date, date_text,
		business_unit, operation, crop,
		area_today_ha, area_cumulative_ha, yield_today_c, yield_cumulative_c,
		source_excerpt, review_fields
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// OperationsStore writes operations to PostgreSQL through a connection pool.
type OperationsStore struct {
	pool *pgxpool.Pool
}

// NewOperationsStore connects to dsn and verifies the connection.
func NewOperationsStore(ctx context.Context, dsn string) (*OperationsStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOperationsStore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("NewOperationsStore: ping: %w", err)
	}
	return &OperationsStore{pool: pool}, nil
}

// Close releases the pool.
func (s *OperationsStore) Close() error {
	s.pool.Close()
	return nil
}

// InsertOperations inserts all records in one transaction.
func (s *OperationsStore) InsertOperations(ctx context.Context, runID string, records []domain.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("InsertOperations: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertOperationSQL, OperationArgs(runID, rec)...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("InsertOperations: insert row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("InsertOperations: close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("InsertOperations: commit: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Debug().Int("rows", len(records)).Msg("Operations written to postgres")
	return nil
}

// OperationArgs returns the insert parameters for one record, in column
// order. Dates and numbers that do not parse are stored as NULL and listed
// in review_fields.
func OperationArgs(runID string, rec domain.OperationRecord) []any {
	review := make(map[domain.Field]bool)
	for _, f := range rec.Review {
		review[f] = true
	}

	var run pgtype.Text
	if runID != "" {
		run = pgtype.Text{String: runID, Valid: true}
	}

	var date pgtype.Date
	var dateText pgtype.Text
	if rec.Date != "" {
		if t, err := time.Parse("2006-01-02", rec.Date); err == nil {
			date = pgtype.Date{Time: t, Valid: true}
		} else {
			dateText = pgtype.Text{String: rec.Date, Valid: true}
			review[domain.FieldDate] = true
		}
	}

	quantity := func(f domain.Field) pgtype.Numeric {
		var n pgtype.Numeric
		raw := rec.Get(f)
		if raw == "" {
			return n
		}
		v, ok := numeric.Parse(raw)
		if !ok || n.Scan(v.String()) != nil {
			review[f] = true
			return pgtype.Numeric{}
		}
		return n
	}

	areaToday := quantity(domain.FieldAreaToday)
	areaCumulative := quantity(domain.FieldAreaCumulative)
	yieldToday := quantity(domain.FieldYieldToday)
	yieldCumulative := quantity(domain.FieldYieldCumulative)

	reviewFields := []string{}
	for _, c := range domain.Columns {
		if review[c.Field] {
			reviewFields = append(reviewFields, c.Key)
		}
	}

	return []any{
		run, date, dateText,
		rec.BusinessUnit, rec.Operation, rec.Crop,
		areaToday, areaCumulative, yieldToday, yieldCumulative,
		rec.SourceExcerpt, reviewFields,
	}
}
