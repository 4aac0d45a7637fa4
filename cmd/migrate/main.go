package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

// Target is a database that versioned migrations are applied to.
type Target interface {
	// EnsureSchemaMigrations creates the bookkeeping table if needed.
	EnsureSchemaMigrations(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
	Execute(ctx context.Context, m Migration) error
	Record(ctx context.Context, m Migration, appliedBy string) error
	Close() error
}

func main() {
	fs := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	target := fs.String("target", "bigquery", "Migration target: bigquery or postgres")
	appliedBy := fs.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := fs.String("migrations", "", "Path to migrations directory (default migrations/<target>)")
	fs.String("bq-project", "", "GCP project ID")
	fs.String("bq-dataset", "", "BigQuery dataset ID")
	fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fs.String("log-level", "", "Log level")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	dir := *migrationsDir
	if dir == "" {
		dir = "migrations/" + *target
	}

	var t Target
	var replacements map[string]string
	switch *target {
	case "bigquery":
		if err := cfg.ValidateBigQuery(); err != nil {
			log.Fatal().Err(err).Msg("Invalid BigQuery configuration")
		}
		t, err = newBigQueryTarget(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		replacements = map[string]string{
			"{{PROJECT_ID}}": cfg.BigQuery.Project,
			"{{DATASET_ID}}": cfg.BigQuery.Dataset,
		}
	case "postgres":
		if err := cfg.ValidatePostgres(); err != nil {
			log.Fatal().Err(err).Msg("Invalid PostgreSQL configuration")
		}
		t, err = newPostgresTarget(ctx, cfg.Postgres.DSN)
	default:
		log.Fatal().Str("target", *target).Msg("Unknown migration target")
	}
	if err != nil {
		log.Fatal().Err(err).Str("target", *target).Msg("Failed to connect")
	}
	defer t.Close()

	migrations, err := readMigrations(dir, replacements)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	applied, err := run(ctx, t, migrations, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Migrations applied")
	}
}

// run applies every migration not yet recorded by t, in version order, and
// returns how many were applied. A checksum change on an applied migration
// is logged, not re-run.
func run(ctx context.Context, t Target, migrations []Migration, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := t.EnsureSchemaMigrations(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	appliedMigrations, err := t.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied migrations: %w", err)
	}
	log.Info().Int("count", len(appliedMigrations)).Msg("Found already applied migrations")

	appliedVersions := make(map[int]AppliedMigration)
	for _, am := range appliedMigrations {
		appliedVersions[am.Version] = am
	}

	count := 0
	for _, m := range migrations {
		id := fmt.Sprintf("%04d_%s", m.Version, m.Name)
		if am, ok := appliedVersions[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				log.Warn().Str("migration", id).Msg("Applied migration changed on disk")
			}
			log.Debug().Str("migration", id).Msg("Skipping applied migration")
			continue
		}

		log.Info().Str("migration", id).Msg("Running migration")
		if err := t.Execute(ctx, m); err != nil {
			return count, fmt.Errorf("execute %s: %w", id, err)
		}
		if err := t.Record(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("record %s: %w", id, err)
		}
		count++
	}
	return count, nil
}
