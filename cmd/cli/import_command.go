package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/importer"
	infraBQ "github.com/dvloznov/agro-tracker/internal/infra/bigquery"
	"github.com/dvloznov/agro-tracker/internal/infra/postgres"
)

const (
	sinkBigQuery = "bigquery"
	sinkPostgres = "postgres"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var sinks []string

	cmd := &cobra.Command{
		Use:   "import [snapshot]",
		Short: "Load every row of a snapshot into the warehouse",
		Long: "Rows are inserted as they are; importing the same snapshot twice " +
			"duplicates them.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)

			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			h, err := resolveSnapshot(cfg, arg)
			if err != nil {
				return err
			}

			var targets []importer.Sink
			for _, name := range sinks {
				switch name {
				case sinkBigQuery:
					if err := cfg.ValidateBigQuery(); err != nil {
						return err
					}
					repo, err := infraBQ.NewOperationsRepository(runCtx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
					if err != nil {
						return err
					}
					defer repo.Close()
					targets = append(targets, repo)
				case sinkPostgres:
					if err := cfg.ValidatePostgres(); err != nil {
						return err
					}
					store, err := postgres.NewOperationsStore(runCtx, cfg.Postgres.DSN)
					if err != nil {
						return err
					}
					defer store.Close()
					targets = append(targets, store)
				default:
					return fmt.Errorf("unknown sink %q (want %s or %s)", name, sinkBigQuery, sinkPostgres)
				}
			}

			n, err := importer.New(targets...).Import(runCtx, h.Path())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s) from %s\n", n, h.Name)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sinks, "sink", []string{sinkBigQuery}, "Target stores: bigquery, postgres")
	cmd.Flags().String("bq-project", "", "BigQuery project")
	cmd.Flags().String("bq-dataset", "", "BigQuery dataset")
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")

	return cmd
}
