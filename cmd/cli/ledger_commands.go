package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/console"
	"github.com/dvloznov/agro-tracker/internal/gcsuploader"
	"github.com/dvloznov/agro-tracker/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and initialize the ledger",
	}

	ledgerCmd.AddCommand(newLedgerInitCommand(ctx))
	ledgerCmd.AddCommand(newLedgerCurrentCommand(ctx))
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerArchiveCommand(ctx))

	return ledgerCmd
}

func newLedgerInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the first snapshot if the ledger is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)

			if h, err := ledger.Latest(cfg.Ledger.Dir); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Ledger already initialized: %s\n", h.Path())
				return nil
			} else if !errors.Is(err, ledger.ErrNoSnapshot) {
				return err
			}

			h, err := ledger.NewAppender(cfg.Ledger.Dir, ledger.WithSheetName(cfg.Ledger.Sheet)).Init(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", h.Path())
			return nil
		},
	}
}

func newLedgerCurrentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the path of the latest snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			h, err := ledger.Latest(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Path())
			return nil
		},
	}
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			handles, err := ledger.List(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			if len(handles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots")
				return nil
			}

			rows := make([][]string, 0, len(handles))
			for i, h := range handles {
				ts := ""
				if t, ok := h.Timestamp(); ok {
					ts = t.Format(time.RFC3339)
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), h.Name, ts})
			}
			aligns := []console.Alignment{console.AlignRight, console.AlignLeft, console.AlignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), console.RenderTable([]string{"#", "Snapshot", "Committed"}, rows, aligns))
			return nil
		},
	}
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	var flagged bool

	cmd := &cobra.Command{
		Use:   "show [snapshot]",
		Short: "Print the records of a snapshot (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			h, err := resolveSnapshot(cfg, arg)
			if err != nil {
				return err
			}

			read := ledger.ReadRecords
			if flagged {
				read = ledger.ReadFlagged
			}
			records, err := read(h.Path())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d record(s)\n", h.Name, len(records))
			if len(records) > 0 {
				fmt.Fprintln(out, renderRecords(records))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagged, "flagged", false, "Only rows with cells marked for review")

	return cmd
}

func newLedgerArchiveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive [snapshot]",
		Short: "Upload a snapshot (latest by default) to the GCS bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.GCS.Bucket == "" {
				return errors.New("gcs.bucket must be set")
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

			archiver := gcsuploader.NewSnapshotArchiver(gcsuploader.NewGCSStorageService(), cfg.GCS.Bucket, cfg.GCS.Prefix)
			uri, err := archiver.ArchiveSnapshot(runCtx, h.Path())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", h.Name, uri)
			return nil
		},
	}

	cmd.Flags().String("gcs-bucket", "", "GCS bucket name")
	cmd.Flags().String("gcs-prefix", "", "Object name prefix")

	return cmd
}
