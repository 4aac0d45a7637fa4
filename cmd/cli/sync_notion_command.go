package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/notionsync"
)

func newSyncNotionCommand(ctx *commandContext) *cobra.Command {
	var opts notionsync.Options

	cmd := &cobra.Command{
		Use:   "sync-notion [snapshot]",
		Short: "Publish rows marked for review to the Notion review board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateNotion(); err != nil {
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

			client := notionsync.NewNotionClient(cfg.Notion.Token)
			res, err := notionsync.SyncSnapshot(runCtx, client, cfg.Notion.DatabaseID, h.Path(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: created %d, updated %d, archived %d, failed %d\n",
				h.Name, res.Created, res.Updated, res.Archived, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d card(s) failed to sync", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Log the changes without writing to Notion")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "Archive cards whose rows are no longer flagged")
	cmd.Flags().String("notion-db", "", "Notion database ID")

	return cmd
}
