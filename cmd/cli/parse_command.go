package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/app"
	"github.com/dvloznov/agro-tracker/internal/gcsuploader"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

func newParseCommand(ctx *commandContext) *cobra.Command {
	var raw bool
	var sender string

	cmd := &cobra.Command{
		Use:   "parse <file|gs://bucket/object|->",
		Short: "Extract records from one message without touching the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateExtractionKey(); err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)

			text, err := readMessage(runCtx, cmd, args[0])
			if err != nil {
				return err
			}

			ref, err := reference.Load(cfg.Reference.Path)
			if err != nil {
				return err
			}
			extractor, err := app.NewExtractor(runCtx, cfg.Extraction)
			if err != nil {
				return err
			}

			id := filepath.Base(args[0])
			if gcsuploader.IsGCSURI(args[0]) {
				id = gcsuploader.ExtractFilenameFromGCSURI(args[0])
			}
			state, err := pipeline.NewProcessor(extractor, ref).Analyze(runCtx, pipeline.Message{
				ID:         id,
				Sender:     sender,
				Text:       text,
				ReceivedAt: time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, state.Completion)
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Outcome: %s\n", state.Outcome)
			fmt.Fprintln(out, renderRecords(state.Records))

			rows := make([]int, 0, len(state.Problems))
			for i := range state.Problems {
				rows = append(rows, i)
			}
			sort.Ints(rows)
			for _, i := range rows {
				fmt.Fprintf(out, "row %d: %v\n", i+1, state.Problems[i])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw completion before the records")
	cmd.Flags().StringVar(&sender, "sender", "", "Sender recorded with the message")

	return cmd
}

// readMessage reads a message from a local file, a gs:// object or stdin.
func readMessage(ctx context.Context, cmd *cobra.Command, src string) (string, error) {
	if src == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	var storage gcsuploader.StorageService
	if gcsuploader.IsGCSURI(src) {
		storage = gcsuploader.NewGCSStorageService()
	}
	b, err := gcsuploader.ReadSource(ctx, storage, src)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
