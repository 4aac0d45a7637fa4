package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/app"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
)

func newAppendCommand(ctx *commandContext) *cobra.Command {
	var sender string
	var mirror bool

	cmd := &cobra.Command{
		Use:   "append <file>...",
		Short: "Process message files and append their records to the ledger",
		Long: "Each file is one message. Archived inbox names supply the sender " +
			"and timestamp; for other files the modification time is used.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateExtractionKey(); err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)

			stack, err := app.Build(runCtx, cfg, app.Options{Mirror: mirror})
			if err != nil {
				return err
			}
			defer stack.Close()

			var lock *ledger.WriterLock
			if cfg.Ledger.Lock {
				lock = ledger.NewWriterLock(cfg.Ledger.Dir)
			}
			writer := app.NewLedgerWriter(stack.Processor, ledger.Handle{}, lock)

			out := cmd.OutOrStdout()
			for _, path := range args {
				msg, err := fileMessage(path, sender)
				if err != nil {
					return err
				}
				handle, records, err := writer.Write(runCtx, msg)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s: %d record(s) -> %s\n", filepath.Base(path), len(records), handle.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "Sender for files without an inbox name")
	cmd.Flags().BoolVar(&mirror, "mirror", true, "Mirror records to the configured BigQuery, PostgreSQL and GCS targets")
	cmd.Flags().Bool("lock", false, "Hold the ledger directory lock while appending")
	cmd.Flags().String("fallback-date", "", "Date for records without one: received or today")

	return cmd
}

func fileMessage(path, sender string) (pipeline.Message, error) {
	text, err := inbox.Read(path)
	if err != nil {
		return pipeline.Message{}, err
	}
	msg := pipeline.Message{ID: filepath.Base(path), Sender: sender, Text: text}

	if s, ts, ok := inbox.ParseName(path); ok {
		if msg.Sender == "" {
			msg.Sender = s
		}
		msg.ReceivedAt = ts
		return msg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return pipeline.Message{}, fmt.Errorf("stat %s: %w", path, err)
	}
	msg.ReceivedAt = info.ModTime().UTC()
	return msg, nil
}
