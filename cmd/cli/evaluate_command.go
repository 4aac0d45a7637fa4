package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/app"
	"github.com/dvloznov/agro-tracker/internal/evaluate"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	var showErrors bool
	var output string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure extraction accuracy against the labeled examples",
		Long: "The labeled examples are split with a seeded shuffle: train-size of them " +
			"go into the prompt and the rest are extracted and compared cell by cell.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateExtractionKey(); err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)
			log := logger.FromContext(runCtx)

			ref, err := reference.Load(cfg.Reference.Path)
			if err != nil {
				return err
			}
			train, test := evaluate.Split(ref.Examples, cfg.Evaluation.TrainSize, cfg.Evaluation.Seed)
			if len(test) == 0 {
				return errors.New("no examples left for testing; lower --train-size")
			}
			log.Info().Int("train", len(train)).Int("test", len(test)).Int64("seed", cfg.Evaluation.Seed).Msg("Split examples")

			extractor, err := app.NewExtractor(runCtx, cfg.Extraction)
			if err != nil {
				return err
			}
			proc := pipeline.NewProcessor(extractor, ref.WithExamples(train))

			pairs, err := evaluate.Collect(runCtx, proc, test)
			if err != nil {
				return err
			}
			res := evaluate.Compare(pairs)

			if output == "" {
				output = filepath.Join(cfg.Evaluation.OutputDir, "test_results_"+time.Now().Format("20060102_150405")+".xlsx")
			}
			if err := evaluate.WriteWorkbook(output, res); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := evaluate.RenderSummary(out, res); err != nil {
				return err
			}
			if showErrors {
				if err := evaluate.RenderErrors(out, res); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Report: %s\n", output)
			return nil
		},
	}

	cmd.Flags().Int("train-size", 0, "Examples placed in the prompt")
	cmd.Flags().Int64("seed", 0, "Shuffle seed for the split")
	cmd.Flags().String("output-dir", "", "Directory for the report workbook")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Report path (overrides --output-dir)")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "Print the differences of every message")

	return cmd
}
