package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-prs/internal/pipeline"
	"github.com/inodb/vibe-prs/internal/stage"
	"github.com/inodb/vibe-prs/internal/trail"
)

func newRunCmd() *cobra.Command {
	var (
		build        string
		cleanScratch bool
	)

	cmd := &cobra.Command{
		Use:   "run <input.vcf>",
		Short: "Run the scoring pipeline on one VCF",
		Example: `  vibe-prs run sample.vcf.gz
  vibe-prs run --build GRCh38 --clean-scratch=false sample.vcf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			executor := stage.NewExecExecutor("")
			executor.SetLogger(logger)

			p := pipeline.New(cfg, executor)
			p.SetLogger(logger)
			// stdout carries only the JSON result
			p.SetTrailOptions(trail.WithConsole(cmd.ErrOrStderr()))

			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			if ledger != nil {
				defer ledger.Close()
				p.SetLedger(ledger)
			}

			res, runErr := p.Run(cmd.Context(), pipeline.Request{
				VariantFile:    args[0],
				ReferenceBuild: build,
				CleanScratch:   cleanScratch,
			})
			if err := writeEnvelope(cmd.OutOrStdout(), res, runErr); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&build, "build", pipeline.DefaultBuild, "reference genome build: GRCh37 or GRCh38")
	cmd.Flags().BoolVar(&cleanScratch, "clean-scratch", true, "delete intermediate files after a successful run")

	return cmd
}

// writeEnvelope prints the invocation result as JSON.
func writeEnvelope(w io.Writer, res *pipeline.Result, runErr error) error {
	var v any = res
	if runErr != nil {
		v = map[string]string{"status": "error", "error": runErr.Error()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
