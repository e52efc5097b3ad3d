package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-prs/internal/config"
	"github.com/inodb/vibe-prs/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [sample]",
		Short: "List recorded runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			if ledger == nil {
				return fmt.Errorf("run ledger is disabled: set store.path")
			}
			defer ledger.Close()

			var sample string
			if len(args) == 1 {
				sample = args[0]
			}
			runs, err := ledger.ListRuns(cmd.Context(), sample, limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), runs, currentPanels(cfg))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show (0 for all)")

	return cmd
}

// currentPanels fingerprints the configured scoring panel of each build.
// Builds whose panel cannot be read are left out.
func currentPanels(cfg *config.Config) map[string]store.FileFingerprint {
	panels := make(map[string]store.FileFingerprint)
	for _, build := range cfg.Builds() {
		ref, ok := cfg.Reference(build)
		if !ok {
			continue
		}
		if fp, err := store.StatFile(ref.ScoreFile); err == nil {
			canonical, _ := config.CastToBuild(build)
			panels[canonical] = fp
		}
	}
	return panels
}

// writeHistory prints runs as a table. A run scored with a panel that has
// since changed on disk is marked "(changed)".
func writeHistory(w io.Writer, runs []store.Run, current map[string]store.FileFingerprint) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSAMPLE\tBUILD\tSTATUS\tSCORE\tSNPS\tUSED\tDURATION\tPANEL\tRUN")
	for _, r := range runs {
		score := "-"
		if r.Score.Valid {
			score = fmt.Sprintf("%.6g", r.Score.Float64)
		}
		status := r.Status
		if r.Stage != "" {
			status += " (" + r.Stage + ")"
		}
		panel := "-"
		if r.Panel.Path != "" {
			panel = r.Panel.String()
			if fp, ok := current[r.Build]; ok && !fp.Matches(r.Panel) {
				panel += " (changed)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Sample, r.Build, status, score,
			r.NumberOfSNPs, r.NumberOfSNPsUsed,
			r.Duration.Round(100*time.Millisecond), panel, r.ID)
	}
	return tw.Flush()
}
