package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/georgeannie/mlops-framework/internal/gate"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/replay"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/spf13/cobra"
)

// #region replay
func newReplayCmd(opts *options) *cobra.Command {
	var (
		thresholdsPath string
		model          string
		fixturePath    string
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-gate recorded decisions against a threshold set and report flips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if fixturePath != "" {
				return runFixture(out, fixturePath)
			}
			if thresholdsPath == "" {
				return errors.New("one of --thresholds or --fixture is required")
			}
			thresholds, err := loadThresholds(thresholdsPath)
			if err != nil {
				return err
			}

			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			db, err := tracking.OpenDB(cfg.Audit.Path)
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer db.Close()
			audit, err := logging.NewSQLAuditLog(db)
			if err != nil {
				return err
			}
			entries, err := audit.Recent(cmd.Context(), model, limit)
			if err != nil {
				return err
			}
			cases, err := replay.FromAudit(entries)
			if err != nil {
				return err
			}
			results := replay.Replay(cases, thresholds)
			if err := printResults(out, results); err != nil {
				return err
			}
			s := replay.Summarize(results)
			fmt.Fprintf(out, "total %d, accepted %d, rejected %d, flips %d (%d newly accepted, %d newly rejected)\n",
				s.Total, s.Accepted, s.Rejected, s.Flips, s.NewlyAccepted, s.NewlyRejected)
			return nil
		},
	}
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", "", "JSON file with the candidate threshold set")
	cmd.Flags().StringVar(&model, "model", "", "replay only this model's decisions")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "check a JSON fixture of gate cases instead of the audit log")
	cmd.Flags().IntVar(&limit, "limit", 100, "most recent audit entries to replay")
	return cmd
}

func loadThresholds(path string) (gate.ThresholdSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}
	var t gate.ThresholdSet
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if t == nil {
		t = gate.ThresholdSet{}
	}
	return t, nil
}

func runFixture(out io.Writer, path string) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	mismatches := f.Check()
	if len(mismatches) == 0 {
		fmt.Fprintf(out, "fixture ok: %d cases\n", len(f.Cases))
		return nil
	}
	if err := printResults(out, mismatches); err != nil {
		return err
	}
	return fmt.Errorf("fixture %s: %d of %d cases disagree with the gate", path, len(mismatches), len(f.Cases))
}

func printResults(w io.Writer, results []replay.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tMODEL\tRUN\tRECORDED\tREPLAYED\tFLIP\tREASON")
	for _, r := range results {
		flip := ""
		if r.Flipped {
			flip = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Case.ID, dash(r.Case.Model), dash(r.Case.RunID),
			outcome(r.Case.Accepted), outcome(r.Decision.Accepted()), flip, r.Decision.Reason)
	}
	return tw.Flush()
}

func outcome(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}

// #endregion replay
