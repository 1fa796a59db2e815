package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/georgeannie/mlops-framework/internal/promotion"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/spf13/cobra"
)

// #region inspect
type runRow struct {
	RunID             string `json:"run_id"`
	Experiment        string `json:"experiment"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	StartTime         string `json:"start_time"`
	EvaluationStatus  string `json:"evaluation_status,omitempty"`
	RegisteredVersion string `json:"registered_version,omitempty"`
}

type inspectReport struct {
	Runs   []runRow                `json:"runs"`
	Models []tracking.ModelVersion `json:"model_versions"`
}

func newInspectCmd(opts *options) *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recent runs with their promotion state and registered versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := opts.openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			exps, err := env.Tracker.ListExperiments(ctx)
			if err != nil {
				return err
			}
			report := inspectReport{Runs: []runRow{}, Models: []tracking.ModelVersion{}}
			for _, exp := range exps {
				runs, err := env.Tracker.SearchRuns(ctx, exp.ID, last)
				if err != nil {
					return err
				}
				for _, r := range runs {
					report.Runs = append(report.Runs, runRow{
						RunID:             r.ID,
						Experiment:        exp.Name,
						Name:              r.Name,
						Status:            string(r.Status),
						StartTime:         r.StartTime.Format("2006-01-02 15:04:05"),
						EvaluationStatus:  r.Tag(promotion.TagEvaluationStatus),
						RegisteredVersion: r.Tag(promotion.TagRegisteredVer),
					})
				}
			}
			for _, m := range env.Config.Models {
				versions, err := env.Tracker.ListModelVersions(ctx, m.ModelName)
				if err != nil {
					return err
				}
				report.Models = append(report.Models, versions...)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "runs per experiment")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

func printReport(w io.Writer, report inspectReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEXPERIMENT\tSTATUS\tEVALUATION\tREGISTERED\tSTARTED")
	for _, r := range report.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Experiment, r.Status,
			dash(r.EvaluationStatus), dash(r.RegisteredVersion), r.StartTime)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "MODEL\tVERSION\tSTAGE\tRUN")
	for _, v := range report.Models {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", v.Name, v.Version, v.Stage, v.RunID)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion inspect
