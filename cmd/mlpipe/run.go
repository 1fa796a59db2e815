package main

import (
	"fmt"
	"time"

	"github.com/georgeannie/mlops-framework/internal/platform"
	"github.com/georgeannie/mlops-framework/internal/steps"
	"github.com/spf13/cobra"
)

// #region run
func newRunCmd(opts *options) *cobra.Command {
	var (
		provider string
		poll     time.Duration
		detach   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit the pipeline to the configured platform and wait for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, path, err := opts.load()
			if err != nil {
				return err
			}
			if provider == "" {
				provider = cfg.Platform.Provider
			}
			p, err := platform.ParseProvider(provider)
			if err != nil {
				return err
			}

			deps := platform.Deps{Config: cfg, ConfigPath: path, PollInterval: poll}
			if p == platform.ProviderLocal {
				env, err := steps.Open(ctx, cfg, path)
				if err != nil {
					return err
				}
				defer env.Close()
				deps.Env = env
			}
			// Components published for azure live in the workspace unless a
			// shared registry daemon is configured.
			if p == platform.ProviderAzure && cfg.Registry.Backend == "grpc" {
				registry, closer, err := openRegistry(cfg)
				if err != nil {
					return err
				}
				if closer != nil {
					defer closer.Close()
				}
				deps.Registry = registry
			}

			o, err := platform.New(p, deps)
			if err != nil {
				return err
			}
			if err := o.ValidateConfig(); err != nil {
				return err
			}
			exec, err := o.Submit(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted\t%s\t%s\n", exec.Provider, exec.ID)
			if detach && p != platform.ProviderLocal {
				return nil
			}

			res, err := o.AwaitCompletion(ctx, exec)
			if err != nil {
				return err
			}
			for _, c := range res.Candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Model, candidateOutcome(c))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "finished\t%s\t%s\n", exec.ID, res.Status)
			if res.Status != platform.StatusSucceeded {
				return fmt.Errorf("pipeline %s ended %s", exec.ID, res.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "override platform.provider: local, azure or aws")
	cmd.Flags().DurationVar(&poll, "poll-interval", 0, "status poll interval for remote executions")
	cmd.Flags().BoolVar(&detach, "detach", false, "return after submitting a remote execution")
	return cmd
}

func candidateOutcome(c platform.CandidateOutcome) string {
	switch {
	case c.Err != nil:
		return "failed: " + c.Err.Error()
	case c.Version > 0:
		return fmt.Sprintf("registered version %d (run %s)", c.Version, c.RunID)
	case c.Skipped && c.Accepted:
		return "accepted, registration skipped"
	case c.Skipped:
		return "rejected (run " + c.RunID + ")"
	}
	return "done"
}

// #endregion run
