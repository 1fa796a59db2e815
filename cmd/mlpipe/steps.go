package main

import (
	"errors"
	"fmt"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/steps"
	"github.com/spf13/cobra"
)

func selectModels(cfg *config.Config, name string) ([]config.Model, error) {
	if name == "" {
		return cfg.Select()
	}
	return cfg.Select(name)
}

// #region train
func newTrainCmd(opts *options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train configured models and log the runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := opts.openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			models, err := selectModels(env.Config, model)
			if err != nil {
				return err
			}
			for _, m := range models {
				res, err := steps.Train(ctx, env, m)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\ttrained\t%s\n", m.Name, res.RunID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "train only this model")
	return cmd
}

// #endregion train

// #region validate
func newValidateCmd(opts *options) *cobra.Command {
	var model, runID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Evaluate the latest run of each model and record the gate decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" && model == "" {
				return errors.New("--run-id requires --model")
			}
			ctx := cmd.Context()
			env, err := opts.openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			models, err := selectModels(env.Config, model)
			if err != nil {
				return err
			}
			for _, m := range models {
				res, err := steps.Validate(ctx, env, m, runID)
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tskipped\n", m.Name)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", m.Name, res.Decision.Status(), res.Decision.RunID, res.Decision.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "validate only this model")
	cmd.Flags().StringVar(&runID, "run-id", "", "evaluate this run instead of the latest")
	return cmd
}

// #endregion validate

// #region register
func newRegisterCmd(opts *options) *cobra.Command {
	var model, runID, flagFile string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register accepted candidates in the model registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (runID != "" || flagFile != "") && model == "" {
				return errors.New("--run-id and --flag-file require --model")
			}
			ctx := cmd.Context()
			env, err := opts.openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			models, err := selectModels(env.Config, model)
			if err != nil {
				return err
			}
			for _, m := range models {
				entry, err := steps.Register(ctx, env, m, runID, flagFile)
				if err != nil {
					return err
				}
				if entry == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tskipped\n", m.Name)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tregistered\t%s\tversion %d\n", m.Name, entry.ModelName, entry.Version)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "register only this model")
	cmd.Flags().StringVar(&runID, "run-id", "", "register this run instead of the latest")
	cmd.Flags().StringVar(&flagFile, "flag-file", "", "flag artifact written by an isolated validate step")
	return cmd
}

// #endregion register
