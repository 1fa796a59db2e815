package main

import (
	"context"
	"log/slog"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/steps"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "mlpipe",
		Short:         "Train, gate and register candidate models",
		Long:          "mlpipe runs the train -> validate -> register pipeline locally or submits it to Azure ML or SageMaker.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.ParseLevel(opts.logLevel), opts.logFormat, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newTrainCmd(opts),
		newValidateCmd(opts),
		newRegisterCmd(opts),
		newComponentsCmd(opts),
		newRunCmd(opts),
		newInspectCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

func (o *options) load() (*config.Config, string, error) {
	return config.LoadDefault(o.configPath)
}

// openEnv loads the config and opens the step environment. The caller
// closes the returned Env.
func (o *options) openEnv(ctx context.Context) (*steps.Env, error) {
	cfg, path, err := o.load()
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", path, "models", len(cfg.Models))
	return steps.Open(ctx, cfg, path)
}
