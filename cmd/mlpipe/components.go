package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/registryrpc"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/spf13/cobra"
)

func newComponentsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Manage pipeline components",
	}
	cmd.AddCommand(newComponentsRegisterCmd(opts))
	return cmd
}

func newComponentsRegisterCmd(opts *options) *cobra.Command {
	var (
		jobsDir, pattern string
		watch            bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish component descriptors whose content changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if jobsDir == "" {
				jobsDir = cfg.Job.JobsDir
			}
			registry, closer, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			cache := components.NewCache(registry, cfg.Registry.Namespace)

			register := func(ctx context.Context) error {
				found, err := components.Discover(jobsDir, pattern)
				if err != nil {
					return err
				}
				refs, err := cache.RegisterAll(ctx, found)
				if err != nil {
					return err
				}
				for _, f := range found {
					fmt.Fprintf(cmd.OutOrStdout(), "%s_component_id\t%s\n", f.Key, refs[f.Key])
				}
				return nil
			}
			if !watch {
				return register(cmd.Context())
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return components.Watch(ctx, jobsDir, pattern, components.DefaultDebounce, register)
		},
	}
	cmd.Flags().StringVar(&jobsDir, "jobs-dir", "", "directory holding *_job.yaml descriptors (default job.jobs_dir)")
	cmd.Flags().StringVar(&pattern, "pattern", components.DescriptorPattern, "descriptor glob inside the jobs directory")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-register when descriptors change")
	return cmd
}

// openRegistry builds the configured component registry backend.
func openRegistry(cfg *config.Config) (components.Registry, io.Closer, error) {
	switch cfg.Registry.Backend {
	case "grpc":
		c, err := registryrpc.NewClient(cfg.Registry.Address)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "azcli":
		return &components.AzureCLIRegistry{
			Runner:        cloudcli.ExecRunner{},
			ResourceGroup: cfg.Platform.ResourceGroup,
			Workspace:     cfg.Platform.Workspace,
		}, nil, nil
	default:
		db, err := tracking.OpenDB(cfg.Registry.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open component registry: %w", err)
		}
		reg, err := components.NewSQLRegistry(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return reg, db, nil
	}
}

