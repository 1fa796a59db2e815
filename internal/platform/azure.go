package platform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/pipeline"
)

// RenderedPipeline is the file the azure orchestrator submits.
const RenderedPipeline = "pipeline_job.yaml"

// DefaultTemplate is the pipeline template looked up in the jobs directory.
const DefaultTemplate = "pipeline_job_template.yaml"

// #region azure
// azure registers changed components, renders the pipeline template with the
// resulting component ids and submits it with the az CLI.
type azure struct {
	deps Deps
	log  *slog.Logger
}

func newAzure(deps Deps) *azure {
	if deps.Registry == nil {
		deps.Registry = &components.AzureCLIRegistry{
			Runner:        deps.Runner,
			ResourceGroup: deps.Config.Platform.ResourceGroup,
			Workspace:     deps.Config.Platform.Workspace,
		}
	}
	return &azure{deps: deps, log: logging.New("platform.azure")}
}

func (a *azure) ValidateConfig() error {
	cfg := a.deps.Config
	var missing []string
	if cfg.Platform.Compute == "" {
		missing = append(missing, "platform.compute")
	}
	if cfg.Job.ConfigPath == "" {
		missing = append(missing, "job.config_path")
	}
	if cfg.Job.JobsDir == "" {
		missing = append(missing, "job.jobs_dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: azure requires %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (a *azure) templatePath() string {
	t := a.deps.Config.Job.Template
	if t == "" {
		t = DefaultTemplate
	}
	if filepath.IsAbs(t) {
		return t
	}
	return filepath.Join(a.deps.Config.Job.JobsDir, t)
}

func (a *azure) Submit(ctx context.Context) (Execution, error) {
	cfg := a.deps.Config
	jobsDir := cfg.Job.JobsDir

	found, err := components.Discover(jobsDir, "")
	if err != nil {
		return Execution{}, err
	}
	refs, err := components.NewCache(a.deps.Registry, cfg.Registry.Namespace).RegisterAll(ctx, found)
	if err != nil {
		return Execution{}, err
	}

	keys := make([]string, 0, len(found))
	raw := map[string]string{}
	for _, f := range found {
		keys = append(keys, f.Key)
		raw[f.Key+"_component_id"] = refs[f.Key].String()
	}
	args, err := pipeline.ComponentIDInputs(keys).Bind(raw)
	if err != nil {
		return Execution{}, err
	}
	rendered := filepath.Join(jobsDir, RenderedPipeline)
	if err := pipeline.RenderFile(a.templatePath(), rendered, args); err != nil {
		return Execution{}, err
	}

	var job struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	err = cloudcli.RunJSON(ctx, a.deps.Runner, &job, "az", a.args("ml", "job", "create",
		"--file", rendered,
		"--set", "inputs.config_path="+cfg.Job.ConfigPath,
		"--set", "inputs.compute_target="+cfg.Platform.Compute,
		"-o", "json")...)
	if err != nil {
		return Execution{}, fmt.Errorf("submit azure pipeline: %w", err)
	}
	if job.Name == "" {
		return Execution{}, fmt.Errorf("submit azure pipeline: no job name in response")
	}
	a.log.Info("pipeline submitted", "job", job.Name, "components", len(refs))
	return Execution{ID: job.Name, Provider: ProviderAzure, Submitted: time.Now().UTC()}, nil
}

func (a *azure) AwaitCompletion(ctx context.Context, exec Execution) (Result, error) {
	st, err := poll(ctx, a.deps.PollInterval, func(ctx context.Context) (Status, error) {
		out, err := cloudcli.RunText(ctx, a.deps.Runner, "az", a.args("ml", "job", "show",
			"--name", exec.ID, "--query", "status", "-o", "tsv")...)
		if err != nil {
			return "", fmt.Errorf("poll azure job %s: %w", exec.ID, err)
		}
		st := azureStatus(out)
		a.log.Debug("job status", "job", exec.ID, "status", out)
		return st, nil
	})
	if err != nil {
		return Result{}, err
	}
	a.log.Info("pipeline finished", "job", exec.ID, "status", st)
	return Result{Execution: exec, Status: st}, nil
}

func azureStatus(s string) Status {
	switch strings.TrimSpace(s) {
	case "Completed":
		return StatusSucceeded
	case "Failed":
		return StatusFailed
	case "Canceled", "CancelRequested":
		return StatusCanceled
	}
	return StatusRunning
}

func (a *azure) args(base ...string) []string {
	p := a.deps.Config.Platform
	if p.ResourceGroup != "" {
		base = append(base, "--resource-group", p.ResourceGroup)
	}
	if p.Workspace != "" {
		base = append(base, "--workspace-name", p.Workspace)
	}
	return base
}

// #endregion azure
