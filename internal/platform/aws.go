package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
	"github.com/georgeannie/mlops-framework/internal/logging"
)

// Defaults for the SageMaker training step.
const (
	DefaultPipelineName = "PlatformAgnosticPipeline"
	DefaultInstanceType = "ml.m5.large"
	TrainStepName       = "TrainModel"
	ConfigPathParameter = "ConfigPath"
)

// #region aws
// aws upserts a one-step SageMaker pipeline and starts an execution with the
// config path as its parameter.
type aws struct {
	deps Deps
	log  *slog.Logger
}

func newAWS(deps Deps) *aws {
	return &aws{deps: deps, log: logging.New("platform.aws")}
}

func (a *aws) ValidateConfig() error {
	cfg := a.deps.Config
	var missing []string
	if cfg.Platform.Role == "" {
		missing = append(missing, "platform.role")
	}
	if cfg.Job.BaseJobName == "" {
		missing = append(missing, "job.base_job_name")
	}
	if cfg.Job.ConfigPath == "" {
		missing = append(missing, "job.config_path")
	}
	if cfg.Job.Image == "" {
		missing = append(missing, "job.image")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: aws requires %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

type sagemakerParameter struct {
	Name         string `json:"Name"`
	Type         string `json:"Type"`
	DefaultValue string `json:"DefaultValue,omitempty"`
}

type sagemakerStep struct {
	Name      string         `json:"Name"`
	Type      string         `json:"Type"`
	Arguments map[string]any `json:"Arguments"`
}

type sagemakerDefinition struct {
	Version    string               `json:"Version"`
	Parameters []sagemakerParameter `json:"Parameters"`
	Steps      []sagemakerStep      `json:"Steps"`
}

// Definition renders the pipeline definition JSON.
func (a *aws) Definition() ([]byte, error) {
	cfg := a.deps.Config
	instance := cfg.Job.Instance
	if instance == "" {
		instance = DefaultInstanceType
	}
	def := sagemakerDefinition{
		Version: "2020-12-01",
		Parameters: []sagemakerParameter{
			{Name: ConfigPathParameter, Type: "String", DefaultValue: cfg.Job.ConfigPath},
		},
		Steps: []sagemakerStep{{
			Name: TrainStepName,
			Type: "Training",
			Arguments: map[string]any{
				"AlgorithmSpecification": map[string]any{
					"TrainingImage":     cfg.Job.Image,
					"TrainingInputMode": "File",
				},
				"HyperParameters": map[string]any{
					"config": map[string]string{"Get": "Parameters." + ConfigPathParameter},
				},
				"RoleArn": cfg.Platform.Role,
				"ResourceConfig": map[string]any{
					"InstanceType":   instance,
					"InstanceCount":  1,
					"VolumeSizeInGB": 30,
				},
				"StoppingCondition": map[string]any{"MaxRuntimeInSeconds": 86400},
				"OutputDataConfig":  map[string]any{"S3OutputPath": "s3://" + cfg.Job.BaseJobName + "/output"},
			},
		}},
	}
	return json.Marshal(def)
}

func (a *aws) Submit(ctx context.Context) (Execution, error) {
	cfg := a.deps.Config
	body, err := a.Definition()
	if err != nil {
		return Execution{}, fmt.Errorf("encode pipeline definition: %w", err)
	}
	upsert := []string{
		"--pipeline-name", DefaultPipelineName,
		"--pipeline-definition", string(body),
		"--role-arn", cfg.Platform.Role,
	}
	if _, err := cloudcli.RunText(ctx, a.deps.Runner, "aws", a.args(append([]string{"sagemaker", "create-pipeline"}, upsert...)...)...); err != nil {
		if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "ResourceInUse") {
			return Execution{}, fmt.Errorf("create sagemaker pipeline: %w", err)
		}
		if _, err := cloudcli.RunText(ctx, a.deps.Runner, "aws", a.args(append([]string{"sagemaker", "update-pipeline"}, upsert...)...)...); err != nil {
			return Execution{}, fmt.Errorf("update sagemaker pipeline: %w", err)
		}
	}

	var started struct {
		PipelineExecutionArn string `json:"PipelineExecutionArn"`
	}
	err = cloudcli.RunJSON(ctx, a.deps.Runner, &started, "aws", a.args("sagemaker", "start-pipeline-execution",
		"--pipeline-name", DefaultPipelineName,
		"--pipeline-parameters", fmt.Sprintf("Name=%s,Value=%s", ConfigPathParameter, cfg.Job.ConfigPath),
		"--output", "json")...)
	if err != nil {
		return Execution{}, fmt.Errorf("start sagemaker pipeline: %w", err)
	}
	if started.PipelineExecutionArn == "" {
		return Execution{}, fmt.Errorf("start sagemaker pipeline: no execution arn in response")
	}
	a.log.Info("pipeline submitted", "execution", started.PipelineExecutionArn)
	return Execution{ID: started.PipelineExecutionArn, Provider: ProviderAWS, Submitted: time.Now().UTC()}, nil
}

func (a *aws) AwaitCompletion(ctx context.Context, exec Execution) (Result, error) {
	st, err := poll(ctx, a.deps.PollInterval, func(ctx context.Context) (Status, error) {
		var desc struct {
			PipelineExecutionStatus string `json:"PipelineExecutionStatus"`
		}
		err := cloudcli.RunJSON(ctx, a.deps.Runner, &desc, "aws", a.args("sagemaker", "describe-pipeline-execution",
			"--pipeline-execution-arn", exec.ID, "--output", "json")...)
		if err != nil {
			return "", fmt.Errorf("poll sagemaker execution: %w", err)
		}
		return sagemakerStatus(desc.PipelineExecutionStatus), nil
	})
	if err != nil {
		return Result{}, err
	}
	a.log.Info("pipeline finished", "execution", exec.ID, "status", st)
	return Result{Execution: exec, Status: st}, nil
}

func sagemakerStatus(s string) Status {
	switch s {
	case "Succeeded":
		return StatusSucceeded
	case "Failed":
		return StatusFailed
	case "Stopped":
		return StatusCanceled
	}
	return StatusRunning
}

func (a *aws) args(base ...string) []string {
	if r := a.deps.Config.Platform.Region; r != "" {
		base = append(base, "--region", r)
	}
	return base
}

// #endregion aws
