package config

import (
	"errors"

	"github.com/georgeannie/mlops-framework/internal/gate"
)

// #region errors
var (
	ErrNotFound          = errors.New("config file not found")
	ErrUnsupportedFormat = errors.New("unsupported config file type")
	ErrUnknownModel      = errors.New("model config not found")
	ErrInvalid           = errors.New("invalid config")
)

// #endregion errors

// #region config
// Config is the pipeline configuration file.
type Config struct {
	Platform Platform `yaml:"platform" json:"platform"`
	Tracking Tracking `yaml:"tracking" json:"tracking"`
	// MLflow is the legacy location of the tracking URI.
	MLflow   Tracking `yaml:"mlflow" json:"mlflow"`
	Flags    Flags    `yaml:"flags" json:"flags"`
	Registry Registry `yaml:"registry" json:"registry"`
	Audit    Audit    `yaml:"audit" json:"audit"`
	Job      Job      `yaml:"job" json:"job"`
	Data     Data     `yaml:"data" json:"data"`
	Models   []Model  `yaml:"models" json:"models"`
}

// Platform selects and configures the orchestrator.
type Platform struct {
	Provider      string `yaml:"provider" json:"provider"`
	Compute       string `yaml:"compute" json:"compute"`
	Role          string `yaml:"role" json:"role"`
	Region        string `yaml:"region" json:"region"`
	UseAzureML    bool   `yaml:"use_azureml" json:"use_azureml"`
	ResourceGroup string `yaml:"resource_group" json:"resource_group"`
	Workspace     string `yaml:"workspace" json:"workspace"`
	PollInterval  string `yaml:"poll_interval" json:"poll_interval"`
}

// Tracking locates the tracking store: sqlite:///path.db or http(s)://host.
type Tracking struct {
	URI         string `yaml:"uri" json:"uri"`
	TrackingURI string `yaml:"tracking_uri" json:"tracking_uri"`
}

// Flags configures where flag artifacts live.
type Flags struct {
	Backend   string `yaml:"backend" json:"backend"` // dir | s3
	Dir       string `yaml:"dir" json:"dir"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// Registry configures the component registry.
type Registry struct {
	Backend   string `yaml:"backend" json:"backend"` // sqlite | grpc | azcli
	Path      string `yaml:"path" json:"path"`
	Address   string `yaml:"address" json:"address"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Audit locates the promotion audit log database.
type Audit struct {
	Path string `yaml:"path" json:"path"`
}

// Job configures remote submission.
type Job struct {
	ConfigPath  string `yaml:"config_path" json:"config_path"`
	BaseJobName string `yaml:"base_job_name" json:"base_job_name"`
	JobsDir     string `yaml:"jobs_dir" json:"jobs_dir"`
	Template    string `yaml:"template" json:"template"`
	Image       string `yaml:"image" json:"image"`
	Instance    string `yaml:"instance_type" json:"instance_type"`
}

// Data locates the dataset and step outputs.
type Data struct {
	Path         string `yaml:"path" json:"path"`
	TargetColumn string `yaml:"target_column" json:"target_column"`
	OutputDir    string `yaml:"output_dir" json:"output_dir"`
}

// Model is one candidate model.
type Model struct {
	Name              string            `yaml:"name" json:"name"`
	ModelName         string            `yaml:"model_name" json:"model_name"`
	ExperimentName    string            `yaml:"experiment_name" json:"experiment_name"`
	RunName           string            `yaml:"run_name" json:"run_name"`
	Hyperparameters   map[string]any    `yaml:"hyperparameters" json:"hyperparameters"`
	MetricsThreshold  gate.ThresholdSet `yaml:"metrics_threshold" json:"metrics_threshold"`
	ModelInputSchema  map[string]any    `yaml:"model_input_schema" json:"model_input_schema"`
	ModelOutputSchema map[string]any    `yaml:"model_output_schema" json:"model_output_schema"`
	ModelTags         map[string]string `yaml:"model_tags" json:"model_tags"`
	TrainCommand      []string          `yaml:"train_command" json:"train_command"`
	PredictCommand    []string          `yaml:"predict_command" json:"predict_command"`
	PredictionsFile   string            `yaml:"predictions_file" json:"predictions_file"`
}

// #endregion config
