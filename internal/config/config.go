// Package config loads the pipeline configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted while loading.
const (
	EnvConfigPath = "CONFIG_PATH"
	EnvOutputDir  = "OUTPUT_DIR"

	DefaultConfigFile = "config.yaml"
	DefaultOutputDir  = "outputs"
	DefaultJobsDir    = "jobs"
)

// #region resolve
// ResolvePath picks the config file: explicit, then CONFIG_PATH, then
// config.yaml in the working directory. The file must exist.
func ResolvePath(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigFile
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w at %s", ErrNotFound, abs)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	return abs, nil
}

// #endregion resolve

// #region load
// Load reads a YAML (.yaml, .yml) or JSON (.json) config file and applies
// defaults and environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &cfg)
	case ".json":
		err = json.Unmarshal(raw, &cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault resolves the config path and loads it.
func LoadDefault(explicit string) (*Config, string, error) {
	path, err := ResolvePath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func (c *Config) applyDefaults() {
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.Data.OutputDir = v
	}
	if c.Data.OutputDir == "" {
		c.Data.OutputDir = DefaultOutputDir
	}
	if c.Tracking.URI == "" {
		c.Tracking.URI = firstNonEmpty(c.Tracking.TrackingURI, c.MLflow.URI, c.MLflow.TrackingURI)
	}
	if c.Tracking.URI == "" {
		c.Tracking.URI = "sqlite:///" + filepath.Join(c.Data.OutputDir, "tracking.db")
	}
	if c.Platform.Provider == "" {
		c.Platform.Provider = "local"
	}
	c.Platform.Provider = strings.ToLower(c.Platform.Provider)
	if c.Job.JobsDir == "" {
		c.Job.JobsDir = DefaultJobsDir
	}
	if c.Flags.Backend == "" {
		c.Flags.Backend = "dir"
	}
	if c.Flags.Dir == "" {
		c.Flags.Dir = c.Data.OutputDir
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = "sqlite"
	}
	if c.Registry.Path == "" {
		c.Registry.Path = filepath.Join(c.Data.OutputDir, "components.db")
	}
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(c.Data.OutputDir, "audit.db")
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.ModelName == "" {
			m.ModelName = m.Name
		}
		if m.ExperimentName == "" {
			m.ExperimentName = m.Name
		}
		if m.RunName == "" {
			m.RunName = m.Name
		}
	}
}

// Validate checks structural requirements shared by every command.
func (c *Config) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("models[%d]: name is required", i))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
	}
	switch c.Flags.Backend {
	case "dir", "s3":
	default:
		errs = append(errs, fmt.Errorf("flags.backend %q: want dir or s3", c.Flags.Backend))
	}
	switch c.Registry.Backend {
	case "sqlite", "grpc", "azcli":
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q: want sqlite, grpc or azcli", c.Registry.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// #endregion load

// #region models
// Model returns the model config with the given name.
func (c *Config) Model(name string) (*Model, error) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Select returns the named models, or all models when names is empty.
func (c *Config) Select(names ...string) ([]Model, error) {
	if len(names) == 0 {
		return c.Models, nil
	}
	out := make([]Model, 0, len(names))
	for _, n := range names {
		m, err := c.Model(n)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// HyperparametersJSON renders the model's hyperparameters for an external
// training command.
func (m Model) HyperparametersJSON() (string, error) {
	if len(m.Hyperparameters) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m.Hyperparameters)
	if err != nil {
		return "", fmt.Errorf("encode hyperparameters of %s: %w", m.Name, err)
	}
	return string(raw), nil
}

// Params flattens hyperparameters into tracking params.
func (m Model) Params() map[string]string {
	out := make(map[string]string, len(m.Hyperparameters))
	for k, v := range m.Hyperparameters {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// #endregion models

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
