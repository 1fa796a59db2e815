package tracking

import (
	"errors"
	"time"
)

// #region errors
var (
	// ErrNotFound is returned when an experiment, run, artifact or model
	// version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoRuns is returned when an experiment exists but holds no runs.
	ErrNoRuns = errors.New("no runs found")
	// ErrAlreadyExists is returned when a write races with another writer.
	ErrAlreadyExists = errors.New("already exists")
	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("tracking session closed")
)

// #endregion errors

// #region experiment
// Experiment is a named grouping of runs.
type Experiment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion experiment

// #region run
// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
	RunKilled   RunStatus = "KILLED"
)

// Run is one execution of a training or evaluation step.
type Run struct {
	ID           string             `json:"id"`
	ExperimentID string             `json:"experiment_id"`
	Name         string             `json:"name"`
	Status       RunStatus          `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time,omitzero"`
	Params       map[string]string  `json:"params,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Tags         map[string]string  `json:"tags,omitempty"`
}

// Tag returns the value of a run tag, or "" when unset.
func (r Run) Tag(key string) string {
	return r.Tags[key]
}

// #endregion run

// #region model-version
// DefaultStage is the stage assigned to freshly registered versions.
const DefaultStage = "None"

// ModelVersion is one registered, versioned copy of a run's model artifact.
// Versions are assigned by the store, start at 1 and are never reused.
type ModelVersion struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelURI returns the artifact URI of the model logged by a run.
func ModelURI(runID string) string {
	return "runs:/" + runID + "/model"
}

// #endregion model-version
