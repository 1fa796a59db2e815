package promotion

import (
	"errors"
	"time"

	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/gate"
)

// #region tags
// Run tags written and read by the promotion workflow.
const (
	TagEvaluationStatus = "evaluation_status"
	TagEvaluatedModel   = "evaluated_model"
	TagRegisteredVer    = "registered_model_version"
	TagRegisteredName   = "registered_model_name"
	TagRegisteredStage  = "registered_stage"

	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// #endregion tags

// #region errors
var (
	// ErrIllegalTransition is returned when a write would move a run out of
	// a terminal promotion state.
	ErrIllegalTransition = errors.New("illegal promotion transition")
)

// #endregion errors

// #region decision
// Decision is the immutable outcome of gating one candidate run.
type Decision struct {
	ModelName  string
	RunID      string
	Accepted   bool
	Reason     string
	Metrics    eval.MetricSet
	Thresholds gate.ThresholdSet
	DecidedAt  time.Time
}

// Decide gates metrics against thresholds and snapshots both.
func Decide(modelName, runID string, metrics eval.MetricSet, thresholds gate.ThresholdSet) Decision {
	gd := gate.NewGate(thresholds).Evaluate(metrics)
	return Decision{
		ModelName:  modelName,
		RunID:      runID,
		Accepted:   gd.Accepted(),
		Reason:     gd.Reason,
		Metrics:    metrics.Clone(),
		Thresholds: thresholds.Clone(),
		DecidedAt:  time.Now().UTC(),
	}
}

// Status returns the evaluation_status tag value for the decision.
func (d Decision) Status() string {
	if d.Accepted {
		return StatusAccepted
	}
	return StatusRejected
}

// EvaluationResult is the JSON audit document written for each decision.
type EvaluationResult struct {
	ModelName          string            `json:"model_name"`
	EvaluatedRunID     string            `json:"evaluated_run_id"`
	Accepted           bool              `json:"accepted"`
	ActualMetrics      eval.MetricSet    `json:"actual_metrics"`
	ExpectedThresholds gate.ThresholdSet `json:"expected_thresholds"`
}

// Result converts the decision to its audit document.
func (d Decision) Result() EvaluationResult {
	return EvaluationResult{
		ModelName:          d.ModelName,
		EvaluatedRunID:     d.RunID,
		Accepted:           d.Accepted,
		ActualMetrics:      d.Metrics,
		ExpectedThresholds: d.Thresholds,
	}
}

// #endregion decision

// #region registration
// ModelRef identifies the candidate to register.
type ModelRef struct {
	Key            string // config name, also the flag artifact prefix
	RegistryName   string // name under which the model is registered
	ExperimentName string // used to find the latest run when RunID is empty
	RunID          string
}

// RegisteredModelEntry is a successful registration.
type RegisteredModelEntry struct {
	ModelName string `json:"model_name"`
	RunID     string `json:"run_id"`
	Version   int    `json:"version"`
	Stage     string `json:"stage"`
	Source    string `json:"source"`
}

// RegisteredModelInfo is the JSON document written after registration.
type RegisteredModelInfo struct {
	ModelName string `json:"model_name"`
	RunID     string `json:"run_id"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
}

// #endregion registration
