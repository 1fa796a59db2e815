package gate

// #region threshold-set
// ThresholdSet maps a metric name to its minimum acceptable score.
// Metrics absent from the set are unconstrained.
type ThresholdSet map[string]float64

// Clone returns an independent copy. A nil set clones to an empty one.
func (t ThresholdSet) Clone() ThresholdSet {
	out := make(ThresholdSet, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// #endregion threshold-set

// #region failure-type
// FailureType enumerates why a threshold was not met.
type FailureType string

const (
	FailureBelowThreshold FailureType = "below_threshold"
	FailureMissingMetric  FailureType = "missing_metric"
)

// #endregion failure-type

// #region failure
// ThresholdFailure records one unmet threshold.
type ThresholdFailure struct {
	Metric   string
	Type     FailureType
	Actual   float64 // zero when the metric is missing
	Expected float64
}

// #endregion failure

// #region gate-decision
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// GateDecision is the output of the threshold gate.
type GateDecision struct {
	Action   string // "accept" | "reject"
	Reason   string
	Failures []ThresholdFailure // non-empty if rejected
}

// Accepted reports whether the decision promotes the candidate.
func (d GateDecision) Accepted() bool {
	return d.Action == ActionAccept
}

// #endregion gate-decision
