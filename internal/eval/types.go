package eval

import "errors"

// #region metric-names
// Metric names produced by Evaluate. These are also the keys expected in a
// model's metrics_threshold block.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1_score"
)

// PositiveLabel is the label treated as the positive class for binary problems.
const PositiveLabel = 1

// #endregion metric-names

// #region metric-set
// MetricSet maps a metric name to a score in [0, 1].
// A MetricSet is built once per evaluation and never mutated afterwards.
type MetricSet map[string]float64

// Clone returns an independent copy.
func (m MetricSet) Clone() MetricSet {
	out := make(MetricSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion metric-set

// #region averaging
// Averaging reports how per-class scores were combined.
type Averaging string

const (
	AverageBinary Averaging = "binary"
	AverageMacro  Averaging = "macro"
)

// #endregion averaging

var (
	ErrEmptyLabels    = errors.New("label sequences are empty")
	ErrLengthMismatch = errors.New("label sequences differ in length")
)
