package gate

import (
	"fmt"
	"math"
	"sort"

	"github.com/georgeannie/mlops-framework/internal/eval"
)

// #region gate
// Gate compares computed metrics against one model's expected thresholds.
type Gate struct {
	expected ThresholdSet
}

// NewGate creates a gate for the given thresholds. An empty set accepts
// every candidate.
func NewGate(expected ThresholdSet) *Gate {
	return &Gate{expected: expected.Clone()}
}

// Thresholds returns a copy of the gate's thresholds.
func (g *Gate) Thresholds() ThresholdSet {
	return g.expected.Clone()
}

// Evaluate checks every expected metric. A metric missing from actual, or
// one that is NaN, counts as a failed comparison rather than an error.
func (g *Gate) Evaluate(actual eval.MetricSet) GateDecision {
	names := make([]string, 0, len(g.expected))
	for name := range g.expected {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []ThresholdFailure
	for _, name := range names {
		want := g.expected[name]
		got, ok := actual[name]
		switch {
		case !ok:
			failures = append(failures, ThresholdFailure{
				Metric:   name,
				Type:     FailureMissingMetric,
				Expected: want,
			})
		case math.IsNaN(got) || got < want:
			failures = append(failures, ThresholdFailure{
				Metric:   name,
				Type:     FailureBelowThreshold,
				Actual:   got,
				Expected: want,
			})
		}
	}

	if len(failures) > 0 {
		return GateDecision{
			Action:   ActionReject,
			Reason:   describe(failures),
			Failures: failures,
		}
	}
	if len(names) == 0 {
		return GateDecision{Action: ActionAccept, Reason: "no thresholds configured"}
	}
	return GateDecision{
		Action: ActionAccept,
		Reason: fmt.Sprintf("all %d thresholds met", len(names)),
	}
}

// IsAcceptable reports whether actual[k] >= expected[k] for every k in expected.
func IsAcceptable(actual eval.MetricSet, expected ThresholdSet) bool {
	return NewGate(expected).Evaluate(actual).Accepted()
}

// #endregion gate

// #region helpers
func describe(failures []ThresholdFailure) string {
	f := failures[0]
	var first string
	switch f.Type {
	case FailureMissingMetric:
		first = fmt.Sprintf("metric %s missing (expected >= %.4f)", f.Metric, f.Expected)
	default:
		first = fmt.Sprintf("%s %.4f below %.4f", f.Metric, f.Actual, f.Expected)
	}
	if len(failures) == 1 {
		return first
	}
	return fmt.Sprintf("%d thresholds unmet: %s", len(failures), first)
}

// #endregion helpers
