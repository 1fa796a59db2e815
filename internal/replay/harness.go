// Package replay re-gates recorded promotion decisions against a threshold
// set, in memory, to show which outcomes a threshold change would flip.
package replay

import (
	"encoding/json"
	"fmt"

	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/gate"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/promotion"
)

// #region types
// Case is one recorded decision: the metrics that were gated, the
// thresholds in force and the outcome at the time.
type Case struct {
	ID       string
	Model    string
	RunID    string
	Actual   eval.MetricSet
	Expected gate.ThresholdSet
	Accepted bool
}

// Result is the outcome of re-gating one case.
type Result struct {
	Case     Case
	Decision gate.GateDecision
	// Flipped is set when the replayed outcome differs from the recorded one.
	Flipped bool
}

// Summary aggregates a replay run.
type Summary struct {
	Total         int
	Accepted      int
	Rejected      int
	Flips         int
	NewlyAccepted int
	NewlyRejected int
}

// #endregion types

// #region replay
// Replay gates every case against thresholds, or against the case's own
// thresholds when thresholds is nil.
func Replay(cases []Case, thresholds gate.ThresholdSet) []Result {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		expected := c.Expected
		if thresholds != nil {
			expected = thresholds
		}
		d := gate.NewGate(expected).Evaluate(c.Actual)
		results = append(results, Result{
			Case:     c,
			Decision: d,
			Flipped:  d.Accepted() != c.Accepted,
		})
	}
	return results
}

// Summarize counts outcomes and flips.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Decision.Accepted() {
			s.Accepted++
		} else {
			s.Rejected++
		}
		if !r.Flipped {
			continue
		}
		s.Flips++
		if r.Decision.Accepted() {
			s.NewlyAccepted++
		} else {
			s.NewlyRejected++
		}
	}
	return s
}

// #endregion replay

// #region audit
// FromAudit turns accepted and rejected audit entries into cases. Other
// entries (registered, skipped) carry no gate input and are ignored. A run
// recorded more than once with the same outcome yields one case, taken from
// the first such entry.
func FromAudit(entries []logging.AuditEntry) ([]Case, error) {
	type recorded struct{ model, runID, decision string }
	seen := map[recorded]bool{}
	var cases []Case
	for _, e := range entries {
		var accepted bool
		switch e.Decision {
		case promotion.StatusAccepted:
			accepted = true
		case promotion.StatusRejected:
		default:
			continue
		}
		key := recorded{e.ModelName, e.RunID, e.Decision}
		if seen[key] {
			continue
		}
		seen[key] = true
		c := Case{
			ID:       fmt.Sprintf("audit-%d", e.ID),
			Model:    e.ModelName,
			RunID:    e.RunID,
			Accepted: accepted,
		}
		if err := unmarshalOptional(e.MetricsJSON, &c.Actual); err != nil {
			return nil, fmt.Errorf("audit entry %d metrics: %w", e.ID, err)
		}
		if err := unmarshalOptional(e.ThresholdsJSON, &c.Expected); err != nil {
			return nil, fmt.Errorf("audit entry %d thresholds: %w", e.ID, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func unmarshalOptional(s string, out any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

// #endregion audit
