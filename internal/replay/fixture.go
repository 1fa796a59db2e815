package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/gate"
)

// #region fixture-types

// Fixture is a JSON file of gate cases with their expected outcome.
type Fixture struct {
	Description string        `json:"description"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureCase is one metric set, its thresholds and the expected outcome.
type FixtureCase struct {
	ID       string            `json:"id"`
	Model    string            `json:"model"`
	Actual   eval.MetricSet    `json:"actual"`
	Expected gate.ThresholdSet `json:"expected"`
	Accepted bool              `json:"accepted"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ReplayCases converts fixture cases to replay cases. Unnamed cases get their
// position as id.
func (f *Fixture) ReplayCases() []Case {
	cases := make([]Case, len(f.Cases))
	for i, fc := range f.Cases {
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("case-%d", i+1)
		}
		cases[i] = Case{
			ID:       id,
			Model:    fc.Model,
			Actual:   fc.Actual,
			Expected: fc.Expected,
			Accepted: fc.Accepted,
		}
	}
	return cases
}

// Check gates every case against its own thresholds and returns the cases
// whose outcome differs from the fixture's expectation.
func (f *Fixture) Check() []Result {
	var mismatches []Result
	for _, r := range Replay(f.ReplayCases(), nil) {
		if r.Flipped {
			mismatches = append(mismatches, r)
		}
	}
	return mismatches
}

// #endregion fixture-loader
