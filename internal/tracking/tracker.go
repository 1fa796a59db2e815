package tracking

import (
	"context"
	"fmt"
)

// Tracker is the tracking and model-registry store consumed by the pipeline
// steps. The store is shared by many writers; callers must not assume
// exclusive access.
type Tracker interface {
	CreateExperiment(ctx context.Context, name string) (Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (Experiment, error)
	ListExperiments(ctx context.Context) ([]Experiment, error)

	StartRun(ctx context.Context, experimentID, name string) (Run, error)
	EndRun(ctx context.Context, runID string, status RunStatus) error
	GetRun(ctx context.Context, runID string) (Run, error)
	// SearchRuns returns runs of an experiment ordered by start time, newest first.
	SearchRuns(ctx context.Context, experimentID string, maxResults int) ([]Run, error)

	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID, key string, value float64) error
	SetTag(ctx context.Context, runID, key, value string) error
	// LogArtifact stores data under path, replacing any previous content.
	LogArtifact(ctx context.Context, runID, path string, data []byte) error
	GetArtifact(ctx context.Context, runID, path string) ([]byte, error)

	// RegisterModel creates the next version of a registered model.
	RegisterModel(ctx context.Context, name, source, runID string) (ModelVersion, error)
	ListModelVersions(ctx context.Context, name string) ([]ModelVersion, error)
}

// LatestRun resolves an experiment by name and returns its most recent run.
// It returns ErrNotFound for an unknown experiment and ErrNoRuns for an empty one.
func LatestRun(ctx context.Context, t Tracker, experimentName string) (Run, error) {
	exp, err := t.GetExperimentByName(ctx, experimentName)
	if err != nil {
		return Run{}, fmt.Errorf("experiment %q: %w", experimentName, err)
	}
	runs, err := t.SearchRuns(ctx, exp.ID, 1)
	if err != nil {
		return Run{}, fmt.Errorf("search runs of %q: %w", experimentName, err)
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("experiment %q: %w", experimentName, ErrNoRuns)
	}
	return runs[0], nil
}
