package promotion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// #region signal
// Signal is a durable encoding of a promotion decision that a separately
// scheduled step can read back. Writes overwrite; a missing signal reads as
// "not accepted".
type Signal interface {
	Write(ctx context.Context, d Decision) error
	Accepted(ctx context.Context, modelKey, runID string) (bool, error)
	Name() string
}

// #endregion signal

// #region tag-signal
// TagSignal is the canonical encoding: the evaluation_status tag on the
// evaluated run.
type TagSignal struct {
	Tracker tracking.Tracker
}

func (s TagSignal) Name() string { return "run-tag" }

func (s TagSignal) Write(ctx context.Context, d Decision) error {
	if err := s.Tracker.SetTag(ctx, d.RunID, TagEvaluationStatus, d.Status()); err != nil {
		return fmt.Errorf("tag %s: %w", TagEvaluationStatus, err)
	}
	if err := s.Tracker.SetTag(ctx, d.RunID, TagEvaluatedModel, d.ModelName); err != nil {
		return fmt.Errorf("tag %s: %w", TagEvaluatedModel, err)
	}
	return nil
}

func (s TagSignal) Accepted(ctx context.Context, _ string, runID string) (bool, error) {
	run, err := s.Tracker.GetRun(ctx, runID)
	if errors.Is(err, tracking.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(run.Tag(TagEvaluationStatus), StatusAccepted), nil
}

// #endregion tag-signal

// #region flag-signal
// FlagSignal is the compatibility encoding for isolated steps that share no
// tracking access: <model>_register.flag exists iff the run was accepted.
type FlagSignal struct {
	Store flagstore.Store
}

func (s FlagSignal) Name() string { return "flag-file" }

// Write creates the flag for an accepted decision and removes any stale flag
// for a rejected one, so the final state holds exactly one answer.
func (s FlagSignal) Write(ctx context.Context, d Decision) error {
	key := flagstore.FlagName(d.ModelName)
	if d.Accepted {
		return s.Store.Put(ctx, key, []byte(d.RunID))
	}
	return s.Store.Delete(ctx, key)
}

func (s FlagSignal) Accepted(ctx context.Context, modelKey, _ string) (bool, error) {
	return s.Store.Exists(ctx, flagstore.FlagName(modelKey))
}

// #endregion flag-signal

// #region flag-file
// FlagFile reads a single flag artifact at an explicit path, as handed to an
// isolated register step by its orchestrator. Absence means not accepted.
type FlagFile struct {
	Path string
}

func (f FlagFile) Name() string { return "flag-file" }

func (f FlagFile) Write(ctx context.Context, d Decision) error {
	if d.Accepted {
		return flagstore.WriteFileAtomic(f.Path, []byte(d.RunID), 0o644)
	}
	dir, name := filepath.Split(f.Path)
	return (&flagstore.DirStore{Dir: dir}).Delete(ctx, name)
}

func (f FlagFile) Accepted(_ context.Context, _, _ string) (bool, error) {
	return flagstore.FileExists(f.Path)
}

// #endregion flag-file
