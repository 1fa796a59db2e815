package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// RegisteredInfoName is the name of the registration summary document.
func RegisteredInfoName(registryName string) string {
	return fmt.Sprintf("registered_model_info_%s.json", registryName)
}

// #region registrar
// Registrar registers a candidate only when its promotion signal says it was
// accepted. Skipping is a normal outcome, reported as a nil entry and nil
// error.
type Registrar struct {
	tracker   tracking.Tracker
	outputDir string
	audit     AuditLog
	log       *slog.Logger
}

// NewRegistrar returns a Registrar. outputDir and audit are optional.
func NewRegistrar(t tracking.Tracker, outputDir string, audit AuditLog) *Registrar {
	return &Registrar{
		tracker:   t,
		outputDir: outputDir,
		audit:     audit,
		log:       logging.New("registrar"),
	}
}

// RegisterIfAccepted resolves the candidate run, consults sig, and registers
// runs:/<run>/model under ref.RegistryName. A run already registered under
// that name returns its existing entry without a second registry call.
func (r *Registrar) RegisterIfAccepted(ctx context.Context, ref ModelRef, sig Signal) (*RegisteredModelEntry, error) {
	run, ok, err := r.resolveRun(ctx, ref)
	if err != nil || !ok {
		return nil, err
	}

	if StateOf(run) == StateRegistered {
		if entry, done := existingEntry(run, ref.RegistryName); done {
			r.log.Info("run already registered", "model", ref.RegistryName, "run_id", run.ID, "version", entry.Version)
			return entry, nil
		}
	}
	if StateOf(run) == StateRejected {
		r.skip(ctx, ref, run.ID, "run was rejected by the evaluation gate")
		return nil, nil
	}

	accepted, err := sig.Accepted(ctx, ref.Key, run.ID)
	if err != nil {
		return nil, fmt.Errorf("read %s signal: %w", sig.Name(), err)
	}
	if !accepted {
		r.skip(ctx, ref, run.ID, "no acceptance signal")
		return nil, nil
	}

	mv, created, err := r.register(ctx, ref.RegistryName, run.ID)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", ref.RegistryName, err)
	}
	entry := &RegisteredModelEntry{
		ModelName: mv.Name,
		RunID:     run.ID,
		Version:   mv.Version,
		Stage:     mv.Stage,
		Source:    mv.Source,
	}
	if err := r.tagProvenance(ctx, *entry); err != nil {
		return nil, err
	}
	if err := r.writeInfo(ctx, *entry); err != nil {
		return nil, err
	}
	if !created {
		r.log.Info("run registered by concurrent writer", "model", entry.ModelName, "version", entry.Version, "run_id", run.ID)
		return entry, nil
	}
	if r.audit != nil {
		if err := r.audit.Append(ctx, logging.AuditEntry{
			ModelName: ref.Key,
			RunID:     run.ID,
			Decision:  "registered",
			Reason:    fmt.Sprintf("%s version %d", entry.ModelName, entry.Version),
		}); err != nil {
			return nil, fmt.Errorf("audit registration: %w", err)
		}
	}

	r.log.Info("model registered", "model", entry.ModelName, "version", entry.Version, "run_id", run.ID)
	return entry, nil
}

// #endregion registrar

func (r *Registrar) resolveRun(ctx context.Context, ref ModelRef) (tracking.Run, bool, error) {
	var (
		run tracking.Run
		err error
	)
	if ref.RunID != "" {
		run, err = r.tracker.GetRun(ctx, ref.RunID)
	} else {
		run, err = tracking.LatestRun(ctx, r.tracker, ref.ExperimentName)
	}
	switch {
	case errors.Is(err, tracking.ErrNotFound), errors.Is(err, tracking.ErrNoRuns):
		r.log.Info("skipping registration: no candidate run",
			"model", ref.RegistryName,
			"experiment", ref.ExperimentName,
			"run_id", ref.RunID,
		)
		return run, false, nil
	case err != nil:
		return run, false, fmt.Errorf("resolve candidate run: %w", err)
	}
	return run, true, nil
}

// registerAttempts bounds retries when a concurrent writer claims the same
// version number first.
const registerAttempts = 3

// register creates a version for runID under name. When the run already
// holds a version under name, that version is returned with created false.
func (r *Registrar) register(ctx context.Context, name, runID string) (mv tracking.ModelVersion, created bool, err error) {
	for range registerAttempts {
		mv, err = r.tracker.RegisterModel(ctx, name, tracking.ModelURI(runID), runID)
		if err == nil {
			return mv, true, nil
		}
		if !errors.Is(err, tracking.ErrAlreadyExists) {
			return mv, false, err
		}
		existing, ok, lerr := r.registeredVersion(ctx, name, runID)
		if lerr != nil {
			return mv, false, lerr
		}
		if ok {
			return existing, false, nil
		}
		r.log.Warn("model version taken by concurrent writer, retrying", "model", name, "run_id", runID)
	}
	return tracking.ModelVersion{}, false, err
}

func (r *Registrar) registeredVersion(ctx context.Context, name, runID string) (tracking.ModelVersion, bool, error) {
	versions, err := r.tracker.ListModelVersions(ctx, name)
	if err != nil {
		return tracking.ModelVersion{}, false, fmt.Errorf("list %s versions: %w", name, err)
	}
	for _, mv := range versions {
		if mv.RunID == runID {
			return mv, true, nil
		}
	}
	return tracking.ModelVersion{}, false, nil
}

func (r *Registrar) skip(ctx context.Context, ref ModelRef, runID, reason string) {
	r.log.Info("skipping registration", "model", ref.RegistryName, "run_id", runID, "reason", reason)
	if r.audit == nil {
		return
	}
	if err := r.audit.Append(ctx, logging.AuditEntry{
		ModelName: ref.Key,
		RunID:     runID,
		Decision:  "skipped",
		Reason:    reason,
	}); err != nil {
		r.log.Warn("audit skip failed", "error", err)
	}
}

func (r *Registrar) tagProvenance(ctx context.Context, e RegisteredModelEntry) error {
	tags := [][2]string{
		{TagRegisteredVer, strconv.Itoa(e.Version)},
		{TagRegisteredName, e.ModelName},
		{TagRegisteredStage, e.Stage},
	}
	for _, kv := range tags {
		if err := r.tracker.SetTag(ctx, e.RunID, kv[0], kv[1]); err != nil {
			return fmt.Errorf("tag %s: %w", kv[0], err)
		}
	}
	return nil
}

func (r *Registrar) writeInfo(ctx context.Context, e RegisteredModelEntry) error {
	data, err := json.MarshalIndent(RegisteredModelInfo{
		ModelName: e.ModelName,
		RunID:     e.RunID,
		Version:   e.Version,
		Status:    "registered",
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registration info: %w", err)
	}
	name := RegisteredInfoName(e.ModelName)
	if r.outputDir != "" {
		if err := flagstore.WriteFileAtomic(filepath.Join(r.outputDir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := r.tracker.LogArtifact(ctx, e.RunID, name, data); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func existingEntry(run tracking.Run, name string) (*RegisteredModelEntry, bool) {
	if run.Tag(TagRegisteredName) != name {
		return nil, false
	}
	version, err := strconv.Atoi(run.Tag(TagRegisteredVer))
	if err != nil {
		return nil, false
	}
	stage := run.Tag(TagRegisteredStage)
	if stage == "" {
		stage = tracking.DefaultStage
	}
	return &RegisteredModelEntry{
		ModelName: name,
		RunID:     run.ID,
		Version:   version,
		Stage:     stage,
		Source:    tracking.ModelURI(run.ID),
	}, true
}
