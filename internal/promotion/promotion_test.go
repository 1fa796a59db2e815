package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/gate"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *tracking.Store
	audit *logging.SQLAuditLog
	flags *flagstore.DirStore
	out   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := tracking.NewStore(filepath.Join(dir, "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	audit, err := logging.NewSQLAuditLog(store.DB())
	require.NoError(t, err)
	flags, err := flagstore.NewDirStore(filepath.Join(dir, "flags"))
	require.NoError(t, err)
	return &fixture{store: store, audit: audit, flags: flags, out: filepath.Join(dir, "out")}
}

// trainedRun opens a run the way the train step does and returns its id.
func (f *fixture) trainedRun(t *testing.T, experiment string) string {
	t.Helper()
	ctx := context.Background()
	sess, err := tracking.Open(ctx, f.store, experiment, "train")
	require.NoError(t, err)
	require.NoError(t, sess.Close(ctx, tracking.RunFinished))
	return sess.RunID()
}

func (f *fixture) record(t *testing.T, d Decision, signals ...Signal) error {
	t.Helper()
	ctx := context.Background()
	sess, err := tracking.Attach(ctx, f.store, d.RunID)
	require.NoError(t, err)
	defer sess.Close(ctx, tracking.RunFinished)
	return NewRecorder(f.out, f.audit, signals...).Record(ctx, sess, d)
}

func scenarioMetrics() eval.MetricSet {
	return eval.MetricSet{
		eval.MetricAccuracy:  0.91,
		eval.MetricPrecision: 0.88,
		eval.MetricRecall:    0.85,
		eval.MetricF1:        0.86,
	}
}

func TestEndToEndScenario(t *testing.T) {
	cases := []struct {
		name       string
		thresholds gate.ThresholdSet
		registered bool
	}{
		{"accepted", gate.ThresholdSet{"accuracy": 0.9, "f1_score": 0.85}, true},
		{"rejected after raising accuracy", gate.ThresholdSet{"accuracy": 0.95, "f1_score": 0.85}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			runID := f.trainedRun(t, "lr-exp")

			d := Decide("model_lr", runID, scenarioMetrics(), tc.thresholds)
			assert.Equal(t, tc.registered, d.Accepted)
			require.NoError(t, f.record(t, d, TagSignal{Tracker: f.store}, FlagSignal{Store: f.flags}))

			reg := NewRegistrar(f.store, f.out, f.audit)
			ref := ModelRef{Key: "model_lr", RegistryName: "lr-model", ExperimentName: "lr-exp"}
			for _, sig := range []Signal{TagSignal{Tracker: f.store}, FlagSignal{Store: f.flags}} {
				entry, err := reg.RegisterIfAccepted(ctx, ref, sig)
				require.NoError(t, err)
				if !tc.registered {
					assert.Nil(t, entry, "signal %s", sig.Name())
					continue
				}
				require.NotNil(t, entry)
				assert.Equal(t, 1, entry.Version, "second registration must be idempotent")
				assert.Equal(t, "runs:/"+runID+"/model", entry.Source)
			}

			versions, err := f.store.ListModelVersions(ctx, "lr-model")
			require.NoError(t, err)
			if tc.registered {
				assert.Len(t, versions, 1)
			} else {
				assert.Empty(t, versions)
			}
		})
	}
}

func TestRecordWritesAuditDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	d := Decide("model_lr", runID, scenarioMetrics(), gate.ThresholdSet{"accuracy": 0.9})

	require.NoError(t, f.record(t, d, TagSignal{Tracker: f.store}))

	raw, err := os.ReadFile(filepath.Join(f.out, "model_lr_evaluation_result.json"))
	require.NoError(t, err)
	var got EvaluationResult
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "model_lr", got.ModelName)
	assert.Equal(t, runID, got.EvaluatedRunID)
	assert.True(t, got.Accepted)
	assert.InDelta(t, 0.91, got.ActualMetrics["accuracy"], 1e-9)
	assert.InDelta(t, 0.9, got.ExpectedThresholds["accuracy"], 1e-9)

	uploaded, err := f.store.GetArtifact(ctx, runID, "model_lr_thresholds.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accuracy":0.9}`, string(uploaded))

	run, err := f.store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", run.Tag(TagEvaluationStatus))
	assert.Equal(t, "model_lr", run.Tag(TagEvaluatedModel))
	assert.InDelta(t, 0.86, run.Metrics["f1_score"], 1e-9)
}

func TestRecordTwiceLeavesOneSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	d := Decide("model_lr", runID, scenarioMetrics(), nil)

	for range 2 {
		require.NoError(t, f.record(t, d, TagSignal{Tracker: f.store}, FlagSignal{Store: f.flags}))
	}

	entries, err := os.ReadDir(f.flags.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	artifacts, err := f.store.ListArtifacts(ctx, runID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"model_lr_evaluation_result.json", "model_lr_thresholds.json"}, artifacts)
}

func TestRecordCannotFlipTerminalOutcome(t *testing.T) {
	f := newFixture(t)
	runID := f.trainedRun(t, "lr-exp")

	rejected := Decide("model_lr", runID, scenarioMetrics(), gate.ThresholdSet{"accuracy": 0.99})
	require.NoError(t, f.record(t, rejected, TagSignal{Tracker: f.store}))

	accepted := Decide("model_lr", runID, scenarioMetrics(), nil)
	err := f.record(t, accepted, TagSignal{Tracker: f.store})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRejectionRemovesStaleFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sig := FlagSignal{Store: f.flags}

	first := Decide("model_lr", f.trainedRun(t, "lr-exp"), scenarioMetrics(), nil)
	require.NoError(t, f.record(t, first, sig))
	ok, err := sig.Accepted(ctx, "model_lr", first.RunID)
	require.NoError(t, err)
	require.True(t, ok)

	second := Decide("model_lr", f.trainedRun(t, "lr-exp"), scenarioMetrics(), gate.ThresholdSet{"accuracy": 2.0})
	require.NoError(t, f.record(t, second, sig))
	ok, err = sig.Accepted(ctx, "model_lr", second.RunID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistrarSkipsWithoutRuns(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistrar(f.store, f.out, f.audit)
	ctx := context.Background()

	entry, err := reg.RegisterIfAccepted(ctx, ModelRef{Key: "m", RegistryName: "m", ExperimentName: "nope"}, TagSignal{Tracker: f.store})
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = reg.RegisterIfAccepted(ctx, ModelRef{Key: "m", RegistryName: "m", RunID: "missing"}, TagSignal{Tracker: f.store})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRegistrarSkipsWhenFlagAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	reg := NewRegistrar(f.store, f.out, f.audit)

	entry, err := reg.RegisterIfAccepted(ctx,
		ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID},
		FlagFile{Path: filepath.Join(t.TempDir(), "model_lr_register.flag")},
	)
	require.NoError(t, err)
	assert.Nil(t, entry)

	log, err := f.audit.Recent(ctx, "model_lr", 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "skipped", log[0].Decision)
}

func TestRegistrarRefusesRejectedRunEvenWithFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	d := Decide("model_lr", runID, scenarioMetrics(), gate.ThresholdSet{"recall": 0.99})
	require.NoError(t, f.record(t, d, TagSignal{Tracker: f.store}))
	require.NoError(t, f.flags.Put(ctx, flagstore.FlagName("model_lr"), []byte(runID)))

	entry, err := NewRegistrar(f.store, f.out, nil).RegisterIfAccepted(ctx,
		ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID},
		FlagSignal{Store: f.flags},
	)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRegistrarWritesProvenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	require.NoError(t, f.record(t, Decide("model_lr", runID, scenarioMetrics(), nil), TagSignal{Tracker: f.store}))

	entry, err := NewRegistrar(f.store, f.out, f.audit).RegisterIfAccepted(ctx,
		ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID},
		TagSignal{Tracker: f.store},
	)
	require.NoError(t, err)
	require.NotNil(t, entry)

	run, err := f.store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "1", run.Tag(TagRegisteredVer))
	assert.Equal(t, "lr-model", run.Tag(TagRegisteredName))
	assert.Equal(t, "None", run.Tag(TagRegisteredStage))
	assert.Equal(t, StateRegistered, StateOf(run))

	raw, err := os.ReadFile(filepath.Join(f.out, "registered_model_info_lr-model.json"))
	require.NoError(t, err)
	var info RegisteredModelInfo
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, RegisteredModelInfo{ModelName: "lr-model", RunID: runID, Version: 1, Status: "registered"}, info)
}

type brokenSignal struct{}

func (brokenSignal) Name() string                                 { return "broken" }
func (brokenSignal) Write(context.Context, Decision) error        { return errors.New("unreachable") }
func (brokenSignal) Accepted(context.Context, string, string) (bool, error) {
	return false, errors.New("unreachable")
}

func TestRegistrarPropagatesSignalFailure(t *testing.T) {
	f := newFixture(t)
	runID := f.trainedRun(t, "lr-exp")
	_, err := NewRegistrar(f.store, "", nil).RegisterIfAccepted(context.Background(),
		ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID}, brokenSignal{})
	assert.Error(t, err)
}

func TestConcurrentRegistrarsShareOneVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	require.NoError(t, f.record(t, Decide("model_lr", runID, scenarioMetrics(), nil), TagSignal{Tracker: f.store}))

	ref := ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID}
	entries := make([]*RegisteredModelEntry, 8)
	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := NewRegistrar(f.store, f.out, f.audit)
			entries[i], errs[i] = reg.RegisterIfAccepted(ctx, ref, TagSignal{Tracker: f.store})
		}()
	}
	wg.Wait()

	for i := range entries {
		require.NoError(t, errs[i])
		require.NotNil(t, entries[i])
		assert.Equal(t, 1, entries[i].Version)
	}
	versions, err := f.store.ListModelVersions(ctx, "lr-model")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, runID, versions[0].RunID)

	log, err := f.audit.Recent(ctx, "model_lr", 20)
	require.NoError(t, err)
	registered := 0
	for _, e := range log {
		if e.Decision == "registered" {
			registered++
		}
	}
	assert.Equal(t, 1, registered)
}

func TestRegistrarReturnsVersionHeldByRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.trainedRun(t, "lr-exp")
	require.NoError(t, f.record(t, Decide("model_lr", runID, scenarioMetrics(), nil), TagSignal{Tracker: f.store}))
	// A version exists for the run but its provenance tags were never written.
	mv, err := f.store.RegisterModel(ctx, "lr-model", tracking.ModelURI(runID), runID)
	require.NoError(t, err)

	entry, err := NewRegistrar(f.store, f.out, nil).RegisterIfAccepted(ctx,
		ModelRef{Key: "model_lr", RegistryName: "lr-model", RunID: runID},
		TagSignal{Tracker: f.store},
	)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, mv.Version, entry.Version)

	run, err := f.store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, StateOf(run))
}
