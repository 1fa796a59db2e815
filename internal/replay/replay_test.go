package replay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/gate"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/promotion"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reference = eval.MetricSet{"accuracy": 0.91, "precision": 0.88, "recall": 0.85, "f1_score": 0.86}

func TestReplayUsesCaseThresholdsByDefault(t *testing.T) {
	cases := []Case{
		{ID: "a", Actual: reference, Expected: gate.ThresholdSet{"accuracy": 0.9}, Accepted: true},
		{ID: "b", Actual: reference, Expected: gate.ThresholdSet{"accuracy": 0.95}, Accepted: false},
	}
	results := Replay(cases, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Flipped, r.Case.ID)
	}
	assert.Equal(t, Summary{Total: 2, Accepted: 1, Rejected: 1}, Summarize(results))
}

func TestReplayReportsFlipsUnderNewThresholds(t *testing.T) {
	cases := []Case{
		{ID: "was-accepted", Actual: reference, Expected: gate.ThresholdSet{"accuracy": 0.9}, Accepted: true},
		{ID: "was-rejected", Actual: eval.MetricSet{"accuracy": 0.8}, Expected: gate.ThresholdSet{"accuracy": 0.85}, Accepted: false},
		{ID: "stays-accepted", Actual: eval.MetricSet{"accuracy": 0.97}, Expected: gate.ThresholdSet{"accuracy": 0.9}, Accepted: true},
	}
	results := Replay(cases, gate.ThresholdSet{"accuracy": 0.95})

	flipped := map[string]bool{}
	for _, r := range results {
		flipped[r.Case.ID] = r.Flipped
	}
	if diff := cmp.Diff(map[string]bool{"was-accepted": true, "was-rejected": false, "stays-accepted": false}, flipped); diff != "" {
		t.Errorf("flips mismatch (-want +got):\n%s", diff)
	}
	s := Summarize(results)
	assert.Equal(t, 1, s.Flips)
	assert.Equal(t, 1, s.NewlyRejected)
	assert.Equal(t, 0, s.NewlyAccepted)
}

func TestReplayLoweredThresholdAcceptsRejected(t *testing.T) {
	cases := []Case{{ID: "x", Actual: eval.MetricSet{"accuracy": 0.8}, Expected: gate.ThresholdSet{"accuracy": 0.85}}}
	s := Summarize(Replay(cases, gate.ThresholdSet{"accuracy": 0.75}))
	assert.Equal(t, Summary{Total: 1, Accepted: 1, Flips: 1, NewlyAccepted: 1}, s)
}

func TestFromAuditKeepsGateDecisionsOnly(t *testing.T) {
	metrics, _ := json.Marshal(reference)
	entries := []logging.AuditEntry{
		{ID: 3, ModelName: "model_lr", RunID: "r1", Decision: "registered"},
		{ID: 2, ModelName: "model_lr", RunID: "r1", Decision: "accepted", MetricsJSON: string(metrics), ThresholdsJSON: `{"accuracy":0.9}`},
		{ID: 1, ModelName: "model_rf", RunID: "r2", Decision: "rejected", MetricsJSON: `{"accuracy":0.7}`, ThresholdsJSON: `{"accuracy":0.9}`},
		{ID: 0, ModelName: "model_rf", RunID: "r0", Decision: "skipped"},
	}
	cases, err := FromAudit(entries)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "audit-2", cases[0].ID)
	assert.True(t, cases[0].Accepted)
	assert.Equal(t, 0.9, cases[0].Expected["accuracy"])
	assert.False(t, cases[1].Accepted)

	_, err = FromAudit([]logging.AuditEntry{{ID: 9, Decision: "accepted", MetricsJSON: "{"}})
	assert.Error(t, err)
}

func TestReplayFromSQLAuditLog(t *testing.T) {
	db, err := tracking.OpenDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	audit, err := logging.NewSQLAuditLog(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, audit.Append(ctx, logging.AuditEntry{
		ModelName: "model_lr", RunID: "r1", Decision: "accepted",
		MetricsJSON: `{"accuracy":0.91,"f1_score":0.86}`, ThresholdsJSON: `{"accuracy":0.9,"f1_score":0.85}`,
	}))
	entries, err := audit.Recent(ctx, "model_lr", 10)
	require.NoError(t, err)

	cases, err := FromAudit(entries)
	require.NoError(t, err)
	s := Summarize(Replay(cases, gate.ThresholdSet{"accuracy": 0.95}))
	assert.Equal(t, 1, s.NewlyRejected)
}

func TestFixtureCasesMatchGate(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "gate_cases.json"))
	require.NoError(t, err)
	require.Len(t, f.Cases, 5)
	assert.Empty(t, f.Check())
}

func TestFixtureMismatchIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cases":[{"actual":{"accuracy":0.5},"expected":{"accuracy":0.9},"accepted":true}]}`), 0o644))
	f, err := LoadFixture(path)
	require.NoError(t, err)

	mismatches := f.Check()
	require.Len(t, mismatches, 1)
	assert.Equal(t, "case-1", mismatches[0].Case.ID)
	assert.False(t, mismatches[0].Decision.Accepted())
}

func TestFixtureReplayCasesNamesUnnamedCases(t *testing.T) {
	f := &Fixture{Cases: []FixtureCase{
		{ID: "named", Model: "m", Actual: eval.MetricSet{"accuracy": 0.9}},
		{Model: "m"},
	}}
	cases := f.ReplayCases()
	require.Len(t, cases, 2)
	assert.Equal(t, "named", cases[0].ID)
	assert.Equal(t, "case-2", cases[1].ID)
	assert.Equal(t, 0.9, cases[0].Actual["accuracy"])
}

func TestLoadFixtureErrors(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadFixture(path)
	assert.Error(t, err)
}

func TestFromAuditCountsRerecordedRunOnce(t *testing.T) {
	store, err := tracking.NewStore(filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	audit, err := logging.NewSQLAuditLog(store.DB())
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := tracking.Open(ctx, store, "lr-exp", "train")
	require.NoError(t, err)
	d := promotion.Decide("model_lr", sess.RunID(), reference, gate.ThresholdSet{"accuracy": 0.9})
	rec := promotion.NewRecorder("", audit, promotion.TagSignal{Tracker: store})
	require.NoError(t, rec.Record(ctx, sess, d))
	require.NoError(t, rec.Record(ctx, sess, d))
	require.NoError(t, sess.Close(ctx, tracking.RunFinished))

	entries, err := audit.Recent(ctx, "model_lr", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	cases, err := FromAudit(entries)
	require.NoError(t, err)
	s := Summarize(Replay(cases, nil))
	assert.Equal(t, Summary{Total: 1, Accepted: 1}, s)
}
