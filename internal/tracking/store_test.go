package tracking

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock makes start_time ordering deterministic.
func fixedClock(s *Store, start time.Time) {
	cur := start
	s.now = func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestCreateExperimentIsIdempotent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	a, err := s.CreateExperiment(ctx, "lr")
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	b, err := s.CreateExperiment(ctx, "lr")
	if err != nil {
		t.Fatalf("CreateExperiment again: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same experiment id, got %s and %s", a.ID, b.ID)
	}
}

func TestGetExperimentNotFound(t *testing.T) {
	s := tempStore(t)
	_, err := s.GetExperimentByName(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchRunsNewestFirst(t *testing.T) {
	s := tempStore(t)
	fixedClock(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	exp, _ := s.CreateExperiment(ctx, "rf")
	first, _ := s.StartRun(ctx, exp.ID, "first")
	second, _ := s.StartRun(ctx, exp.ID, "second")

	runs, err := s.SearchRuns(ctx, exp.ID, 10)
	if err != nil {
		t.Fatalf("SearchRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", runs[0].Name, runs[1].Name)
	}

	latest, err := LatestRun(ctx, s, "rf")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("expected latest %s, got %s", second.ID, latest.ID)
	}
}

func TestLatestRunExpectedMisses(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if _, err := LatestRun(ctx, s, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s.CreateExperiment(ctx, "empty")
	if _, err := LatestRun(ctx, s, "empty"); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}
}

func TestRunDataRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	exp, _ := s.CreateExperiment(ctx, "lr")
	run, _ := s.StartRun(ctx, exp.ID, "train")

	if err := s.LogParam(ctx, run.ID, "C", "1.0"); err != nil {
		t.Fatalf("LogParam: %v", err)
	}
	if err := s.LogMetric(ctx, run.ID, "accuracy", 0.5); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := s.LogMetric(ctx, run.ID, "accuracy", 0.91); err != nil {
		t.Fatalf("LogMetric overwrite: %v", err)
	}
	if err := s.SetTag(ctx, run.ID, "evaluation_status", "rejected"); err != nil {
		t.Fatalf("SetTag: %v", err)
	}
	if err := s.SetTag(ctx, run.ID, "evaluation_status", "accepted"); err != nil {
		t.Fatalf("SetTag overwrite: %v", err)
	}
	if err := s.EndRun(ctx, run.ID, RunFinished); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Params["C"] != "1.0" {
		t.Errorf("param C: %q", got.Params["C"])
	}
	if got.Metrics["accuracy"] != 0.91 {
		t.Errorf("metric accuracy: %f", got.Metrics["accuracy"])
	}
	if got.Tag("evaluation_status") != "accepted" {
		t.Errorf("tag: %q", got.Tag("evaluation_status"))
	}
	if got.Status != RunFinished || got.EndTime.IsZero() {
		t.Errorf("expected finished run with end time, got %s %v", got.Status, got.EndTime)
	}
}

func TestWritesToUnknownRunAreNotFound(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.SetTag(ctx, "ghost", "k", "v"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTag: expected ErrNotFound, got %v", err)
	}
	if err := s.EndRun(ctx, "ghost", RunFinished); !errors.Is(err, ErrNotFound) {
		t.Errorf("EndRun: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetRun(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun: expected ErrNotFound, got %v", err)
	}
}

func TestArtifactOverwrite(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	exp, _ := s.CreateExperiment(ctx, "lr")
	run, _ := s.StartRun(ctx, exp.ID, "")

	s.LogArtifact(ctx, run.ID, "eval.json", []byte("one"))
	s.LogArtifact(ctx, run.ID, "eval.json", []byte("two"))

	data, err := s.GetArtifact(ctx, run.ID, "eval.json")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("expected overwritten content, got %q", data)
	}
	paths, _ := s.ListArtifacts(ctx, run.ID)
	if len(paths) != 1 {
		t.Fatalf("expected 1 artifact, got %v", paths)
	}
	if _, err := s.GetArtifact(ctx, run.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterModelVersionsIncrease(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	exp, _ := s.CreateExperiment(ctx, "lr")
	run, _ := s.StartRun(ctx, exp.ID, "")
	next, _ := s.StartRun(ctx, exp.ID, "")

	v1, err := s.RegisterModel(ctx, "LogisticRegressionModel", ModelURI(run.ID), run.ID)
	if err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	v2, err := s.RegisterModel(ctx, "LogisticRegressionModel", ModelURI(next.ID), next.ID)
	if err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	other, _ := s.RegisterModel(ctx, "RandomForestModel", ModelURI(run.ID), run.ID)

	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("expected versions 1 and 2, got %d and %d", v1.Version, v2.Version)
	}
	if other.Version != 1 {
		t.Fatalf("versions are per model name, got %d", other.Version)
	}
	if v1.Stage != DefaultStage {
		t.Fatalf("expected stage %q, got %q", DefaultStage, v1.Stage)
	}

	versions, _ := s.ListModelVersions(ctx, "LogisticRegressionModel")
	if len(versions) != 2 || versions[0].Version != 2 {
		t.Fatalf("expected newest-first versions, got %+v", versions)
	}
	names, _ := s.ListRegisteredModels(ctx)
	if len(names) != 2 {
		t.Fatalf("expected 2 registered models, got %v", names)
	}
}

func TestRegisterModelUnknownRun(t *testing.T) {
	s := tempStore(t)
	_, err := s.RegisterModel(context.Background(), "m", ModelURI("ghost"), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterModelRunHoldsOneVersionPerName(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	exp, _ := s.CreateExperiment(ctx, "lr")
	run, _ := s.StartRun(ctx, exp.ID, "")

	if _, err := s.RegisterModel(ctx, "m", ModelURI(run.ID), run.ID); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	if _, err := s.RegisterModel(ctx, "m", ModelURI(run.ID), run.ID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	versions, _ := s.ListModelVersions(ctx, "m")
	if len(versions) != 1 {
		t.Fatalf("expected one version, got %+v", versions)
	}
}

func TestRegisterModelConcurrentWritersNeverShareVersion(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	exp, _ := s.CreateExperiment(ctx, "lr")
	runs := make([]Run, 8)
	for i := range runs {
		runs[i], _ = s.StartRun(ctx, exp.ID, "")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for _, run := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mv, err := s.RegisterModel(ctx, "m", ModelURI(run.ID), run.ID)
			if err != nil {
				if !errors.Is(err, ErrAlreadyExists) {
					t.Errorf("RegisterModel: %v", err)
				}
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[mv.Version] {
				t.Errorf("version %d assigned twice", mv.Version)
			}
			seen[mv.Version] = true
		}()
	}
	wg.Wait()
}

func TestModelURI(t *testing.T) {
	if got := ModelURI("abc"); got != "runs:/abc/model" {
		t.Fatalf("unexpected uri %q", got)
	}
}

func TestNewStoreCorruptDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.db")
	os.WriteFile(path, []byte("not a sqlite database"), 0o644)

	if _, err := NewStore(path); err == nil {
		t.Fatal("expected error for corrupted DB file")
	}
}
