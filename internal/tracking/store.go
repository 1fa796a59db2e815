package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	experiment_id TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	experiment_id TEXT NOT NULL,
	name          TEXT,
	status        TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER,
	FOREIGN KEY (experiment_id) REFERENCES experiments(experiment_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id, start_time);

CREATE TABLE IF NOT EXISTS run_params (
	run_id TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, key),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, key),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS run_tags (
	run_id TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, key),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS run_artifacts (
	run_id     TEXT NOT NULL,
	path       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, path),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS model_versions (
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	run_id     TEXT NOT NULL,
	source     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (name, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS model_versions_run ON model_versions (name, run_id);
`

// #endregion schema

// #region store-struct
// Store is the SQLite-backed Tracker.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// OpenDB opens a SQLite database in WAL mode. Foreign keys and the busy
// timeout are per-connection settings, so they travel in the DSN and apply to
// every pooled connection.
func OpenDB(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	return db, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (audit log,
// component registry).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region experiments
// CreateExperiment returns the experiment with the given name, creating it
// when absent.
func (s *Store) CreateExperiment(ctx context.Context, name string) (Experiment, error) {
	if name == "" {
		return Experiment{}, fmt.Errorf("experiment name is required")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (experiment_id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), name, now.UnixNano(),
	)
	if err != nil {
		return Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	return s.GetExperimentByName(ctx, name)
}

// GetExperimentByName looks an experiment up by its unique name.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (Experiment, error) {
	var exp Experiment
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, name, created_at FROM experiments WHERE name = ?`, name,
	).Scan(&exp.ID, &exp.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("experiment %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("get experiment %q: %w", name, err)
	}
	exp.CreatedAt = fromNanos(created)
	return exp, nil
}

// ListExperiments returns all experiments ordered by name.
func (s *Store) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT experiment_id, name, created_at FROM experiments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []Experiment
	for rows.Next() {
		var exp Experiment
		var created int64
		if err := rows.Scan(&exp.ID, &exp.Name, &created); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exp.CreatedAt = fromNanos(created)
		out = append(out, exp)
	}
	return out, rows.Err()
}

// #endregion experiments

// #region runs
// StartRun creates a RUNNING run under an experiment.
func (s *Store) StartRun(ctx context.Context, experimentID, name string) (Run, error) {
	run := Run{
		ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		ExperimentID: experimentID,
		Name:         name,
		Status:       RunRunning,
		StartTime:    s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, experiment_id, name, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ExperimentID, nullIfEmpty(name), string(run.Status), run.StartTime.UnixNano(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// EndRun sets a terminal status and end time.
func (s *Store) EndRun(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ? WHERE run_id = ?`,
		string(status), s.now().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("end run %s: %w", runID, err)
	}
	return requireRow(res, "run "+runID)
}

// GetRun loads a run with its params, metrics and tags.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, experiment_id, name, status, start_time, end_time FROM runs WHERE run_id = ?`, runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	if err := s.loadRunData(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// SearchRuns returns the newest runs of an experiment first.
func (s *Store) SearchRuns(ctx context.Context, experimentID string, maxResults int) ([]Run, error) {
	if maxResults <= 0 {
		maxResults = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, experiment_id, name, status, start_time, end_time
		 FROM runs WHERE experiment_id = ?
		 ORDER BY start_time DESC, rowid DESC LIMIT ?`,
		experimentID, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		if err := s.loadRunData(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// #endregion runs

// #region run-data
// LogParam records a run parameter. Re-logging a key replaces its value.
func (s *Store) LogParam(ctx context.Context, runID, key, value string) error {
	return s.upsert(ctx, "log param",
		`INSERT INTO run_params (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
		runID, key, value,
	)
}

// LogMetric records the latest value of a run metric.
func (s *Store) LogMetric(ctx context.Context, runID, key string, value float64) error {
	return s.upsert(ctx, "log metric",
		`INSERT INTO run_metrics (run_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		runID, key, value, s.now().UnixNano(),
	)
}

// SetTag sets a run tag, overwriting any previous value.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	return s.upsert(ctx, "set tag",
		`INSERT INTO run_tags (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
		runID, key, value,
	)
}

// LogArtifact stores an artifact, replacing any previous content at path.
func (s *Store) LogArtifact(ctx context.Context, runID, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return s.upsert(ctx, "log artifact",
		`INSERT INTO run_artifacts (run_id, path, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		runID, path, data, s.now().UnixNano(),
	)
}

// GetArtifact reads an artifact's content.
func (s *Store) GetArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM run_artifacts WHERE run_id = ? AND path = ?`, runID, path,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s: %w", runID, path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return data, nil
}

// ListArtifacts returns the artifact paths of a run in lexical order.
func (s *Store) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM run_artifacts WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// #endregion run-data

// #region registry
// RegisterModel assigns the next version number for name in a single
// statement, so concurrent writers never reuse a version. A run holds at
// most one version per name; registering it again returns ErrAlreadyExists.
func (s *Store) RegisterModel(ctx context.Context, name, source, runID string) (ModelVersion, error) {
	if name == "" {
		return ModelVersion{}, fmt.Errorf("model name is required")
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return ModelVersion{}, err
	}
	now := s.now()
	mv := ModelVersion{Name: name, RunID: runID, Source: source, Stage: DefaultStage, CreatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO model_versions (name, version, run_id, source, stage, created_at)
		 SELECT ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ? FROM model_versions WHERE name = ?
		 RETURNING version`,
		name, runID, source, DefaultStage, now.UnixNano(), name,
	).Scan(&mv.Version)
	if err != nil {
		if isConstraintErr(err) {
			return ModelVersion{}, fmt.Errorf("register %s: %w", name, ErrAlreadyExists)
		}
		return ModelVersion{}, fmt.Errorf("register %s: %w", name, err)
	}
	return mv, nil
}

// ListModelVersions returns all versions of a registered model, newest first.
func (s *Store) ListModelVersions(ctx context.Context, name string) ([]ModelVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, run_id, source, stage, created_at FROM model_versions
		 WHERE name = ? ORDER BY version DESC`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()

	var out []ModelVersion
	for rows.Next() {
		var mv ModelVersion
		var created int64
		if err := rows.Scan(&mv.Name, &mv.Version, &mv.RunID, &mv.Source, &mv.Stage, &created); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		mv.CreatedAt = fromNanos(created)
		out = append(out, mv)
	}
	return out, rows.Err()
}

// ListRegisteredModels returns the distinct registered model names.
func (s *Store) ListRegisteredModels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM model_versions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list registered models: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan model name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// #endregion registry

// #region helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var name sql.NullString
	var status string
	var start int64
	var end sql.NullInt64
	if err := row.Scan(&run.ID, &run.ExperimentID, &name, &status, &start, &end); err != nil {
		return Run{}, err
	}
	run.Name = name.String
	run.Status = RunStatus(status)
	run.StartTime = fromNanos(start)
	if end.Valid {
		run.EndTime = fromNanos(end.Int64)
	}
	return run, nil
}

func (s *Store) loadRunData(ctx context.Context, run *Run) error {
	run.Params = map[string]string{}
	run.Metrics = map[string]float64{}
	run.Tags = map[string]string{}

	if err := s.scanPairs(ctx, `SELECT key, value FROM run_params WHERE run_id = ?`, run.ID, func(k string, v any) {
		run.Params[k] = asString(v)
	}); err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	if err := s.scanPairs(ctx, `SELECT key, value FROM run_metrics WHERE run_id = ?`, run.ID, func(k string, v any) {
		if f, ok := v.(float64); ok {
			run.Metrics[k] = f
		} else if n, ok := v.(int64); ok {
			run.Metrics[k] = float64(n)
		}
	}); err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}
	if err := s.scanPairs(ctx, `SELECT key, value FROM run_tags WHERE run_id = ?`, run.ID, func(k string, v any) {
		run.Tags[k] = asString(v)
	}); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	return nil
}

func (s *Store) scanPairs(ctx context.Context, query, runID string, fn func(string, any)) error {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v any
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		fn(k, v)
	}
	return rows.Err()
}

func (s *Store) upsert(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%s: run %v: %w", op, args[0], ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// isConstraintErr matches SQLite constraint failures without importing the
// driver's error codes.
func isConstraintErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "foreign key")
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
