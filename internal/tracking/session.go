package tracking

import (
	"context"
	"fmt"
	"sort"
)

// Session is the explicit tracking context of one step invocation: it is
// opened once, used by every component that logs to the run, then closed.
// A Session must not be shared across concurrently running steps.
type Session struct {
	tracker Tracker
	run     Run
	owned   bool
	closed  bool
}

// Open starts a new run under experimentName, creating the experiment when
// needed. Close ends the run.
func Open(ctx context.Context, t Tracker, experimentName, runName string) (*Session, error) {
	exp, err := t.CreateExperiment(ctx, experimentName)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	run, err := t.StartRun(ctx, exp.ID, runName)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{tracker: t, run: run, owned: true}, nil
}

// Attach wraps an existing run, for steps that annotate a run started
// elsewhere. Closing an attached session leaves the run status untouched.
func Attach(ctx context.Context, t Tracker, runID string) (*Session, error) {
	run, err := t.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("attach session: %w", err)
	}
	return &Session{tracker: t, run: run}, nil
}

// RunID returns the id of the session's run.
func (s *Session) RunID() string { return s.run.ID }

// Run returns the run as it was when the session was opened.
func (s *Session) Run() Run { return s.run }

// Tracker exposes the store the session writes to.
func (s *Session) Tracker() Tracker { return s.tracker }

func (s *Session) LogParams(ctx context.Context, params map[string]string) error {
	if s.closed {
		return ErrSessionClosed
	}
	for _, k := range sortedKeys(params) {
		if err := s.tracker.LogParam(ctx, s.run.ID, k, params[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	if s.closed {
		return ErrSessionClosed
	}
	for _, k := range sortedKeys(metrics) {
		if err := s.tracker.LogMetric(ctx, s.run.ID, k, metrics[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) SetTags(ctx context.Context, tags map[string]string) error {
	if s.closed {
		return ErrSessionClosed
	}
	for _, k := range sortedKeys(tags) {
		if err := s.tracker.SetTag(ctx, s.run.ID, k, tags[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) LogArtifact(ctx context.Context, path string, data []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.tracker.LogArtifact(ctx, s.run.ID, path, data)
}

// Close ends an owned run with status. Calling Close more than once is a no-op.
func (s *Session) Close(ctx context.Context, status RunStatus) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.owned {
		return nil
	}
	return s.tracker.EndRun(ctx, s.run.ID, status)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
