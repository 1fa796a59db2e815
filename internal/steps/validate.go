package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/eval"
	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/promotion"
	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// Dataset files written by training and read during validation.
const (
	FeaturesFile = "X_test.csv"
	LabelsFile   = "y_test.csv"
)

// ValidateResult reports a recorded decision. FlagPath is empty when no flag
// store is configured.
type ValidateResult struct {
	Decision promotion.Decision
	FlagPath string
}

// #region validate
// Validate evaluates the candidate run of m (runID, or the experiment's
// latest run) and records the gate decision. A missing run returns nil and
// no error.
func Validate(ctx context.Context, env *Env, m config.Model, runID string) (*ValidateResult, error) {
	log := env.Log.With("model", m.Name)
	run, ok, err := candidateRun(ctx, env.Tracker, m.ExperimentName, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("skipping validation: no candidate run", "experiment", m.ExperimentName, "outcome", "skip")
		return nil, nil
	}
	log = log.With("run_id", run.ID)

	outputDir := env.Config.Data.OutputDir
	truth, err := eval.ReadLabelsFile(filepath.Join(outputDir, LabelsFile))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	pred, err := predictorFor(m, outputDir).Predict(ctx, eval.PredictRequest{
		RunID:        run.ID,
		ModelURI:     tracking.ModelURI(run.ID),
		FeaturesPath: filepath.Join(outputDir, FeaturesFile),
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	metrics, err := eval.Evaluate(truth, pred)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", m.Name, err)
	}

	d := promotion.Decide(m.Name, run.ID, metrics, m.MetricsThreshold)
	attachments, err := schemaAttachments(m)
	if err != nil {
		return nil, err
	}

	sess, err := tracking.Attach(ctx, env.Tracker, run.ID)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx, tracking.RunFinished)

	signals := []promotion.Signal{promotion.TagSignal{Tracker: env.Tracker}}
	res := &ValidateResult{Decision: d}
	if env.Flags != nil {
		signals = append(signals, promotion.FlagSignal{Store: env.Flags})
		res.FlagPath = env.Flags.Location(flagstore.FlagName(m.Name))
	}
	rec := promotion.NewRecorder(outputDir, env.auditLog(), signals...)
	if err := rec.Record(ctx, sess, d, attachments...); err != nil {
		if errors.Is(err, promotion.ErrIllegalTransition) {
			log.Warn("skipping validation: run already has a final decision", "error", err, "outcome", "skip")
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// #endregion validate

func candidateRun(ctx context.Context, t tracking.Tracker, experiment, runID string) (tracking.Run, bool, error) {
	var (
		run tracking.Run
		err error
	)
	if runID != "" {
		run, err = t.GetRun(ctx, runID)
	} else {
		run, err = tracking.LatestRun(ctx, t, experiment)
	}
	if errors.Is(err, tracking.ErrNotFound) || errors.Is(err, tracking.ErrNoRuns) {
		return run, false, nil
	}
	if err != nil {
		return run, false, fmt.Errorf("resolve candidate run: %w", err)
	}
	return run, true, nil
}

func predictorFor(m config.Model, outputDir string) eval.Predictor {
	if len(m.PredictCommand) > 0 {
		return eval.CommandPredictor{Command: m.PredictCommand}
	}
	path := m.PredictionsFile
	if path == "" {
		path = filepath.Join(outputDir, m.Name+"_predictions.csv")
	}
	return eval.FilePredictor{Path: path}
}

func schemaAttachments(m config.Model) ([]promotion.Attachment, error) {
	var out []promotion.Attachment
	for _, s := range []struct {
		suffix string
		schema map[string]any
	}{
		{"_input_schema.json", m.ModelInputSchema},
		{"_output_schema.json", m.ModelOutputSchema},
	} {
		if len(s.schema) == 0 {
			continue
		}
		data, err := json.MarshalIndent(s.schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode schema of %s: %w", m.Name, err)
		}
		out = append(out, promotion.Attachment{Name: m.Name + s.suffix, Data: data})
	}
	return out, nil
}
