package eval

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// #region predictor
// Predictor produces predicted labels for a logged model. Model loading and
// inference belong to the external ML library; implementations only move
// labels across the process boundary.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) ([]int, error)
}

// PredictRequest identifies the model and the features to score.
type PredictRequest struct {
	RunID        string
	ModelURI     string // runs:/<run_id>/model
	FeaturesPath string // X_test.csv
}

// #endregion predictor

// #region file-predictor
// FilePredictor reads precomputed predictions from a CSV file.
type FilePredictor struct {
	Path string
}

func (p FilePredictor) Predict(_ context.Context, _ PredictRequest) ([]int, error) {
	return ReadLabelsFile(p.Path)
}

// #endregion file-predictor

// #region command-predictor
// CommandPredictor runs an external scoring command and parses labels from
// its stdout. The request is passed through MLPIPE_* environment variables.
type CommandPredictor struct {
	Command []string
}

func (p CommandPredictor) Predict(ctx context.Context, req PredictRequest) ([]int, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("predict command is empty")
	}
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Env = append(os.Environ(),
		"MLPIPE_RUN_ID="+req.RunID,
		"MLPIPE_MODEL_URI="+req.ModelURI,
		"MLPIPE_FEATURES="+req.FeaturesPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("predict command: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return ReadLabels(&stdout)
}

// #endregion command-predictor
