package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// Environment passed to an external training command.
const (
	EnvRunID           = "MLPIPE_RUN_ID"
	EnvOutputDir       = "MLPIPE_OUTPUT_DIR"
	EnvArtifactDir     = "MLPIPE_ARTIFACT_DIR"
	EnvHyperparameters = "MLPIPE_HYPERPARAMETERS"
	EnvDataPath        = "MLPIPE_DATA_PATH"
	EnvTargetColumn    = "MLPIPE_TARGET_COLUMN"
	EnvModel           = "MLPIPE_MODEL"
)

// MetricsFile is read from the artifact directory after training and logged
// as run metrics instead of being uploaded.
const MetricsFile = "metrics.json"

// RunIDFile names the file recording the run produced by a train step.
func RunIDFile(model string) string {
	return model + "_run_id.txt"
}

// TrainResult reports the run created by Train.
type TrainResult struct {
	RunID       string
	ArtifactDir string
}

// #region train
// Train opens a session for m, logs hyperparameters and tags, runs the
// model's training command and uploads what it wrote to the artifact
// directory. The session closes FINISHED on success and FAILED otherwise.
func Train(ctx context.Context, env *Env, m config.Model) (res TrainResult, err error) {
	sess, err := tracking.Open(ctx, env.Tracker, m.ExperimentName, m.RunName)
	if err != nil {
		return res, err
	}
	res.RunID = sess.RunID()
	defer func() {
		status := tracking.RunFinished
		if err != nil {
			status = tracking.RunFailed
		}
		if cerr := sess.Close(context.WithoutCancel(ctx), status); cerr != nil && err == nil {
			err = cerr
		}
	}()

	log := env.Log.With("model", m.Name, "run_id", res.RunID)
	if err := sess.LogParams(ctx, m.Params()); err != nil {
		return res, fmt.Errorf("log params: %w", err)
	}
	if err := sess.SetTags(ctx, m.ModelTags); err != nil {
		return res, fmt.Errorf("set tags: %w", err)
	}

	outputDir := env.Config.Data.OutputDir
	res.ArtifactDir = filepath.Join(outputDir, m.Name, res.RunID)
	if err := os.MkdirAll(res.ArtifactDir, 0o755); err != nil {
		return res, fmt.Errorf("create artifact dir: %w", err)
	}

	if len(m.TrainCommand) == 0 {
		log.Warn("no train_command configured; run records parameters only")
	} else {
		if err := runTrainCommand(ctx, env, m, res); err != nil {
			return res, err
		}
		if err := uploadArtifacts(ctx, sess, res.ArtifactDir); err != nil {
			return res, err
		}
	}

	runIDPath := filepath.Join(outputDir, RunIDFile(m.Name))
	if err := flagstore.WriteFileAtomic(runIDPath, []byte(res.RunID), 0o644); err != nil {
		return res, fmt.Errorf("write run id: %w", err)
	}
	if err := sess.LogArtifact(ctx, "run_id.txt", []byte(res.RunID)); err != nil {
		return res, fmt.Errorf("upload run id: %w", err)
	}
	log.Info("training run finished", "artifacts", res.ArtifactDir)
	return res, nil
}

// #endregion train

func runTrainCommand(ctx context.Context, env *Env, m config.Model, res TrainResult) error {
	hp, err := m.HyperparametersJSON()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, m.TrainCommand[0], m.TrainCommand[1:]...)
	cmd.Env = append(os.Environ(),
		EnvRunID+"="+res.RunID,
		EnvOutputDir+"="+env.Config.Data.OutputDir,
		EnvArtifactDir+"="+res.ArtifactDir,
		EnvHyperparameters+"="+hp,
		EnvDataPath+"="+env.Config.Data.Path,
		EnvTargetColumn+"="+env.Config.Data.TargetColumn,
		EnvModel+"="+m.Name,
		config.EnvConfigPath+"="+env.ConfigPath,
	)
	var stderr bytes.Buffer
	cmd.Stdout = os.Stderr
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("train command for %s: %w: %s", m.Name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// uploadArtifacts logs metrics.json as metrics and every other file under
// dir as model/<relative path>.
func uploadArtifacts(ctx context.Context, sess *tracking.Session, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", rel, err)
		}
		if rel == MetricsFile {
			var metrics map[string]float64
			if err := json.Unmarshal(data, &metrics); err != nil {
				return fmt.Errorf("parse %s: %w", MetricsFile, err)
			}
			return sess.LogMetrics(ctx, metrics)
		}
		return sess.LogArtifact(ctx, "model/"+filepath.ToSlash(rel), data)
	})
}

// ReadRunID returns the run recorded by the last train step of model, or ""
// when none was recorded.
func ReadRunID(outputDir, model string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(outputDir, RunIDFile(model)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read run id: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
