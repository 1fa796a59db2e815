package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// AuditLog receives one entry per promotion outcome.
type AuditLog interface {
	Append(ctx context.Context, entry logging.AuditEntry) error
}

// Attachment is an extra artifact stored next to the decision, such as a
// model signature.
type Attachment struct {
	Name string
	Data []byte
}

// EvaluationResultName is the audit document name for a model.
func EvaluationResultName(model string) string {
	return fmt.Sprintf("%s_evaluation_result.json", model)
}

// ThresholdsName is the threshold snapshot name for a model.
func ThresholdsName(model string) string {
	return fmt.Sprintf("%s_thresholds.json", model)
}

// #region recorder
// Recorder persists a Decision: audit documents locally and on the run, the
// observed metrics, then every configured Signal. All writes overwrite, so
// recording the same decision twice leaves one answer behind.
type Recorder struct {
	outputDir string
	signals   []Signal
	audit     AuditLog
	log       *slog.Logger
}

// NewRecorder returns a Recorder. outputDir may be empty to skip local
// copies; audit may be nil.
func NewRecorder(outputDir string, audit AuditLog, signals ...Signal) *Recorder {
	return &Recorder{
		outputDir: outputDir,
		signals:   signals,
		audit:     audit,
		log:       logging.New("recorder"),
	}
}

// Record writes d against the session's run.
func (r *Recorder) Record(ctx context.Context, sess *tracking.Session, d Decision, attachments ...Attachment) error {
	if d.RunID != sess.RunID() {
		return fmt.Errorf("record decision: run %s does not match session run %s", d.RunID, sess.RunID())
	}
	run, err := sess.Tracker().GetRun(ctx, d.RunID)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	if err := CanRecord(StateOf(run), decisionState(d.Accepted)); err != nil {
		return fmt.Errorf("record decision for run %s: %w", d.RunID, err)
	}

	result, err := json.MarshalIndent(d.Result(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal evaluation result: %w", err)
	}
	thresholds, err := json.MarshalIndent(d.Thresholds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	docs := append([]Attachment{
		{Name: EvaluationResultName(d.ModelName), Data: result},
		{Name: ThresholdsName(d.ModelName), Data: thresholds},
	}, attachments...)

	for _, doc := range docs {
		if r.outputDir != "" {
			if err := flagstore.WriteFileAtomic(filepath.Join(r.outputDir, doc.Name), doc.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", doc.Name, err)
			}
		}
		if err := sess.LogArtifact(ctx, doc.Name, doc.Data); err != nil {
			return fmt.Errorf("upload %s: %w", doc.Name, err)
		}
	}
	if err := sess.LogMetrics(ctx, d.Metrics); err != nil {
		return fmt.Errorf("log metrics: %w", err)
	}

	for _, sig := range r.signals {
		if err := sig.Write(ctx, d); err != nil {
			return fmt.Errorf("write %s signal: %w", sig.Name(), err)
		}
	}

	if r.audit != nil {
		entry, err := decisionEntry(d)
		if err != nil {
			return err
		}
		if err := r.audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("audit decision: %w", err)
		}
	}

	r.log.Info("decision recorded",
		"model", d.ModelName,
		"run_id", d.RunID,
		"status", d.Status(),
		"reason", d.Reason,
	)
	return nil
}

// #endregion recorder

func decisionEntry(d Decision) (logging.AuditEntry, error) {
	metrics, err := json.Marshal(d.Metrics)
	if err != nil {
		return logging.AuditEntry{}, fmt.Errorf("marshal audit metrics: %w", err)
	}
	thresholds, err := json.Marshal(d.Thresholds)
	if err != nil {
		return logging.AuditEntry{}, fmt.Errorf("marshal audit thresholds: %w", err)
	}
	return logging.AuditEntry{
		ModelName:      d.ModelName,
		RunID:          d.RunID,
		Decision:       d.Status(),
		Reason:         d.Reason,
		MetricsJSON:    string(metrics),
		ThresholdsJSON: string(thresholds),
		CreatedAt:      d.DecidedAt,
	}, nil
}
