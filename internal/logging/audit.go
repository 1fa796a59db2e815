package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const auditSchema = `
CREATE TABLE IF NOT EXISTS promotion_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	model_name      TEXT NOT NULL,
	run_id          TEXT NOT NULL,
	decision        TEXT NOT NULL,
	reason          TEXT,
	metrics_json    TEXT,
	thresholds_json TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_promotion_log_model ON promotion_log(model_name, id);
`

// #endregion schema

// #region audit-log
// SQLAuditLog appends promotion decisions to the promotion_log table.
type SQLAuditLog struct {
	db *sql.DB
}

// NewSQLAuditLog creates the promotion_log table if needed.
func NewSQLAuditLog(db *sql.DB) (*SQLAuditLog, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return &SQLAuditLog{db: db}, nil
}

// Append writes one entry.
func (l *SQLAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	return LogDecision(ctx, l.db, entry)
}

// Recent returns up to limit entries, newest first. An empty model matches all.
func (l *SQLAuditLog) Recent(ctx context.Context, model string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, model_name, run_id, decision, reason, metrics_json, thresholds_json, created_at
		 FROM promotion_log WHERE (? = '' OR model_name = ?) ORDER BY id DESC LIMIT ?`,
		model, model, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var reason, metrics, thresholds sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.ModelName, &e.RunID, &e.Decision, &reason, &metrics, &thresholds, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Reason = reason.String
		e.MetricsJSON = metrics.String
		e.ThresholdsJSON = thresholds.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion audit-log

// #region log-decision
// LogDecision writes a provenance entry to the promotion_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO promotion_log (model_name, run_id, decision, reason, metrics_json, thresholds_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName,
		entry.RunID,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.MetricsJSON),
		nullIfEmpty(entry.ThresholdsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
