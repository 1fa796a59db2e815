package logging

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupAudit(t *testing.T) (*SQLAuditLog, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	l, err := NewSQLAuditLog(db)
	if err != nil {
		t.Fatalf("NewSQLAuditLog: %v", err)
	}
	return l, db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	l, db := setupAudit(t)
	ctx := context.Background()

	entry := AuditEntry{
		ModelName:      "model_lr",
		RunID:          "r1",
		Decision:       "accepted",
		Reason:         "all 2 thresholds met",
		MetricsJSON:    `{"accuracy":0.91}`,
		ThresholdsJSON: `{"accuracy":0.9}`,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := l.Append(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM promotion_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	got, err := l.Recent(ctx, "model_lr", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Decision != "accepted" || got[0].MetricsJSON != entry.MetricsJSON {
		t.Fatalf("unexpected entries %+v", got)
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("created_at: got %v", got[0].CreatedAt)
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	_, db := setupAudit(t)

	err := LogDecision(context.Background(), db, AuditEntry{ModelName: "m", RunID: "r", Decision: "skipped"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reason, metrics sql.NullString
	var created string
	db.QueryRow("SELECT reason, metrics_json, created_at FROM promotion_log").Scan(&reason, &metrics, &created)
	if reason.Valid || metrics.Valid {
		t.Error("expected NULL for empty optional fields")
	}
	if created == "" {
		t.Error("expected created_at to be filled")
	}
}

func TestRecent_FiltersAndOrders(t *testing.T) {
	l, _ := setupAudit(t)
	ctx := context.Background()
	l.Append(ctx, AuditEntry{ModelName: "a", RunID: "1", Decision: "rejected"})
	l.Append(ctx, AuditEntry{ModelName: "b", RunID: "2", Decision: "accepted"})
	l.Append(ctx, AuditEntry{ModelName: "a", RunID: "3", Decision: "accepted"})

	onlyA, _ := l.Recent(ctx, "a", 10)
	if len(onlyA) != 2 || onlyA[0].RunID != "3" {
		t.Fatalf("expected newest-first entries for a, got %+v", onlyA)
	}
	all, _ := l.Recent(ctx, "", 2)
	if len(all) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(all))
	}
}

func TestLogDecision_Error(t *testing.T) {
	_, db := setupAudit(t)
	db.Close()

	if err := LogDecision(context.Background(), db, AuditEntry{ModelName: "m", RunID: "r", Decision: "accepted"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected passthrough for non-empty string")
	}
}

// #endregion null-if-empty-tests
