package logging

import "time"

// #region audit-entry
// AuditEntry is a single row in the promotion_log table.
type AuditEntry struct {
	ID             int64
	ModelName      string
	RunID          string
	Decision       string // "accepted" | "rejected" | "registered" | "skipped"
	Reason         string
	MetricsJSON    string
	ThresholdsJSON string
	CreatedAt      time.Time
}

// #endregion audit-entry
