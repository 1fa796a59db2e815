package components

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS component_versions (
	name       TEXT NOT NULL,
	version    TEXT NOT NULL,
	tags_json  TEXT NOT NULL DEFAULT '{}',
	document   BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (name, version)
);
`

// #region sql-registry
// SQLRegistry keeps component versions in a SQLite table. Versions are
// assigned as the next integer per name.
type SQLRegistry struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRegistry creates the component_versions table if needed.
func NewSQLRegistry(db *sql.DB) (*SQLRegistry, error) {
	if _, err := db.Exec(registrySchema); err != nil {
		return nil, fmt.Errorf("component registry schema: %w", err)
	}
	return &SQLRegistry{db: db, now: time.Now}, nil
}

func (r *SQLRegistry) ListVersions(ctx context.Context, name string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM component_versions WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("list component versions: %w", err)
	}
	defer rows.Close()
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan component version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return CompareVersions(versions[i], versions[j]) < 0 })
	return versions, nil
}

func (r *SQLRegistry) GetTags(ctx context.Context, name, version string) (map[string]string, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT tags_json FROM component_versions WHERE name = ? AND version = ?`, name, version,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get component tags: %w", err)
	}
	tags := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode component tags: %w", err)
	}
	return tags, nil
}

// Publish stores document as the next version of name in one statement.
func (r *SQLRegistry) Publish(ctx context.Context, name string, document []byte) (string, error) {
	tags, err := documentTags(document)
	if err != nil {
		return "", err
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode component tags: %w", err)
	}
	var version string
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO component_versions (name, version, tags_json, document, created_at)
		 SELECT ?, CAST(COALESCE(MAX(CAST(version AS INTEGER)), 0) + 1 AS TEXT), ?, ?, ?
		 FROM component_versions WHERE name = ?
		 RETURNING version`,
		name, string(tagsJSON), document, r.now().UnixNano(), name,
	).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("insert component version: %w", err)
	}
	return version, nil
}

// Document returns the stored document of one version.
func (r *SQLRegistry) Document(ctx context.Context, name, version string) ([]byte, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM component_versions WHERE name = ? AND version = ?`, name, version,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("component %s:%s not found", name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get component document: %w", err)
	}
	return doc, nil
}

// #endregion sql-registry

// documentTags extracts the tags mapping of a prepared descriptor.
func documentTags(document []byte) (map[string]string, error) {
	var doc struct {
		Tags map[string]any `yaml:"tags"`
	}
	if err := yaml.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	tags := make(map[string]string, len(doc.Tags))
	for k, v := range doc.Tags {
		tags[k] = fmt.Sprint(v)
	}
	return tags, nil
}
