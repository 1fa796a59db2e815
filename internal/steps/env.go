// Package steps implements the pipeline steps (train, validate, register)
// shared by the CLI and the local orchestrator.
package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/promotion"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/georgeannie/mlops-framework/internal/trackingapi"
)

// #region env
// Env carries the collaborators a step needs. It is built once per process
// and never holds a tracking session; each step opens its own.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Tracker    tracking.Tracker
	Flags      flagstore.Store // nil disables the flag-file shim
	Audit      *logging.SQLAuditLog
	Log        *slog.Logger

	closers []io.Closer
}

// Open builds an Env from cfg: tracker from tracking.uri, flag store from
// flags.backend and the audit log at audit.path.
func Open(ctx context.Context, cfg *config.Config, configPath string) (*Env, error) {
	env := &Env{Config: cfg, ConfigPath: configPath, Log: logging.New("steps")}

	tracker, closer, err := OpenTracker(cfg.Tracking.URI)
	if err != nil {
		return nil, err
	}
	env.Tracker = tracker
	env.addCloser(closer)

	flags, err := OpenFlagStore(cfg.Flags)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Flags = flags

	if cfg.Audit.Path != "" {
		db, err := tracking.OpenDB(cfg.Audit.Path)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		env.addCloser(db)
		audit, err := logging.NewSQLAuditLog(db)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Audit = audit
	}
	return env, nil
}

// Close releases every resource opened by Open.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Env) addCloser(c io.Closer) {
	if c != nil {
		e.closers = append(e.closers, c)
	}
}

// auditLog returns the audit log as an interface, nil when disabled.
func (e *Env) auditLog() promotion.AuditLog {
	if e.Audit == nil {
		return nil
	}
	return e.Audit
}

// #endregion env

// #region openers
// OpenTracker connects to the store named by uri: sqlite:///path.db (or a
// bare path) opens a local SQLite store, http(s):// a trackingd server.
func OpenTracker(uri string) (tracking.Tracker, io.Closer, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return trackingapi.NewClient(uri, nil), nil, nil
	case strings.HasPrefix(uri, "sqlite:///"):
		uri = strings.TrimPrefix(uri, "sqlite:///")
	case strings.Contains(uri, "://"):
		return nil, nil, fmt.Errorf("unsupported tracking uri %q", uri)
	}
	if uri == "" {
		return nil, nil, fmt.Errorf("tracking uri is empty")
	}
	store, err := tracking.NewStore(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("open tracking store: %w", err)
	}
	return store, store, nil
}

// OpenFlagStore builds the configured flag backend.
func OpenFlagStore(cfg config.Flags) (flagstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return flagstore.NewS3Store(flagstore.S3Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			Region:          cfg.Region,
			UseSSL:          cfg.UseSSL,
		})
	case "", "dir":
		if cfg.Dir == "" {
			return nil, nil
		}
		return flagstore.NewDirStore(cfg.Dir)
	}
	return nil, fmt.Errorf("unsupported flag backend %q", cfg.Backend)
}

// #endregion openers
