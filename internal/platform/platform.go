// Package platform submits the training pipeline to an orchestrator: in
// process, Azure ML or SageMaker. The provider is chosen once at startup.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/steps"
	"golang.org/x/time/rate"
)

// #region errors
var (
	ErrUnsupportedProvider = errors.New("unsupported platform provider")
	ErrInvalidConfig       = errors.New("invalid platform config")
	ErrUnknownExecution    = errors.New("unknown execution")
)

// #endregion errors

// #region provider
// Provider names an orchestrator implementation.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderAzure Provider = "azure"
	ProviderAWS   Provider = "aws"
)

// ParseProvider maps a config value onto a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderLocal, ProviderAzure, ProviderAWS:
		return p, nil
	case "":
		return ProviderLocal, nil
	}
	return "", fmt.Errorf("%w: %q (want local, azure or aws)", ErrUnsupportedProvider, s)
}

// #endregion provider

// #region orchestrator
// Orchestrator validates, submits and awaits one pipeline execution.
type Orchestrator interface {
	// ValidateConfig checks provider-specific settings before any side effect.
	ValidateConfig() error
	// Submit starts an execution and returns its handle.
	Submit(ctx context.Context) (Execution, error)
	// AwaitCompletion blocks until the execution reaches a terminal status.
	AwaitCompletion(ctx context.Context, exec Execution) (Result, error)
}

// Status is the lifecycle status of an execution.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
)

// Terminal reports whether no further status change will happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Execution is the handle of a submitted pipeline.
type Execution struct {
	ID        string
	Provider  Provider
	Submitted time.Time
}

// Result is the terminal state of an execution.
type Result struct {
	Execution Execution
	Status    Status
	// Candidates is filled by the local orchestrator only.
	Candidates []CandidateOutcome
}

// CandidateOutcome summarises one model's pass through the local pipeline.
type CandidateOutcome struct {
	Model    string
	RunID    string
	Accepted bool
	Skipped  bool
	Version  int
	Err      error
}

// #endregion orchestrator

// #region factory
// Deps are the collaborators an orchestrator may need.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	// Env runs steps in process; required by the local orchestrator.
	Env *steps.Env
	// Runner executes cloud CLIs; defaults to cloudcli.ExecRunner.
	Runner cloudcli.Runner
	// Registry backs component registration for azure; defaults to the az CLI.
	Registry     components.Registry
	PollInterval time.Duration
}

// DefaultPollInterval spaces status polls of remote executions.
const DefaultPollInterval = 30 * time.Second

// New returns the orchestrator for p.
func New(p Provider, deps Deps) (Orchestrator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if deps.Runner == nil {
		deps.Runner = cloudcli.ExecRunner{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
		if d, err := time.ParseDuration(deps.Config.Platform.PollInterval); err == nil && d > 0 {
			deps.PollInterval = d
		}
	}
	switch p {
	case ProviderLocal:
		return newLocal(deps), nil
	case ProviderAzure:
		return newAzure(deps), nil
	case ProviderAWS:
		return newAWS(deps), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p)
}

// Run validates, submits and awaits in one call.
func Run(ctx context.Context, o Orchestrator) (Result, error) {
	if err := o.ValidateConfig(); err != nil {
		return Result{}, err
	}
	exec, err := o.Submit(ctx)
	if err != nil {
		return Result{}, err
	}
	return o.AwaitCompletion(ctx, exec)
}

// #endregion factory

// poll calls check at most once per interval until it reports a terminal
// status.
func poll(ctx context.Context, interval time.Duration, check func(context.Context) (Status, error)) (Status, error) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The next slot lies past the deadline.
			<-ctx.Done()
			return "", ctx.Err()
		}
		st, err := check(ctx)
		if err != nil {
			return "", err
		}
		if st.Terminal() {
			return st, nil
		}
	}
}
