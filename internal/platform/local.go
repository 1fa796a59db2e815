package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/logging"
	"github.com/georgeannie/mlops-framework/internal/pipeline"
	"github.com/georgeannie/mlops-framework/internal/steps"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// #region local
// local runs the canonical definition in process. Candidates run
// concurrently; steps within a candidate follow the dependency order.
type local struct {
	deps Deps
	def  pipeline.Definition
	log  *slog.Logger

	mu   sync.Mutex
	runs map[string]chan Result
}

func newLocal(deps Deps) *local {
	return &local{
		deps: deps,
		def:  pipeline.DefaultDefinition(),
		log:  logging.New("platform.local"),
		runs: map[string]chan Result{},
	}
}

func (l *local) ValidateConfig() error {
	if l.deps.Env == nil {
		return fmt.Errorf("%w: local orchestrator needs a step environment", ErrInvalidConfig)
	}
	if len(l.deps.Config.Models) == 0 {
		return fmt.Errorf("%w: no models configured", ErrInvalidConfig)
	}
	return l.def.Validate()
}

func (l *local) Submit(ctx context.Context) (Execution, error) {
	exec := Execution{ID: uuid.NewString(), Provider: ProviderLocal, Submitted: time.Now().UTC()}
	done := make(chan Result, 1)
	l.mu.Lock()
	l.runs[exec.ID] = done
	l.mu.Unlock()

	models := append([]config.Model(nil), l.deps.Config.Models...)
	go func() {
		done <- l.execute(context.WithoutCancel(ctx), exec, models)
	}()
	l.log.Info("pipeline submitted", "execution", exec.ID, "candidates", len(models))
	return exec, nil
}

func (l *local) AwaitCompletion(ctx context.Context, exec Execution) (Result, error) {
	l.mu.Lock()
	done, ok := l.runs[exec.ID]
	l.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownExecution, exec.ID)
	}
	select {
	case res := <-done:
		l.mu.Lock()
		delete(l.runs, exec.ID)
		l.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (l *local) execute(ctx context.Context, exec Execution, models []config.Model) Result {
	outcomes := make([]CandidateOutcome, len(models))
	var g errgroup.Group
	for i, m := range models {
		g.Go(func() error {
			outcomes[i] = l.candidate(ctx, m)
			return outcomes[i].Err
		})
	}
	res := Result{Execution: exec, Status: StatusSucceeded, Candidates: outcomes}
	if err := g.Wait(); err != nil {
		res.Status = StatusFailed
		l.log.Error("pipeline failed", "execution", exec.ID, "error", err)
		return res
	}
	l.log.Info("pipeline finished", "execution", exec.ID)
	return res
}

// candidate runs train, validate and register for one model. Skips are not
// failures.
func (l *local) candidate(ctx context.Context, m config.Model) CandidateOutcome {
	out := CandidateOutcome{Model: m.Name}
	args, err := l.def.Bind(map[string]string{
		pipeline.InputConfigPath: l.deps.ConfigPath,
		pipeline.InputModel:      m.Name,
		pipeline.InputOutputDir:  l.deps.Config.Data.OutputDir,
	})
	if err != nil {
		out.Err = err
		return out
	}
	order, err := l.def.Order()
	if err != nil {
		out.Err = err
		return out
	}

	produced := map[string]pipeline.Args{}
	for _, step := range order {
		in, err := pipeline.StepArgs(step, args, produced)
		if err != nil {
			out.Err = err
			return out
		}
		result, stop, err := l.runStep(ctx, step.Component, m, in, &out)
		if err != nil {
			out.Err = fmt.Errorf("%s/%s: %w", m.Name, step.Name, err)
			return out
		}
		produced[step.Name] = result
		if stop {
			out.Skipped = true
			return out
		}
	}
	return out
}

func (l *local) runStep(ctx context.Context, component string, m config.Model, in pipeline.Args, out *CandidateOutcome) (pipeline.Args, bool, error) {
	env := l.deps.Env
	switch component {
	case pipeline.ComponentTrain:
		tr, err := steps.Train(ctx, env, m)
		if err != nil {
			return nil, false, err
		}
		out.RunID = tr.RunID
		return pipeline.Args{pipeline.OutputRunID: pipeline.StringValue(tr.RunID)}, false, nil

	case pipeline.ComponentValidate:
		vr, err := steps.Validate(ctx, env, m, in.String(pipeline.InputRunID))
		if err != nil {
			return nil, false, err
		}
		if vr == nil {
			return nil, true, nil
		}
		out.Accepted = vr.Decision.Accepted
		produced := pipeline.Args{}
		if vr.FlagPath != "" {
			produced[pipeline.OutputFlagFile] = pipeline.PathValue(vr.FlagPath)
		}
		return produced, false, nil

	case pipeline.ComponentRegister:
		entry, err := steps.Register(ctx, env, m, in.String(pipeline.InputRunID), in.String(pipeline.InputFlagFile))
		if err != nil {
			return nil, false, err
		}
		if entry == nil {
			return nil, true, nil
		}
		out.Version = entry.Version
		v, err := pipeline.ParseValue(pipeline.TypeInteger, strconv.Itoa(entry.Version))
		if err != nil {
			return nil, false, err
		}
		return pipeline.Args{pipeline.OutputVersion: v}, false, nil
	}
	return nil, false, errors.New("unknown component " + component)
}

// #endregion local
