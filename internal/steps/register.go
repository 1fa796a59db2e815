package steps

import (
	"context"

	"github.com/georgeannie/mlops-framework/internal/config"
	"github.com/georgeannie/mlops-framework/internal/flagstore"
	"github.com/georgeannie/mlops-framework/internal/promotion"
)

// #region register
// Register registers the candidate of m when its promotion signal says it
// was accepted. With flagFile set the flag artifact is the signal, as for an
// isolated step; otherwise the run's evaluation_status tag is. A skip
// returns nil and no error.
func Register(ctx context.Context, env *Env, m config.Model, runID, flagFile string) (*promotion.RegisteredModelEntry, error) {
	reg := promotion.NewRegistrar(env.Tracker, env.Config.Data.OutputDir, env.auditLog())
	return reg.RegisterIfAccepted(ctx, promotion.ModelRef{
		Key:            m.Name,
		RegistryName:   m.ModelName,
		ExperimentName: m.ExperimentName,
		RunID:          runID,
	}, env.registerSignal(m, flagFile))
}

// registerSignal picks the signal a register step reads. A flag location
// that names the configured store's flag for m is read through that store,
// which may not be a local filesystem.
func (e *Env) registerSignal(m config.Model, flagFile string) promotion.Signal {
	switch {
	case flagFile == "":
		return promotion.TagSignal{Tracker: e.Tracker}
	case e.Flags != nil && flagFile == e.Flags.Location(flagstore.FlagName(m.Name)):
		return promotion.FlagSignal{Store: e.Flags}
	}
	return promotion.FlagFile{Path: flagFile}
}

// #endregion register
