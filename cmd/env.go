package main

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/priorauth/internal/decision"
	"github.com/sells-group/priorauth/internal/guideline"
	"github.com/sells-group/priorauth/internal/intake"
	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/pipeline"
	"github.com/sells-group/priorauth/internal/resilience"
	"github.com/sells-group/priorauth/internal/store"
)

// evalEnv holds everything the evaluate, batch and serve commands need.
type evalEnv struct {
	Store     store.Store // nil when persistence is disabled
	Table     *guideline.Table
	Formulary intake.Formulary
	Runner    *pipeline.Runner
}

// Close releases the store.
func (e *evalEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// prepare normalizes, enriches and validates an intake record.
func (e *evalEnv) prepare(raw model.RawCase) (model.RawCase, error) {
	raw = intake.Normalize(raw)
	if e.Formulary != nil {
		raw = e.Formulary.Apply(raw)
	}
	if err := intake.Validate(raw); err != nil {
		return raw, err
	}
	return raw, nil
}

// initEvalEnv loads the guideline table and formulary, opens the store
// unless noStore is set, and builds the runner. Callers should defer
// env.Close().
func initEvalEnv(ctx context.Context, noStore bool) (*evalEnv, error) {
	table, err := loadGuidelines(cfg.Guidelines.Path)
	if err != nil {
		return nil, err
	}

	env := &evalEnv{Table: table}

	if cfg.Guidelines.FormularyPath != "" {
		f, err := intake.LoadFormulary(ctx, cfg.Guidelines.FormularyPath)
		if err != nil {
			return nil, eris.Wrap(err, "load formulary")
		}
		env.Formulary = f
		zap.L().Info("formulary loaded", zap.Int("drugs", len(f)))
	}

	if !noStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	env.Runner = newRunner(table, env.Store)
	return env, nil
}

// newRunner wires checker, engine and orchestrator for a table.
func newRunner(table *guideline.Table, st store.Store) *pipeline.Runner {
	checker := guideline.NewChecker(table)
	engine := decision.New(decision.WithEmergencyOverride(table.GeneralRules.EmergencyOverrideEnabled()))
	orch := pipeline.NewOrchestrator(checker, engine)

	policy := resilience.DefaultPolicy()
	if cfg != nil {
		policy = resilience.PolicyFromMillis(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	}
	return pipeline.NewRunner(orch, st, pipeline.WithRetryPolicy(policy))
}

// loadGuidelines reads the table at path. An empty path or a missing file
// falls back to the built-in table.
func loadGuidelines(path string) (*guideline.Table, error) {
	if path == "" {
		return guideline.DefaultTable(), nil
	}
	table, err := guideline.LoadTable(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("guideline table not found, using built-in table", zap.String("path", path))
		return guideline.DefaultTable(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		// Cases hitting a malformed rule fail at the guideline stage.
		zap.L().Warn("guideline table has malformed rules", zap.Error(err))
	}
	zap.L().Info("guideline table loaded",
		zap.String("path", path),
		zap.Int("diagnoses", len(table.Guidelines)),
	)
	return table, nil
}
