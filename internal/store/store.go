// Package store persists PA runs: the raw case, its terminal CaseState and
// the per-stage audit records.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.Status  `json:"status,omitempty"`
	Outcome   model.Outcome `json:"outcome,omitempty"`
	PatientID string        `json:"patient_id,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
}

// DefaultListLimit applies when RunFilter.Limit is not positive.
const DefaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for evaluation runs.
type Store interface {
	CreateRun(ctx context.Context, raw model.RawCase) (*model.Run, error)
	// CompleteRun stores the terminal state and its status and outcome.
	CompleteRun(ctx context.Context, runID string, state model.CaseState) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	RecordStages(ctx context.Context, runID string, stages []model.StageRecord) error
	// ListStages returns the stage audit rows of a run in execution order.
	ListStages(ctx context.Context, runID string) ([]model.StageRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

func outcomeOf(state model.CaseState) string {
	if state.Decision == nil {
		return ""
	}
	return string(state.Decision.Outcome)
}
