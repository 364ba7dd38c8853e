package model

import "time"

// Run is one persisted evaluation of a case.
type Run struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Case      RawCase    `json:"case"`
	Status    Status     `json:"status"`
	State     *CaseState `json:"state,omitempty"`
	// Stages holds the stage audit rows when loaded alongside the run.
	Stages    []StageRecord `json:"stages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Outcome returns the decision outcome of a completed run, or "".
func (r Run) Outcome() Outcome {
	if r.State == nil || r.State.Decision == nil {
		return ""
	}
	return r.State.Decision.Outcome
}
