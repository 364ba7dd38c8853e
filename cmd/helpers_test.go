package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/guideline"
	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/store"
)

// newTestEnv builds an evaluation environment over a temp SQLite store.
func newTestEnv(t *testing.T) *evalEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	table := guideline.DefaultTable()
	return &evalEnv{Store: st, Table: table, Runner: newRunner(table, st)}
}

// approvableCase is compliant, Moderate risk and under the auto-approve cap.
func approvableCase(id string) model.RawCase {
	return model.RawCase{
		PatientID:           id,
		Age:                 45,
		Gender:              "F",
		Diagnosis:           "Rheumatoid Arthritis",
		RequestedMedication: "Adalimumab",
		PreviousTreatments:  "Methotrexate",
		Allergies:           "none",
		InsuranceTier:       "tier 2",
		PriorAuthHistory:    "none",
		CostPerMonth:        1500,
		Urgency:             "routine",
	}
}
