package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/guideline"
	"github.com/sells-group/priorauth/internal/intake"
	"github.com/sells-group/priorauth/internal/model"
)

func TestLoadGuidelines_EmptyPath(t *testing.T) {
	table, err := loadGuidelines("")
	require.NoError(t, err)
	assert.Equal(t, guideline.DefaultTable().Diagnoses(), table.Diagnoses())
}

func TestLoadGuidelines_MissingFileFallsBack(t *testing.T) {
	table, err := loadGuidelines(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, table.Guidelines, 2)
}

func TestLoadGuidelines_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guidelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
guidelines:
  Asthma:
    first_line: [Albuterol]
    second_line: [Omalizumab]
    step_therapy_required: true
`), 0o644))

	table, err := loadGuidelines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Asthma"}, table.Diagnoses())
}

func TestLoadGuidelines_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guidelines: [oops"), 0o644))

	_, err := loadGuidelines(path)
	assert.Error(t, err)
}

func TestNewRunner_EmergencyOverrideFromTable(t *testing.T) {
	off := false
	table := guideline.DefaultTable()
	table.GeneralRules.EmergencyOverride = &off

	raw := approvableCase("PT-EMER")
	raw.PreviousTreatments = ""
	raw.Urgency = model.UrgencyEmergency

	res, err := newRunner(table, nil).Evaluate(context.Background(), intake.Normalize(raw))
	require.NoError(t, err)
	require.NotNil(t, res.State.Decision)
	assert.NotEqual(t, "emergency_override", res.State.Decision.Rule)

	res, err = newRunner(guideline.DefaultTable(), nil).Evaluate(context.Background(), intake.Normalize(raw))
	require.NoError(t, err)
	assert.Equal(t, "emergency_override", res.State.Decision.Rule)
}

func TestPrepare(t *testing.T) {
	env := &evalEnv{Formulary: intake.Formulary{
		"adalimumab": {Name: "Adalimumab", Tier: "Tier 4", Cost: 6000},
	}}

	raw := approvableCase("PT1")
	raw.InsuranceTier = ""
	raw.CostPerMonth = 0
	out, err := env.prepare(raw)
	require.NoError(t, err)
	assert.Equal(t, "Tier 4", out.InsuranceTier)
	assert.InDelta(t, 6000, out.CostPerMonth, 1e-9)
	assert.Equal(t, model.UrgencyRoutine, out.Urgency)

	_, err = env.prepare(model.RawCase{PatientID: "PT2"})
	assert.ErrorIs(t, err, intake.ErrMissingField)
}

func TestEvaluateJSON(t *testing.T) {
	env := newTestEnv(t)

	in := `[
		{"patient_id":"PT1","diagnosis":"Rheumatoid Arthritis","requested_medication":"Adalimumab",
		 "previous_treatments":["Methotrexate"],"insurance_tier":"Tier 2","cost_per_month":1500},
		{"patient_id":"PT2","diagnosis":"Rheumatoid Arthritis","requested_medication":"Adalimumab",
		 "insurance_tier":"Tier 2","cost_per_month":1500}
	]`
	results, err := evaluateJSON(context.Background(), env, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.OutcomeApproved, results[0].State.Decision.Outcome)
	assert.Equal(t, model.OutcomeDenied, results[1].State.Decision.Outcome)
	assert.True(t, results[0].Persisted)
	assert.NotEmpty(t, results[0].RunID)
}

func TestEvaluateJSON_InvalidCase(t *testing.T) {
	env := newTestEnv(t)
	_, err := evaluateJSON(context.Background(), env, strings.NewReader(`{"patient_id":"PT1"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, intake.ErrMissingField)
	assert.Contains(t, err.Error(), "case 1")
}

func TestEvaluateJSON_Empty(t *testing.T) {
	_, err := evaluateJSON(context.Background(), newTestEnv(t), bytes.NewBufferString(`[]`))
	assert.Error(t, err)
}

func TestOpenInput(t *testing.T) {
	r, closeFn, err := openInput("-")
	require.NoError(t, err)
	assert.Equal(t, os.Stdin, r)
	closeFn()

	_, _, err = openInput(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestPrepare_ExplicitZeroCostApproved(t *testing.T) {
	env := newTestEnv(t)
	env.Formulary = intake.Formulary{
		"adalimumab": {Name: "Adalimumab", Tier: "Tier 4", Cost: 3500},
	}

	raw, err := intake.DecodeJSON(strings.NewReader(`{"patient_id":"PT9","diagnosis":"Rheumatoid Arthritis",
		"requested_medication":"Adalimumab","previous_treatments":["Methotrexate"],"cost_per_month":0}`))
	require.NoError(t, err)

	raw, err = env.prepare(raw)
	require.NoError(t, err)
	assert.Equal(t, "Tier 4", raw.InsuranceTier)
	assert.Zero(t, raw.CostPerMonth)

	res, err := env.Runner.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, res.State.Decision)
	assert.Equal(t, model.OutcomeApproved, res.State.Decision.Outcome)
}
