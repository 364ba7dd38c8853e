package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/monitoring"
	"github.com/sells-group/priorauth/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	decidedState := model.NewCaseState(model.RawCase{})
	decidedState.Decision = &model.Decision{Outcome: model.OutcomeApproved, Confidence: 0.9}

	runs := []model.Run{
		{
			ID:        "abcdef12-3456-7890-abcd-ef1234567890",
			PatientID: "PT000001",
			Case:      model.RawCase{RequestedMedication: "Adalimumab"},
			Status:    model.StatusCompleted,
			State:     &decidedState,
			CreatedAt: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			ID:        "short",
			PatientID: "PT000002",
			Case:      model.RawCase{RequestedMedication: "A very long medication name indeed"},
			Status:    model.StatusPending,
			CreatedAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "abcdef12")
	assert.NotContains(t, out, "abcdef12-3456")
	assert.Contains(t, out, "APPROVED")
	assert.Contains(t, out, "0.90")
	assert.Contains(t, out, "A very long medicatio...")
	assert.Contains(t, out, "2024-03-01 10:30")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, store.Stats{
		Total:             3,
		ByOutcome:         map[model.Outcome]int{model.OutcomeApproved: 2},
		ByStatus:          map[model.Status]int{model.StatusFailed: 1},
		AverageConfidence: 0.9,
		AvgMonthlyCost:    1200,
		HighCostCases:     2,
		UrgentCases:       1,
	})

	out := buf.String()
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "APPROVED:")
	assert.Contains(t, out, "0.90")
	assert.Contains(t, out, "$1200.00")
}

func TestFormatRunStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, store.ComputeStats(nil))
	assert.Contains(t, buf.String(), "Total runs:")
	assert.NotContains(t, buf.String(), "Avg confidence")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdef12", truncateID("abcdef12-3456"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestFormatHealth(t *testing.T) {
	var buf bytes.Buffer
	formatHealth(&buf, &monitoring.MetricsSnapshot{LookbackHours: 24, Total: 10, FailRate: 0.2, PendingReview: 3}, nil)
	assert.Contains(t, buf.String(), "Failure rate:")
	assert.Contains(t, buf.String(), "20.0%")
	assert.Contains(t, buf.String(), "No alerts.")

	buf.Reset()
	formatHealth(&buf, &monitoring.MetricsSnapshot{}, []monitoring.Alert{{Severity: "high", Message: "too many failures"}})
	assert.Contains(t, buf.String(), "[high] too many failures")
}

func TestLoadRun_IncludesStages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.Runner.Evaluate(ctx, approvableCase("PT7"))
	require.NoError(t, err)
	require.True(t, res.Persisted)

	run, err := loadRun(ctx, env.Store, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.State.Stages, run.Stages)

	_, err = loadRun(ctx, env.Store, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
