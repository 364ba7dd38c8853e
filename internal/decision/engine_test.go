package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/model"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine(opts ...Option) *Engine {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func compliance(step, cost bool) *model.ComplianceResult {
	return &model.ComplianceResult{
		StepTherapy:      model.CheckResult{Compliant: step},
		CostLimits:       model.CheckResult{Compliant: cost},
		OverallCompliant: step && cost,
	}
}

func riskOf(level model.RiskLevel) *model.RiskResult {
	return &model.RiskResult{OverallRisk: level}
}

func request(urgency string, cost float64) *model.CanonicalEvidence {
	return &model.CanonicalEvidence{
		MedicalHistory: model.MedicalHistory{Diagnosis: "Rheumatoid Arthritis"},
		CurrentRequest: model.CurrentRequest{Medication: "Adalimumab", Urgency: urgency},
		InsuranceInfo:  model.InsuranceInfo{EstimatedCost: cost},
	}
}

func TestDecide_Cascade(t *testing.T) {
	tests := []struct {
		name       string
		c          *model.ComplianceResult
		r          *model.RiskResult
		ev         *model.CanonicalEvidence
		outcome    model.Outcome
		rule       string
		confidence float64
	}{
		{"emergency beats non-compliance", compliance(false, false), riskOf(model.RiskHigh), request(model.UrgencyEmergency, 9000),
			model.OutcomeApproved, "emergency_override", ConfidenceEmergency},
		{"auto approve low risk", compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 1500),
			model.OutcomeApproved, "auto_approve", ConfidenceAutoApprove},
		{"auto approve moderate at cap", compliance(true, true), riskOf(model.RiskModerate), request(model.UrgencyRoutine, 2000),
			model.OutcomeApproved, "auto_approve", ConfidenceAutoApprove},
		{"compliant high risk", compliance(true, true), riskOf(model.RiskHigh), request(model.UrgencyRoutine, 100),
			model.OutcomeApprovedWithConditions, "approve_with_conditions", ConfidenceConditional},
		{"urgent non-compliant", compliance(false, true), riskOf(model.RiskLow), request(model.UrgencyUrgent, 100),
			model.OutcomePendingReview, "urgent_review", ConfidenceUrgentCase},
		{"routine non-compliant", compliance(false, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100),
			model.OutcomeDenied, "deny", ConfidenceDeny},
		{"compliant moderate over cap", compliance(true, true), riskOf(model.RiskModerate), request(model.UrgencyRoutine, 2500),
			model.OutcomePendingReview, "manual_review", ConfidenceManual},
	}
	e := newEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.c, tt.r, tt.ev)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.rule, d.Rule)
			assert.InDelta(t, tt.confidence, d.Confidence, 1e-9)
			assert.Equal(t, fixedNow, d.Timestamp)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecide_Reasons(t *testing.T) {
	e := newEngine()

	d := e.Decide(compliance(false, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.Equal(t, "Does not meet clinical guidelines - step therapy or cost limits exceeded", d.Reason)

	d = e.Decide(compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.Equal(t, "Meets all clinical guidelines and cost criteria", d.Reason)
}

func TestDecide_EmergencyOverrideDisabled(t *testing.T) {
	e := newEngine(WithEmergencyOverride(false))
	d := e.Decide(compliance(false, true), riskOf(model.RiskHigh), request(model.UrgencyEmergency, 100))
	assert.Equal(t, model.OutcomeDenied, d.Outcome)
	assert.Equal(t, "deny", d.Rule)
}

func TestDecide_AbsentInputs(t *testing.T) {
	d := newEngine().Decide(nil, nil, nil)
	assert.Equal(t, model.OutcomeDenied, d.Outcome, "missing compliance is non-compliant")
	assert.False(t, d.SupportingEvidence.GuidelineCompliant)
	assert.Equal(t, model.RiskHigh, d.SupportingEvidence.RiskLevel)
	assert.Equal(t, []string{"Diagnosis: Unknown", "Medication: Unknown", "Urgency: Unknown"}, d.SupportingEvidence.KeyFactors)

	d = newEngine().Decide(compliance(true, true), nil, request(model.UrgencyRoutine, 10))
	assert.Equal(t, model.OutcomeApprovedWithConditions, d.Outcome, "missing risk is High")
}

func TestNormalizeInputs(t *testing.T) {
	in := NormalizeInputs(nil, nil, nil)
	assert.False(t, in.Compliant)
	assert.False(t, in.StepTherapyFailed)
	assert.Equal(t, model.RiskHigh, in.OverallRisk)
	assert.Equal(t, model.UrgencyRoutine, in.Urgency)
	assert.Zero(t, in.EstimatedCost)

	in = NormalizeInputs(compliance(false, false), riskOf(model.RiskLow), request("", 42))
	assert.True(t, in.StepTherapyFailed)
	assert.True(t, in.CostLimitFailed)
	assert.Equal(t, model.UrgencyRoutine, in.Urgency)
	assert.InDelta(t, 42, in.EstimatedCost, 1e-9)
}

func TestDecide_Recommendations(t *testing.T) {
	e := newEngine()

	d := e.Decide(compliance(false, false), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.Equal(t, []string{RecTryFirstLine, RecGenericAlternative}, d.Recommendations)

	d = e.Decide(compliance(true, false), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.Equal(t, []string{RecGenericAlternative}, d.Recommendations)

	d = e.Decide(compliance(true, true), riskOf(model.RiskHigh), request(model.UrgencyRoutine, 100))
	assert.Equal(t, []string{RecEnhancedMonitoring, RecFollowUp30Days}, d.Recommendations)

	d = e.Decide(compliance(false, true), riskOf(model.RiskLow), request(model.UrgencyUrgent, 100))
	assert.Equal(t, []string{RecSubmitDocs, RecReviewTime}, d.Recommendations)

	d = e.Decide(compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.NotNil(t, d.Recommendations)
	assert.Empty(t, d.Recommendations)
}

func TestDecide_KeyFactors(t *testing.T) {
	d := newEngine().Decide(compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 100))
	assert.Equal(t, []string{
		"Diagnosis: Rheumatoid Arthritis",
		"Medication: Adalimumab",
		"Urgency: Routine",
	}, d.SupportingEvidence.KeyFactors)
	assert.True(t, d.SupportingEvidence.GuidelineCompliant)
}

func TestWithRules(t *testing.T) {
	only := []Rule{{
		Name:    "always_deny",
		Matches: func(Inputs) bool { return true },
		Verdict: Verdict{model.OutcomeDenied, "nope", 1},
	}}
	d := newEngine(WithRules(only)).Decide(compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 1))
	assert.Equal(t, "always_deny", d.Rule)

	d = newEngine(WithRules(nil)).Decide(compliance(true, true), riskOf(model.RiskLow), request(model.UrgencyRoutine, 1))
	require.Equal(t, "manual_review", d.Rule, "empty cascade falls through to manual review")
}

func TestDefaultRules_Order(t *testing.T) {
	var names []string
	for _, r := range DefaultRules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"emergency_override", "auto_approve", "approve_with_conditions",
		"urgent_review", "deny", "manual_review",
	}, names)
}
