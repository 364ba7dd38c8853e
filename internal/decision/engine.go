// Package decision turns compliance, risk and urgency into a final PA
// decision using an ordered rule cascade where the first match wins.
package decision

import (
	"time"

	"github.com/sells-group/priorauth/internal/model"
)

// Fixed confidence per cascade rule.
const (
	ConfidenceEmergency   = 0.95
	ConfidenceAutoApprove = 0.90
	ConfidenceConditional = 0.75
	ConfidenceUrgentCase  = 0.60
	ConfidenceDeny        = 0.85
	ConfidenceManual      = 0.50
)

// AutoApproveMaxCost is the highest monthly cost eligible for auto-approval.
const AutoApproveMaxCost = 2000

// Inputs is the normalized view of upstream stage outputs the rules read.
type Inputs struct {
	Compliant         bool
	StepTherapyFailed bool
	CostLimitFailed   bool
	OverallRisk       model.RiskLevel
	Urgency           string
	EstimatedCost     float64
	EmergencyOverride bool
}

// Verdict is what a matching rule produces.
type Verdict struct {
	Outcome    model.Outcome
	Reason     string
	Confidence float64
}

// Rule is one entry of the cascade.
type Rule struct {
	Name    string
	Matches func(Inputs) bool
	Verdict Verdict
}

// DefaultRules returns the cascade in evaluation order. Order is significant.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "emergency_override",
			Matches: func(in Inputs) bool {
				return in.EmergencyOverride && in.Urgency == model.UrgencyEmergency
			},
			Verdict: Verdict{model.OutcomeApproved, "Emergency override - immediate approval for urgent medical need", ConfidenceEmergency},
		},
		{
			Name: "auto_approve",
			Matches: func(in Inputs) bool {
				return in.Compliant &&
					(in.OverallRisk == model.RiskLow || in.OverallRisk == model.RiskModerate) &&
					in.EstimatedCost <= AutoApproveMaxCost
			},
			Verdict: Verdict{model.OutcomeApproved, "Meets all clinical guidelines and cost criteria", ConfidenceAutoApprove},
		},
		{
			Name: "approve_with_conditions",
			Matches: func(in Inputs) bool {
				return in.Compliant && in.OverallRisk == model.RiskHigh
			},
			Verdict: Verdict{model.OutcomeApprovedWithConditions, "Approved with enhanced monitoring due to high risk factors", ConfidenceConditional},
		},
		{
			Name: "urgent_review",
			Matches: func(in Inputs) bool {
				return !in.Compliant && in.Urgency == model.UrgencyUrgent
			},
			Verdict: Verdict{model.OutcomePendingReview, "Manual review required - urgent case with guideline non-compliance", ConfidenceUrgentCase},
		},
		{
			Name: "deny",
			Matches: func(in Inputs) bool {
				return !in.Compliant
			},
			Verdict: Verdict{model.OutcomeDenied, "Does not meet clinical guidelines - step therapy or cost limits exceeded", ConfidenceDeny},
		},
		{
			Name:    "manual_review",
			Matches: func(Inputs) bool { return true },
			Verdict: Verdict{model.OutcomePendingReview, "Manual review required - complex case requiring clinical expertise", ConfidenceManual},
		},
	}
}

// Engine evaluates the rule cascade.
type Engine struct {
	rules             []Rule
	now               func() time.Time
	emergencyOverride bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the decision timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEmergencyOverride enables or disables the emergency override rule.
func WithEmergencyOverride(enabled bool) Option {
	return func(e *Engine) { e.emergencyOverride = enabled }
}

// WithRules replaces the cascade. The last rule should always match.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// New creates an Engine with the default cascade.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules:             DefaultRules(),
		now:               func() time.Time { return time.Now().UTC() },
		emergencyOverride: true,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NormalizeInputs applies the upstream-absence defaults: missing compliance
// is non-compliant, missing risk is High, missing evidence is a routine
// zero-cost request.
func NormalizeInputs(c *model.ComplianceResult, r *model.RiskResult, ev *model.CanonicalEvidence) Inputs {
	in := Inputs{
		OverallRisk: model.RiskHigh,
		Urgency:     model.UrgencyRoutine,
	}
	if c != nil {
		in.Compliant = c.OverallCompliant
		in.StepTherapyFailed = !c.StepTherapy.Compliant
		in.CostLimitFailed = !c.CostLimits.Compliant
	}
	if r != nil && r.OverallRisk != "" {
		in.OverallRisk = r.OverallRisk
	}
	if ev != nil {
		if ev.CurrentRequest.Urgency != "" {
			in.Urgency = ev.CurrentRequest.Urgency
		}
		in.EstimatedCost = ev.InsuranceInfo.EstimatedCost
	}
	return in
}

// Decide returns the verdict of the first matching rule together with its
// recommendations and supporting evidence. It never fails.
func (e *Engine) Decide(c *model.ComplianceResult, r *model.RiskResult, ev *model.CanonicalEvidence) model.Decision {
	in := NormalizeInputs(c, r, ev)
	in.EmergencyOverride = e.emergencyOverride

	name, v := e.match(in)
	return model.Decision{
		Outcome:            v.Outcome,
		Reason:             v.Reason,
		Confidence:         v.Confidence,
		Rule:               name,
		Recommendations:    Recommendations(v.Outcome, in),
		SupportingEvidence: supportingEvidence(in, ev),
		Timestamp:          e.now(),
	}
}

func (e *Engine) match(in Inputs) (string, Verdict) {
	for _, rule := range e.rules {
		if rule.Matches(in) {
			return rule.Name, rule.Verdict
		}
	}
	fallback := DefaultRules()
	last := fallback[len(fallback)-1]
	return last.Name, last.Verdict
}

func supportingEvidence(in Inputs, ev *model.CanonicalEvidence) model.SupportingEvidence {
	diagnosis, medication, urgency := "", "", ""
	if ev != nil {
		diagnosis = ev.MedicalHistory.Diagnosis
		medication = ev.CurrentRequest.Medication
		urgency = ev.CurrentRequest.Urgency
	}
	return model.SupportingEvidence{
		GuidelineCompliant: in.Compliant,
		RiskLevel:          in.OverallRisk,
		KeyFactors: []string{
			"Diagnosis: " + orUnknown(diagnosis),
			"Medication: " + orUnknown(medication),
			"Urgency: " + orUnknown(urgency),
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
