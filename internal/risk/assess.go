// Package risk computes clinical and financial risk for a PA request.
package risk

import (
	"fmt"

	"github.com/sells-group/priorauth/internal/model"
)

// Clinical score weights and level cut-offs.
const (
	AdvancedAge       = 65
	ageWeight         = 2
	urgencyWeight     = 3
	allergyWeight     = 1
	priorDenialWeight = 2

	HighScore     = 5
	ModerateScore = 3
)

// Financial cost thresholds (USD per month).
const (
	HighCost     = 2000
	ModerateCost = 500
)

// tierMultipliers scale the estimated cost by insurance tier.
var tierMultipliers = map[string]float64{
	"Tier 1": 1,
	"Tier 2": 1.5,
	"Tier 3": 2,
	"Tier 4": 3,
}

// TierMultiplier returns the cost multiplier for a tier, 1 when unknown.
func TierMultiplier(tier string) float64 {
	if m, ok := tierMultipliers[tier]; ok {
		return m
	}
	return 1
}

// Assess scores the evidence. Nil evidence is treated as empty evidence.
func Assess(ev *model.CanonicalEvidence) model.RiskResult {
	if ev == nil {
		ev = &model.CanonicalEvidence{}
	}

	clinical := Clinical(ev)
	financial := Financial(ev)

	return model.RiskResult{
		ClinicalRisk:  clinical,
		FinancialRisk: financial,
		OverallRisk:   model.WorstOf(clinical.Level, financial.Level),
		Summary:       fmt.Sprintf("Clinical: %s, Financial: %s", clinical.Level, financial.Level),
	}
}

// Clinical computes the additive clinical score. Factors are listed in
// evaluation order and only when triggered.
func Clinical(ev *model.CanonicalEvidence) model.ClinicalRisk {
	score := 0
	factors := []string{}

	if ev.Demographics.Age >= AdvancedAge {
		score += ageWeight
		factors = append(factors, "Advanced age (≥65)")
	}

	urgency := ev.CurrentRequest.Urgency
	if urgency == model.UrgencyEmergency || urgency == model.UrgencyUrgent {
		score += urgencyWeight
		factors = append(factors, "High urgency: "+urgency)
	}

	allergies := ev.MedicalHistory.Allergies
	if allergies != "" && allergies != model.AllergiesNone && allergies != model.AllergiesNKDA {
		score += allergyWeight
		factors = append(factors, "Drug allergies: "+allergies)
	}

	if ev.InsuranceInfo.PriorAuthHistory == model.PriorAuthDenied {
		score += priorDenialWeight
		factors = append(factors, "Previous PA denial")
	}

	return model.ClinicalRisk{
		Score:   score,
		Level:   LevelForScore(score),
		Factors: factors,
	}
}

// LevelForScore maps a clinical score to a level.
func LevelForScore(score int) model.RiskLevel {
	switch {
	case score >= HighScore:
		return model.RiskHigh
	case score >= ModerateScore:
		return model.RiskModerate
	default:
		return model.RiskLow
	}
}

// Financial derives the cost-based level and tier-adjusted cost.
func Financial(ev *model.CanonicalEvidence) model.FinancialRisk {
	cost := ev.InsuranceInfo.EstimatedCost

	level := model.RiskLow
	switch {
	case cost > HighCost:
		level = model.RiskHigh
	case cost > ModerateCost:
		level = model.RiskModerate
	}

	return model.FinancialRisk{
		Level:         level,
		EstimatedCost: cost,
		AdjustedCost:  cost * TierMultiplier(ev.InsuranceInfo.Tier),
		Tier:          ev.InsuranceInfo.Tier,
	}
}
