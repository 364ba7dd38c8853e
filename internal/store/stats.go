package store

import "github.com/sells-group/priorauth/internal/model"

// HighCostThreshold is the monthly cost above which a case counts as high cost.
const HighCostThreshold = 1000

// Stats summarizes a set of runs for the dashboard and the stats command.
type Stats struct {
	Total             int                   `json:"total"`
	ByOutcome         map[model.Outcome]int `json:"by_outcome"`
	ByStatus          map[model.Status]int  `json:"by_status"`
	ByDiagnosis       map[string]int        `json:"by_diagnosis"`
	ByUrgency         map[string]int        `json:"by_urgency"`
	ByTier            map[string]int        `json:"by_tier"`
	AverageConfidence float64               `json:"average_confidence"`
	AvgMonthlyCost    float64               `json:"avg_monthly_cost"`
	TotalMonthlyCost  float64               `json:"total_monthly_cost"`
	HighCostCases     int                   `json:"high_cost_cases"`
	UrgentCases       int                   `json:"urgent_cases"`
}

// ComputeStats aggregates runs. Average confidence covers decided runs only.
func ComputeStats(runs []model.Run) Stats {
	st := Stats{
		ByOutcome:   map[model.Outcome]int{},
		ByStatus:    map[model.Status]int{},
		ByDiagnosis: map[string]int{},
		ByUrgency:   map[string]int{},
		ByTier:      map[string]int{},
	}

	decided := 0
	var confidence float64
	for _, r := range runs {
		st.Total++
		st.ByStatus[r.Status]++

		c := r.Case
		if c.Diagnosis != "" {
			st.ByDiagnosis[c.Diagnosis]++
		}
		if c.Urgency != "" {
			st.ByUrgency[c.Urgency]++
		}
		if c.InsuranceTier != "" {
			st.ByTier[c.InsuranceTier]++
		}
		st.TotalMonthlyCost += c.CostPerMonth
		if c.CostPerMonth > HighCostThreshold {
			st.HighCostCases++
		}
		if c.Urgency == model.UrgencyUrgent || c.Urgency == model.UrgencyEmergency {
			st.UrgentCases++
		}

		if r.State != nil && r.State.Decision != nil {
			decided++
			confidence += r.State.Decision.Confidence
			st.ByOutcome[r.State.Decision.Outcome]++
		}
	}

	if decided > 0 {
		st.AverageConfidence = confidence / float64(decided)
	}
	if st.Total > 0 {
		st.AvgMonthlyCost = st.TotalMonthlyCost / float64(st.Total)
	}
	return st
}
