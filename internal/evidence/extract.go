// Package evidence projects a raw intake record onto the canonical evidence
// structure consumed by the guideline, risk and decision stages.
package evidence

import (
	"strings"

	"github.com/sells-group/priorauth/internal/model"
)

// Defaults are the neutral values used for absent RawCase fields.
type Defaults struct {
	Age              int
	Urgency          string
	PriorAuthHistory string
	EstimatedCost    float64
	Allergies        string
}

// DefaultValues returns the documented defaults.
func DefaultValues() Defaults {
	return Defaults{
		Age:              0,
		Urgency:          model.UrgencyRoutine,
		PriorAuthHistory: model.PriorAuthNone,
		EstimatedCost:    0,
		Allergies:        model.AllergiesNone,
	}
}

// treatmentSeparators are the delimiters accepted in previous_treatments.
const treatmentSeparators = ",;|"

// Extract builds canonical evidence from raw. It never fails.
func Extract(raw model.RawCase) model.CanonicalEvidence {
	d := DefaultValues()

	age := raw.Age
	if age <= 0 {
		age = d.Age
	}
	cost := raw.CostPerMonth
	if cost <= 0 {
		cost = d.EstimatedCost
	}

	return model.CanonicalEvidence{
		PatientID: strings.TrimSpace(raw.PatientID),
		Demographics: model.Demographics{
			Age:    age,
			Gender: strings.TrimSpace(raw.Gender),
		},
		MedicalHistory: model.MedicalHistory{
			Diagnosis:          strings.TrimSpace(raw.Diagnosis),
			ICDCode:            strings.TrimSpace(raw.ICDCode),
			PreviousTreatments: ParseTreatments(string(raw.PreviousTreatments)),
			Allergies:          orDefault(raw.Allergies, d.Allergies),
		},
		CurrentRequest: model.CurrentRequest{
			Medication: strings.TrimSpace(raw.RequestedMedication),
			Dosage:     strings.TrimSpace(raw.Dosage),
			Duration:   strings.TrimSpace(raw.Duration),
			Urgency:    orDefault(raw.Urgency, d.Urgency),
		},
		InsuranceInfo: model.InsuranceInfo{
			Tier:             strings.TrimSpace(raw.InsuranceTier),
			PriorAuthHistory: orDefault(raw.PriorAuthHistory, d.PriorAuthHistory),
			EstimatedCost:    cost,
		},
	}
}

// ParseTreatments splits a delimited list into trimmed, non-empty,
// de-duplicated names in first-seen order.
func ParseTreatments(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(treatmentSeparators, r)
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
