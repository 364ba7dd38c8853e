// Package model defines the prior-authorization case records shared by the
// decision pipeline, the intake layer and the run store.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Urgency values recognized by the risk and decision stages.
const (
	UrgencyRoutine   = "Routine"
	UrgencyUrgent    = "Urgent"
	UrgencyEmergency = "Emergency"
)

// Prior-authorization history values.
const (
	PriorAuthNone     = "None"
	PriorAuthApproved = "Approved"
	PriorAuthDenied   = "Denied"
	PriorAuthPending  = "Pending"
)

// Allergy sentinel values that mean "no known allergies".
const (
	AllergiesNone = "None"
	AllergiesNKDA = "NKDA"
)

// RiskLevel is the ordinal risk scale used for clinical, financial and overall risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// Rank orders risk levels; unknown levels rank below Low.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// WorstOf returns the highest of the given levels. High dominates Moderate
// dominates Low. With no known level it returns Low.
func WorstOf(levels ...RiskLevel) RiskLevel {
	worst := RiskLow
	for _, l := range levels {
		if l.Rank() > worst.Rank() {
			worst = l
		}
	}
	return worst
}

// Outcome is the final PA decision.
type Outcome string

const (
	OutcomeApproved               Outcome = "APPROVED"
	OutcomeApprovedWithConditions Outcome = "APPROVED_WITH_CONDITIONS"
	OutcomeDenied                 Outcome = "DENIED"
	OutcomePendingReview          Outcome = "PENDING_REVIEW"
)

// DelimitedList is a delimited string of names. It unmarshals from either a
// JSON string or a JSON array of strings.
type DelimitedList string

// UnmarshalJSON accepts "a, b" as well as ["a", "b"].
func (d *DelimitedList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = DelimitedList(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return eris.Wrap(err, "model: previous_treatments must be a string or a list of strings")
	}
	*d = DelimitedList(strings.Join(list, ", "))
	return nil
}

// RawCase is the loosely-populated intake record for one patient/medication
// pair. Only PatientID, Diagnosis and RequestedMedication are required; every
// other field may be left at its zero value and is defaulted during extraction.
type RawCase struct {
	PatientID           string        `json:"patient_id"`
	Name                string        `json:"name,omitempty"`
	Age                 int           `json:"age,omitempty"`
	Gender              string        `json:"gender,omitempty"`
	Diagnosis           string        `json:"diagnosis"`
	ICDCode             string        `json:"icd_code,omitempty"`
	RequestedMedication string        `json:"requested_medication"`
	Dosage              string        `json:"dosage,omitempty"`
	Duration            string        `json:"duration,omitempty"`
	PreviousTreatments  DelimitedList `json:"previous_treatments,omitempty"`
	Allergies           string        `json:"allergies,omitempty"`
	InsuranceTier       string        `json:"insurance_tier,omitempty"`
	PriorAuthHistory    string        `json:"prior_auth_history,omitempty"`
	CostPerMonth        float64       `json:"cost_per_month,omitempty"`
	Urgency             string        `json:"urgency,omitempty"`
	ProviderName        string        `json:"provider_name,omitempty"`
	MemberID            string        `json:"member_id,omitempty"`
	SubmissionDate      string        `json:"submission_date,omitempty"`
	ClinicalNote        string        `json:"clinical_note,omitempty"`

	// CostProvided is set by the decoders when cost_per_month was present in
	// the input, so an explicit 0 is distinguishable from an absent value.
	CostProvided bool `json:"-"`
}

// HasCost reports whether a monthly cost was supplied.
func (c RawCase) HasCost() bool {
	return c.CostProvided || c.CostPerMonth != 0
}

// UnmarshalJSON decodes a case and records whether cost_per_month was given.
func (c *RawCase) UnmarshalJSON(data []byte) error {
	type plain RawCase
	var aux struct {
		plain
		Cost *float64 `json:"cost_per_month"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = RawCase(aux.plain)
	if aux.Cost != nil {
		c.CostPerMonth = *aux.Cost
		c.CostProvided = true
	}
	return nil
}

// Demographics is the patient demographic group of the canonical evidence.
type Demographics struct {
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// MedicalHistory holds diagnosis and treatment history.
type MedicalHistory struct {
	Diagnosis          string   `json:"primary_diagnosis"`
	ICDCode            string   `json:"icd_code"`
	PreviousTreatments []string `json:"previous_treatments"`
	Allergies          string   `json:"allergies"`
}

// HasTriedAny reports whether any of the given drugs appears in the
// previous treatments.
func (h MedicalHistory) HasTriedAny(drugs []string) bool {
	for _, d := range drugs {
		for _, t := range h.PreviousTreatments {
			if t == d {
				return true
			}
		}
	}
	return false
}

// CurrentRequest describes the medication being requested.
type CurrentRequest struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
	Duration   string `json:"duration"`
	Urgency    string `json:"urgency"`
}

// InsuranceInfo holds coverage data relevant to cost rules.
type InsuranceInfo struct {
	Tier             string  `json:"tier"`
	PriorAuthHistory string  `json:"prior_auth_history"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// CanonicalEvidence is the structured projection of a RawCase.
type CanonicalEvidence struct {
	PatientID      string         `json:"patient_id"`
	Demographics   Demographics   `json:"demographics"`
	MedicalHistory MedicalHistory `json:"medical_history"`
	CurrentRequest CurrentRequest `json:"current_request"`
	InsuranceInfo  InsuranceInfo  `json:"insurance_info"`
}

// CheckResult is the outcome of a single guideline sub-check.
type CheckResult struct {
	Compliant bool   `json:"compliant"`
	Reason    string `json:"reason"`
}

// ComplianceResult is the output of the guideline checker.
type ComplianceResult struct {
	StepTherapy      CheckResult `json:"step_therapy"`
	CostLimits       CheckResult `json:"cost_limits"`
	OverallCompliant bool        `json:"overall_compliant"`
}

// ClinicalRisk is the additive clinical risk sub-score.
type ClinicalRisk struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// FinancialRisk is the cost-driven risk sub-score.
type FinancialRisk struct {
	Level         RiskLevel `json:"level"`
	EstimatedCost float64   `json:"estimated_cost"`
	AdjustedCost  float64   `json:"adjusted_cost"`
	Tier          string    `json:"tier"`
}

// RiskResult is the output of the risk assessor.
type RiskResult struct {
	ClinicalRisk  ClinicalRisk  `json:"clinical_risk"`
	FinancialRisk FinancialRisk `json:"financial_risk"`
	OverallRisk   RiskLevel     `json:"overall_risk"`
	Summary       string        `json:"assessment_summary"`
}

// SupportingEvidence summarizes the inputs that drove a decision.
type SupportingEvidence struct {
	GuidelineCompliant bool      `json:"guideline_compliant"`
	RiskLevel          RiskLevel `json:"risk_level"`
	KeyFactors         []string  `json:"key_factors"`
}

// Decision is the terminal output of the decision engine.
type Decision struct {
	Outcome            Outcome            `json:"decision"`
	Reason             string             `json:"reason"`
	Confidence         float64            `json:"confidence"`
	Rule               string             `json:"rule"`
	Recommendations    []string           `json:"recommendations"`
	SupportingEvidence SupportingEvidence `json:"supporting_evidence"`
	Timestamp          time.Time          `json:"decision_date"`
}
