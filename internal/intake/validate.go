package intake

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/priorauth/internal/model"
)

// ErrMissingField is wrapped by Validate when a required field is empty.
var ErrMissingField = eris.New("missing required field")

// Report is the full intake quality check of one case.
type Report struct {
	Valid           bool     `json:"is_valid"`
	MissingRequired []string `json:"missing_required_fields"`
	MissingOptional []string `json:"missing_optional_fields"`
	QualityIssues   []string `json:"data_quality_issues"`
	Recommendations []string `json:"recommendations"`
}

var knownGenders = map[string]bool{"M": true, "F": true, "Male": true, "Female": true, "Other": true}

// Inspect reports missing fields and data-quality problems without failing.
func Inspect(raw model.RawCase) Report {
	rep := Report{
		Valid:           true,
		MissingRequired: []string{},
		MissingOptional: []string{},
		QualityIssues:   []string{},
		Recommendations: []string{},
	}

	required := []struct{ name, value string }{
		{"patient_id", raw.PatientID},
		{"diagnosis", raw.Diagnosis},
		{"requested_medication", raw.RequestedMedication},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			rep.MissingRequired = append(rep.MissingRequired, f.name)
			rep.Valid = false
		}
	}

	optional := []struct {
		name    string
		present bool
	}{
		{"age", raw.Age != 0},
		{"gender", raw.Gender != ""},
		{"dosage", raw.Dosage != ""},
		{"duration", raw.Duration != ""},
		{"previous_treatments", raw.PreviousTreatments != ""},
		{"allergies", raw.Allergies != ""},
		{"insurance_tier", raw.InsuranceTier != ""},
		{"urgency", raw.Urgency != ""},
	}
	for _, f := range optional {
		if !f.present {
			rep.MissingOptional = append(rep.MissingOptional, f.name)
		}
	}

	if raw.Age < 0 || raw.Age > 120 {
		rep.QualityIssues = append(rep.QualityIssues, "Age seems unrealistic")
	}
	if raw.Gender != "" && !knownGenders[raw.Gender] {
		rep.QualityIssues = append(rep.QualityIssues, "Gender field has unexpected value")
	}
	if raw.CostPerMonth < 0 {
		rep.QualityIssues = append(rep.QualityIssues, "Cost per month is negative")
	}

	if len(rep.MissingRequired) > 0 {
		rep.Recommendations = append(rep.Recommendations, "Please provide all required fields before processing")
	}
	if len(rep.MissingOptional) > 3 {
		rep.Recommendations = append(rep.Recommendations, "Consider providing more patient information for better decision accuracy")
	}
	if len(rep.QualityIssues) > 0 {
		rep.Recommendations = append(rep.Recommendations, "Please review and correct data quality issues")
	}
	return rep
}

// Validate fails when a required field is missing.
func Validate(raw model.RawCase) error {
	rep := Inspect(raw)
	if !rep.Valid {
		return eris.Wrapf(ErrMissingField, "intake: %s", strings.Join(rep.MissingRequired, ", "))
	}
	return nil
}

// Normalize canonicalizes the casing of enumerated fields so "urgent",
// "URGENT" and "Urgent" are treated alike. NKDA stays upper case.
func Normalize(raw model.RawCase) model.RawCase {
	title := cases.Title(language.English)
	canon := func(s string) string {
		s = strings.TrimSpace(s)
		if s == "" {
			return s
		}
		return title.String(strings.ToLower(s))
	}

	raw.Urgency = canon(raw.Urgency)
	raw.PriorAuthHistory = canon(raw.PriorAuthHistory)
	raw.InsuranceTier = canon(raw.InsuranceTier)
	if strings.EqualFold(strings.TrimSpace(raw.Allergies), model.AllergiesNKDA) {
		raw.Allergies = model.AllergiesNKDA
	} else if strings.EqualFold(strings.TrimSpace(raw.Allergies), model.AllergiesNone) {
		raw.Allergies = model.AllergiesNone
	}
	return raw
}
