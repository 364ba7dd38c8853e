package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/priorauth/internal/model"
)

func TestExtract_Defaults(t *testing.T) {
	ev := Extract(model.RawCase{PatientID: "P1"})

	assert.Equal(t, 0, ev.Demographics.Age)
	assert.Equal(t, model.UrgencyRoutine, ev.CurrentRequest.Urgency)
	assert.Equal(t, model.PriorAuthNone, ev.InsuranceInfo.PriorAuthHistory)
	assert.Zero(t, ev.InsuranceInfo.EstimatedCost)
	assert.Equal(t, model.AllergiesNone, ev.MedicalHistory.Allergies)
	assert.Empty(t, ev.MedicalHistory.PreviousTreatments)
	assert.NotNil(t, ev.MedicalHistory.PreviousTreatments)
}

func TestExtract_MapsFields(t *testing.T) {
	ev := Extract(model.RawCase{
		PatientID:           " PT000007 ",
		Age:                 67,
		Gender:              "F",
		Diagnosis:           "Type 2 Diabetes",
		ICDCode:             "E11.9",
		RequestedMedication: "Semaglutide",
		Dosage:              "1mg weekly",
		Duration:            "12 months",
		PreviousTreatments:  "Metformin; Insulin",
		Allergies:           "Sulfa",
		InsuranceTier:       "Tier 3",
		PriorAuthHistory:    model.PriorAuthDenied,
		CostPerMonth:        800,
		Urgency:             model.UrgencyUrgent,
	})

	assert.Equal(t, "PT000007", ev.PatientID)
	assert.Equal(t, 67, ev.Demographics.Age)
	assert.Equal(t, "Type 2 Diabetes", ev.MedicalHistory.Diagnosis)
	assert.Equal(t, []string{"Metformin", "Insulin"}, ev.MedicalHistory.PreviousTreatments)
	assert.Equal(t, "Sulfa", ev.MedicalHistory.Allergies)
	assert.Equal(t, "Semaglutide", ev.CurrentRequest.Medication)
	assert.Equal(t, model.UrgencyUrgent, ev.CurrentRequest.Urgency)
	assert.Equal(t, "Tier 3", ev.InsuranceInfo.Tier)
	assert.Equal(t, model.PriorAuthDenied, ev.InsuranceInfo.PriorAuthHistory)
	assert.InDelta(t, 800, ev.InsuranceInfo.EstimatedCost, 1e-9)
}

func TestExtract_NegativeValuesDefault(t *testing.T) {
	ev := Extract(model.RawCase{Age: -4, CostPerMonth: -10})
	assert.Equal(t, 0, ev.Demographics.Age)
	assert.Zero(t, ev.InsuranceInfo.EstimatedCost)
}

func TestParseTreatments(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"Methotrexate", []string{"Methotrexate"}},
		{"Methotrexate, Prednisone", []string{"Methotrexate", "Prednisone"}},
		{" A ;B| C ,, ", []string{"A", "B", "C"}},
		{"A, B, A", []string{"A", "B"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTreatments(tt.in), tt.in)
	}
}
