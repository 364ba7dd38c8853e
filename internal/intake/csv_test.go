package intake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/model"
)

const casesCSV = `patient_id,name,age,gender,diagnosis,requested_medication,previous_treatments,allergies,insurance_tier,prior_auth_history,cost_per_month,urgency
PT000001,Patient 1,45,F,Rheumatoid Arthritis,Adalimumab,"['Methotrexate', 'Prednisone']",NKDA,Tier 4,None,2500,Routine
PT000002,Patient 2,notanumber,M,Type 2 Diabetes,Insulin,,None,Tier 2,None,200,Urgent
PT000003,Patient 3,70,M,Type 2 Diabetes,Semaglutide,Metformin,Sulfa,Tier 3,Denied,$800,Emergency
`

func TestReadCSV(t *testing.T) {
	cases, bad, err := ReadCSV(context.Background(), strings.NewReader(casesCSV))
	require.NoError(t, err)
	require.Len(t, cases, 2)
	require.Len(t, bad, 1)
	assert.Contains(t, bad[3].Error(), "age")

	first := cases[0]
	assert.Equal(t, "PT000001", first.PatientID)
	assert.Equal(t, 45, first.Age)
	assert.Equal(t, model.DelimitedList("Methotrexate, Prednisone"), first.PreviousTreatments)
	assert.InDelta(t, 2500, first.CostPerMonth, 1e-9)

	assert.InDelta(t, 800, cases[1].CostPerMonth, 1e-9)
	assert.Equal(t, model.UrgencyEmergency, cases[1].Urgency)
}

func TestReadCSV_CostPresence(t *testing.T) {
	in := "patient_id,diagnosis,requested_medication,cost_per_month\n" +
		"P1,Asthma,Albuterol,0\n" +
		"P2,Asthma,Albuterol,\n"
	cases, bad, err := ReadCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Empty(t, bad)
	require.Len(t, cases, 2)
	assert.True(t, cases[0].HasCost())
	assert.False(t, cases[1].HasCost())
}

func TestReadCSV_MissingPatientColumn(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader("diagnosis\nAsthma\n"))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestReadCSV_Empty(t *testing.T) {
	cases, bad, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.Empty(t, bad)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows, errs := StreamCSV(ctx, strings.NewReader(casesCSV))
	for range rows {
	}
	assert.Error(t, <-errs)
}

func TestUnwrapListLiteral(t *testing.T) {
	assert.Equal(t, "A, B", unwrapListLiteral(`['A', "B"]`))
	assert.Equal(t, "", unwrapListLiteral("[]"))
	assert.Equal(t, "A; B", unwrapListLiteral("A; B"))
}
