package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/model"
)

func TestDecodeJSON_TreatmentsAsList(t *testing.T) {
	raw, err := DecodeJSON(strings.NewReader(`{
		"patient_id": "PT000001",
		"diagnosis": "Rheumatoid Arthritis",
		"requested_medication": "Adalimumab",
		"previous_treatments": ["Methotrexate", "Prednisone"],
		"cost_per_month": 2500,
		"unknown_field": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, "PT000001", raw.PatientID)
	assert.Equal(t, model.DelimitedList("Methotrexate, Prednisone"), raw.PreviousTreatments)
	assert.InDelta(t, 2500, raw.CostPerMonth, 1e-9)
}

func TestDecodeJSON_CostPresence(t *testing.T) {
	zero, err := DecodeJSON(strings.NewReader(`{"patient_id":"P","cost_per_month":0}`))
	require.NoError(t, err)
	assert.True(t, zero.CostProvided)
	assert.True(t, zero.HasCost())

	absent, err := DecodeJSON(strings.NewReader(`{"patient_id":"P"}`))
	require.NoError(t, err)
	assert.False(t, absent.CostProvided)
	assert.False(t, absent.HasCost())

	null, err := DecodeJSON(strings.NewReader(`{"patient_id":"P","cost_per_month":null}`))
	require.NoError(t, err)
	assert.False(t, null.HasCost())
}

func TestDecodeJSON_TreatmentsAsString(t *testing.T) {
	raw, err := DecodeJSON(strings.NewReader(`{"patient_id":"P","previous_treatments":"Metformin; Insulin"}`))
	require.NoError(t, err)
	assert.Equal(t, model.DelimitedList("Metformin; Insulin"), raw.PreviousTreatments)
}

func TestDecodeJSON_Invalid(t *testing.T) {
	_, err := DecodeJSON(strings.NewReader(`{"previous_treatments": 42}`))
	assert.Error(t, err)
}

func TestDecodeJSONList(t *testing.T) {
	list, err := DecodeJSONList(strings.NewReader(`[{"patient_id":"A"},{"patient_id":"B"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[1].PatientID)

	one, err := DecodeJSONList(strings.NewReader(`{"patient_id":"C"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "C", one[0].PatientID)
}
