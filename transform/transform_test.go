package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devicesdk/models"
)

func f64(v float64) *float64 { return &v }

func counterProfile() *models.DeviceProfile {
	return &models.DeviceProfile{
		Name: "counter",
		Resources: []models.DeviceResource{
			{
				Name:       "count",
				Properties: models.ResourceProperties{ValueType: "Int64"},
			},
			{
				Name: "temperature",
				Properties: models.ResourceProperties{
					ValueType: "Float64",
					Scale:     f64(0.5),
					Offset:    f64(10),
				},
			},
		},
	}
}

func TestProcessEvent_Basic(t *testing.T) {
	profile := counterProfile()
	cmd, ok := profile.FindCommand("count")
	require.True(t, ok)

	cooked, err := ProcessEvent("counter-1", cmd, profile,
		[]models.CommandValue{{Resource: "count", Value: int64(42)}}, false)
	require.NoError(t, err)
	require.NotNil(t, cooked)

	assert.Equal(t, "counter-1", cooked.Device)
	assert.Equal(t, "application/json", cooked.ContentType)

	var ev models.Event
	require.NoError(t, json.Unmarshal(cooked.Payload, &ev))
	assert.Equal(t, "counter-1", ev.Device)
	require.Len(t, ev.Readings, 1)
	assert.Equal(t, "count", ev.Readings[0].Name)
	assert.Equal(t, "42", ev.Readings[0].Value)
	assert.Positive(t, ev.Readings[0].Origin)
}

func TestProcessEvent_TransformApplied(t *testing.T) {
	profile := counterProfile()
	cmd, _ := profile.FindCommand("temperature")

	cooked, err := ProcessEvent("counter-1", cmd, profile,
		[]models.CommandValue{{Resource: "temperature", Value: 20.0}}, true)
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(cooked.Payload, &ev))
	// 20 * 0.5 + 10 = 20
	assert.Equal(t, "20", ev.Readings[0].Value)

	// Transform disabled leaves the raw value.
	cooked, err = ProcessEvent("counter-1", cmd, profile,
		[]models.CommandValue{{Resource: "temperature", Value: 21.0}}, false)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(cooked.Payload, &ev))
	assert.Equal(t, "21", ev.Readings[0].Value)
}

func TestProcessEvent_StringAndBool(t *testing.T) {
	profile := &models.DeviceProfile{
		Resources: []models.DeviceResource{
			{Name: "state", Properties: models.ResourceProperties{ValueType: "String"}},
			{Name: "on", Properties: models.ResourceProperties{ValueType: "Bool"}},
		},
	}
	cmd := models.Command{Name: "status", Resources: []string{"state", "on"}}

	cooked, err := ProcessEvent("dev", cmd, profile, []models.CommandValue{
		{Resource: "state", Value: "running"},
		{Resource: "on", Value: true},
	}, true)
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(cooked.Payload, &ev))
	require.Len(t, ev.Readings, 2)
	assert.Equal(t, "running", ev.Readings[0].Value)
	assert.Equal(t, "true", ev.Readings[1].Value)
}

func TestProcessEvent_NilValueFails(t *testing.T) {
	profile := counterProfile()
	cmd, _ := profile.FindCommand("count")
	_, err := ProcessEvent("dev", cmd, profile,
		[]models.CommandValue{{Resource: "count", Value: nil}}, false)
	assert.Error(t, err)
}

func TestProcessEvent_NoReadings(t *testing.T) {
	profile := counterProfile()
	cmd, _ := profile.FindCommand("count")
	_, err := ProcessEvent("dev", cmd, profile, nil, false)
	assert.Error(t, err)
}

func TestApplyTransform_Order(t *testing.T) {
	// base^v, then *scale, then +offset: 2^3 * 10 + 1 = 81
	p := models.ResourceProperties{Base: f64(2), Scale: f64(10), Offset: f64(1)}
	assert.Equal(t, 81.0, applyTransform(3, p))
}
