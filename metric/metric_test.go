package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersInstruments(t *testing.T) {
	m := New("device-counter")
	m.ServiceStatus.Set(2)
	m.EventsPosted.WithLabelValues("rest").Inc()
	m.PostErrors.Inc()
	m.DevicesManaged.Set(3)

	families, err := m.registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["devicesdk_service_status"])
	assert.True(t, names["devicesdk_events_posted_total"])
	assert.True(t, names["devicesdk_events_post_errors_total"])
	assert.True(t, names["devicesdk_devices_managed"])
}

func TestPromHandler(t *testing.T) {
	m := New("device-counter")
	m.ServiceStatus.Set(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.PromHandler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "devicesdk_service_status")
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot()
	assert.Positive(t, snap.Alloc)
	assert.Positive(t, snap.Sys)
	assert.Positive(t, snap.Goroutines)
}
