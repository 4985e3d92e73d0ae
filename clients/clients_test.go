package clients

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/models"
)

// endpointFor converts an httptest server URL into a config.Endpoint.
func endpointFor(t *testing.T, srv *httptest.Server) config.Endpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return config.Endpoint{Host: u.Hostname(), Port: port}
}

func TestPingEndpoint_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ping", r.URL.Path)
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := PingEndpoint(context.Background(), slog.Default(), "core-data",
		endpointFor(t, srv), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPingEndpoint_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := PingEndpoint(context.Background(), slog.Default(), "core-metadata",
		endpointFor(t, srv), 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPingEndpoint_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := PingEndpoint(context.Background(), slog.Default(), "core-data",
		endpointFor(t, srv), 2, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, sdkerr.CodeRemoteServerDown, sdkerr.CodeOf(err))
	// retries=2 means three attempts in total.
	assert.Equal(t, int32(3), calls.Load())
}

func TestPingEndpoint_MissingEndpoint(t *testing.T) {
	err := PingEndpoint(context.Background(), slog.Default(), "core-data",
		config.Endpoint{}, 2, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, sdkerr.CodeBadConfig, sdkerr.CodeOf(err))
}

func TestMetadata_GetDeviceService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/deviceservice/name/device-counter":
			_ = json.NewEncoder(w).Encode(models.DeviceService{
				ID:   "ds-1",
				Name: "device-counter",
				Addressable: models.Addressable{
					Name: "device-counter",
					Port: 48080,
				},
			})
		case "/api/v1/deviceservice/name/ghost":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ep := endpointFor(t, srv)
	md := NewMetadata(func() config.Endpoint { return ep })

	ds, err := md.GetDeviceService(context.Background(), "device-counter")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, "ds-1", ds.ID)
	assert.Equal(t, 48080, ds.Addressable.Port)

	// 404 is "no record", not an error.
	ds, err = md.GetDeviceService(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, ds)

	// Other statuses surface as METADATA_ERROR naming the operation.
	_, err = md.GetDeviceService(context.Background(), "boom")
	require.Error(t, err)
	assert.Equal(t, sdkerr.CodeMetadataError, sdkerr.CodeOf(err))
	assert.Contains(t, err.Error(), "get_deviceservice failed")
}

func TestMetadata_CreateFlow(t *testing.T) {
	var gotAddr models.Addressable
	var gotDS models.DeviceService
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/addressable":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAddr))
			_, _ = w.Write([]byte("addr-id-1"))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/deviceservice":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDS))
			_, _ = w.Write([]byte("ds-id-1"))
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/addressable":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ep := endpointFor(t, srv)
	md := NewMetadata(func() config.Endpoint { return ep })

	id, err := md.CreateAddressable(context.Background(), models.Addressable{
		Name: "device-counter", Method: "POST", Protocol: "HTTP",
		Address: "edge-host", Port: 49990, Path: "/api/v1/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "addr-id-1", id)
	assert.Equal(t, "HTTP", gotAddr.Protocol)

	id, err = md.CreateDeviceService(context.Background(), models.DeviceService{Name: "device-counter"})
	require.NoError(t, err)
	assert.Equal(t, "ds-id-1", id)

	require.NoError(t, md.UpdateAddressable(context.Background(), gotAddr))
}

func TestMetadata_GetDevicesAndWatchers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/device/servicename/device-counter":
			_ = json.NewEncoder(w).Encode([]models.Device{
				{ID: "d1", Name: "counter-1", ProfileName: "counter"},
			})
		case "/api/v1/provisionwatcher/servicename/device-counter":
			_ = json.NewEncoder(w).Encode([]models.Watcher{
				{ID: "w1", Name: "watcher-1"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ep := endpointFor(t, srv)
	md := NewMetadata(func() config.Endpoint { return ep })

	devs, err := md.GetDevices(context.Background(), "device-counter")
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "counter-1", devs[0].Name)

	ws, err := md.GetWatchers(context.Background(), "device-counter")
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "watcher-1", ws[0].Name)
}

func TestData_AddEvent(t *testing.T) {
	var gotBody []byte
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/event", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := endpointFor(t, srv)
	dc := NewData(func() config.Endpoint { return ep })

	err := dc.AddEvent(context.Background(), &models.CookedEvent{
		Device:      "counter-1",
		ContentType: "application/json",
		Payload:     []byte(`{"device":"counter-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"device":"counter-1"}`, string(gotBody))
}

func TestLogging_AddLogEntry(t *testing.T) {
	var got LogEntry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/logs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ep := endpointFor(t, srv)
	lc := NewLogging(func() config.Endpoint { return ep })

	err := lc.AddLogEntry(context.Background(), LogEntry{
		Origin: "device-counter", Level: "INFO", Message: "started",
	})
	require.NoError(t, err)
	assert.Equal(t, "started", got.Message)
}
