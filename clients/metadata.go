package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/models"
)

// Metadata is the contract the core consumes from core-metadata. Lookup
// operations return a nil entity (and nil error) when the record does
// not exist; every other failure carries a structured error whose reason
// names the failing operation.
type Metadata interface {
	GetDeviceService(ctx context.Context, name string) (*models.DeviceService, error)
	GetAddressable(ctx context.Context, name string) (*models.Addressable, error)
	CreateAddressable(ctx context.Context, addr models.Addressable) (string, error)
	UpdateAddressable(ctx context.Context, addr models.Addressable) error
	CreateDeviceService(ctx context.Context, ds models.DeviceService) (string, error)
	GetDevices(ctx context.Context, serviceName string) ([]models.Device, error)
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	GetWatchers(ctx context.Context, serviceName string) ([]models.Watcher, error)
	GetProfile(ctx context.Context, name string) (*models.DeviceProfile, error)
	CreateProfile(ctx context.Context, p models.DeviceProfile) (string, error)
	AddDevice(ctx context.Context, dev models.Device) (string, error)
}

// metadataClient talks to core-metadata over REST.
type metadataClient struct {
	*rest
	endpoints func() config.Endpoint
}

// NewMetadata creates a metadata client. The endpoint is read per call
// so configuration updates take effect without reconstruction.
func NewMetadata(endpoint func() config.Endpoint) Metadata {
	return &metadataClient{rest: newREST(), endpoints: endpoint}
}

func (m *metadataClient) url(path string) string {
	return baseURL(m.endpoints()) + apiV1 + path
}

func (m *metadataClient) GetDeviceService(ctx context.Context, name string) (*models.DeviceService, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/deviceservice/name/"+url.PathEscape(name)), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_deviceservice")
	}
	var ds models.DeviceService
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_deviceservice")
	}
	return &ds, nil
}

func (m *metadataClient) GetAddressable(ctx context.Context, name string) (*models.Addressable, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/addressable/name/"+url.PathEscape(name)), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_addressable")
	}
	var addr models.Addressable
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_addressable")
	}
	return &addr, nil
}

func (m *metadataClient) CreateAddressable(ctx context.Context, addr models.Addressable) (string, error) {
	data, err := m.do(ctx, http.MethodPost, m.url("/addressable"), addr)
	if err != nil {
		return "", sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "create_addressable")
	}
	return strings.TrimSpace(string(data)), nil
}

func (m *metadataClient) UpdateAddressable(ctx context.Context, addr models.Addressable) error {
	_, err := m.do(ctx, http.MethodPut, m.url("/addressable"), addr)
	return sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "update_addressable")
}

func (m *metadataClient) CreateDeviceService(ctx context.Context, ds models.DeviceService) (string, error) {
	data, err := m.do(ctx, http.MethodPost, m.url("/deviceservice"), ds)
	if err != nil {
		return "", sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "create_deviceservice")
	}
	return strings.TrimSpace(string(data)), nil
}

func (m *metadataClient) GetDevices(ctx context.Context, serviceName string) ([]models.Device, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/device/servicename/"+url.PathEscape(serviceName)), nil)
	if err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_devices")
	}
	var devs []models.Device
	if err := json.Unmarshal(data, &devs); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_devices")
	}
	return devs, nil
}

func (m *metadataClient) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/device/"+url.PathEscape(id)), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_device")
	}
	var dev models.Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_device")
	}
	return &dev, nil
}

func (m *metadataClient) GetWatchers(ctx context.Context, serviceName string) ([]models.Watcher, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/provisionwatcher/servicename/"+url.PathEscape(serviceName)), nil)
	if err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_watchers")
	}
	var ws []models.Watcher
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_watchers")
	}
	return ws, nil
}

func (m *metadataClient) GetProfile(ctx context.Context, name string) (*models.DeviceProfile, error) {
	data, err := m.do(ctx, http.MethodGet, m.url("/deviceprofile/name/"+url.PathEscape(name)), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_profile")
	}
	var p models.DeviceProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "get_profile")
	}
	return &p, nil
}

func (m *metadataClient) CreateProfile(ctx context.Context, p models.DeviceProfile) (string, error) {
	data, err := m.do(ctx, http.MethodPost, m.url("/deviceprofile"), p)
	if err != nil {
		return "", sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "create_profile")
	}
	return strings.TrimSpace(string(data)), nil
}

func (m *metadataClient) AddDevice(ctx context.Context, dev models.Device) (string, error) {
	data, err := m.do(ctx, http.MethodPost, m.url("/device"), dev)
	if err != nil {
		return "", sdkerr.WrapOp(err, sdkerr.CodeMetadataError, "add_device")
	}
	return strings.TrimSpace(string(data)), nil
}
