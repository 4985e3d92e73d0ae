package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/pkg/nvpairs"
)

// consulClient talks to a Consul agent over its HTTP API.
type consulClient struct {
	base          string
	rest          *rest
	dispatch      Dispatcher
	watchInterval time.Duration
}

// rest is a minimal HTTP transport shared by the Consul operations.
type rest struct {
	client *http.Client
}

func newREST() *rest {
	return &rest{client: &http.Client{Timeout: 10 * time.Second}}
}

// do issues a request and returns the body for 2xx responses. notFound
// is true for a 404, with a nil error.
func (r *rest) do(ctx context.Context, method, url string, body []byte) (data []byte, notFound bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, false, nil
}

// kvEntry is one row of a recursive KV read.
type kvEntry struct {
	Key     string `json:"Key"`
	Value   string `json:"Value"` // base64
	decoded []byte
}

// Ping probes agent liveness through the status endpoint.
func (c *consulClient) Ping(ctx context.Context) error {
	_, notFound, err := c.rest.do(ctx, http.MethodGet, c.base+"/v1/status/leader", nil)
	if err != nil {
		return err
	}
	if notFound {
		return fmt.Errorf("registry status endpoint missing")
	}
	return nil
}

// GetConfig reads the stored flat configuration. A first run (no keys)
// yields (nil, nil). On success a background watch is started that
// invokes onUpdate on changes until *stop becomes true.
func (c *consulClient) GetConfig(ctx context.Context, name, profile string, onUpdate func(nvpairs.List), stop *atomic.Bool) (nvpairs.List, error) {
	pairs, err := c.fetchConfig(ctx, name, profile)
	if err != nil || pairs == nil {
		return nil, err
	}
	if onUpdate != nil {
		go c.watchLoop(name, profile, pairs.Clone(), onUpdate, stop)
	}
	return pairs, nil
}

// fetchConfig performs one recursive KV read.
func (c *consulClient) fetchConfig(ctx context.Context, name, profile string) (nvpairs.List, error) {
	prefix := configKey(name, profile)
	u := c.base + "/v1/kv/" + prefix + "?recurse=true"
	data, notFound, err := c.rest.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "get_config")
	}
	if notFound {
		return nil, nil
	}

	var entries []kvEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "get_config")
	}
	for i := range entries {
		entries[i].decoded, err = base64.StdEncoding.DecodeString(entries[i].Value)
		if err != nil {
			return nil, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "get_config")
		}
	}
	pairs := pairsFromKV(prefix, entries)
	if len(pairs) == 0 {
		return nil, nil
	}
	return pairs, nil
}

// PutConfig stores each pair as one KV entry under the service prefix.
func (c *consulClient) PutConfig(ctx context.Context, name, profile string, pairs nvpairs.List) error {
	prefix := configKey(name, profile)
	for _, p := range pairs {
		u := c.base + "/v1/kv/" + prefix + p.Name
		if _, _, err := c.rest.do(ctx, http.MethodPut, u, []byte(p.Value)); err != nil {
			return sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "put_config")
		}
	}
	return nil
}

// catalogEntry is one row of a catalog service query.
type catalogEntry struct {
	Address        string `json:"Address"`
	ServiceAddress string `json:"ServiceAddress"`
	ServicePort    int    `json:"ServicePort"`
}

// QueryService resolves a registered service's host and port from the
// catalog.
func (c *consulClient) QueryService(ctx context.Context, service string) (string, int, error) {
	u := c.base + "/v1/catalog/service/" + url.PathEscape(service)
	data, notFound, err := c.rest.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "query_service")
	}
	if notFound {
		return "", 0, sdkerr.Newf(sdkerr.CodeRegistryError, "service %s not registered", service)
	}

	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return "", 0, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "query_service")
	}
	if len(entries) == 0 {
		return "", 0, sdkerr.Newf(sdkerr.CodeRegistryError, "service %s not registered", service)
	}
	host := entries[0].ServiceAddress
	if host == "" {
		host = entries[0].Address
	}
	return host, entries[0].ServicePort, nil
}

// registration is the agent service registration payload.
type registration struct {
	Name    string            `json:"Name"`
	Address string            `json:"Address"`
	Port    int               `json:"Port"`
	Check   registrationCheck `json:"Check"`
}

type registrationCheck struct {
	HTTP     string `json:"HTTP"`
	Interval string `json:"Interval"`
}

// RegisterService announces the service with an HTTP health check on its
// ping endpoint.
func (c *consulClient) RegisterService(ctx context.Context, name, host string, port int, checkInterval string) error {
	if checkInterval == "" {
		checkInterval = "10s"
	}
	payload, err := json.Marshal(registration{
		Name:    name,
		Address: host,
		Port:    port,
		Check: registrationCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/api/v1/ping", host, port),
			Interval: checkInterval,
		},
	})
	if err != nil {
		return sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "register_service")
	}
	if _, _, err := c.rest.do(ctx, http.MethodPut, c.base+"/v1/agent/service/register", payload); err != nil {
		return sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "register_service")
	}
	return nil
}

// DeregisterService removes the registration.
func (c *consulClient) DeregisterService(ctx context.Context, name string) error {
	u := c.base + "/v1/agent/service/deregister/" + url.PathEscape(name)
	if _, _, err := c.rest.do(ctx, http.MethodPut, u, nil); err != nil {
		return sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "deregister_service")
	}
	return nil
}

// Close releases the client.
func (c *consulClient) Close() {}
