// Package registry implements the optional service-registry client:
// liveness ping, configuration get/put with change watching, service
// registration, and catalog queries. The wire protocol is the Consul
// HTTP API; URLs of the form consul://host:port or http://host:port are
// accepted.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/devicesdk/config"
	"github.com/c360/devicesdk/pkg/nvpairs"
)

// keyPrefix roots every configuration key stored in the registry.
const keyPrefix = "edgex/core/1.0/"

// defaultWatchInterval paces the configuration change poll.
const defaultWatchInterval = 15 * time.Second

// Client is the full registry contract: the resolver-facing operations
// plus service registration.
type Client interface {
	config.RegistryClient

	// RegisterService announces this service in the registry with an
	// HTTP health check against its ping endpoint.
	RegisterService(ctx context.Context, name, host string, port int, checkInterval string) error
	// DeregisterService removes the registration.
	DeregisterService(ctx context.Context, name string) error
	// Close releases the client. Outstanding watches stop at their next
	// poll via the stop flag handed to GetConfig.
	Close()
}

// Dispatcher runs a watch callback asynchronously; the service wires the
// worker pool's submit here. A nil dispatcher runs callbacks inline.
type Dispatcher func(func()) error

// Option configures a Client.
type Option func(*consulClient)

// WithDispatcher sets the async dispatcher for watch callbacks.
func WithDispatcher(d Dispatcher) Option {
	return func(c *consulClient) {
		c.dispatch = d
	}
}

// WithWatchInterval overrides the configuration poll interval.
func WithWatchInterval(d time.Duration) Option {
	return func(c *consulClient) {
		if d > 0 {
			c.watchInterval = d
		}
	}
}

// New opens a registry client for the given URL.
func New(rawURL string, opts ...Option) (Client, error) {
	base, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := &consulClient{
		base:          base,
		rest:          newREST(),
		watchInterval: defaultWatchInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// normalizeURL maps consul:// to http:// and validates the host.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("registry url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "consul", "http":
		u.Scheme = "http"
	case "https":
	default:
		return "", fmt.Errorf("registry url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("registry url %q: missing host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// configKey builds the KV prefix for a service and profile.
func configKey(name, profile string) string {
	key := keyPrefix + name
	if profile != "" {
		key += ";" + profile
	}
	return key + "/"
}

// pairsFromKV converts recursive KV results into a flat pair list,
// stripping the service prefix from each key.
func pairsFromKV(prefix string, entries []kvEntry) nvpairs.List {
	var pairs nvpairs.List
	for _, e := range entries {
		name := strings.TrimPrefix(e.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		pairs = pairs.Add(name, string(e.decoded))
	}
	return pairs
}

// watchLoop polls the stored configuration until stop becomes true,
// dispatching onUpdate whenever the pair set changes.
func (c *consulClient) watchLoop(name, profile string, last nvpairs.List, onUpdate func(nvpairs.List), stop *atomic.Bool) {
	ticker := time.NewTicker(c.watchInterval)
	defer ticker.Stop()

	for range ticker.C {
		if stop != nil && stop.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.watchInterval)
		pairs, err := c.fetchConfig(ctx, name, profile)
		cancel()
		if err != nil || pairs == nil {
			continue
		}
		if pairs.Equal(last) {
			continue
		}
		last = pairs
		deliver := func() { onUpdate(pairs) }
		if c.dispatch != nil {
			if err := c.dispatch(deliver); err == nil {
				continue
			}
		}
		deliver()
	}
}
