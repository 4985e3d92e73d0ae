// Package config defines the device service's typed configuration, the
// TOML file loader, and the resolver that merges file defaults with
// registry-sourced overrides.
package config

import (
	"strings"
	"sync"

	"github.com/c360/devicesdk/pkg/nvpairs"
)

// Endpoint locates one north-bound service.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Endpoints collects the north-bound services the core talks to.
type Endpoints struct {
	Metadata Endpoint `json:"metadata"`
	Data     Endpoint `json:"data"`
	Logging  Endpoint `json:"logging"`
}

// ServiceInfo configures this service's own identity and bring-up
// behavior.
type ServiceInfo struct {
	Host           string   `json:"host,omitempty"`
	Port           int      `json:"port"`
	ConnectRetries int      `json:"connect_retries"`
	Timeout        int      `json:"timeout"` // seconds between ping attempts
	CheckInterval  string   `json:"check_interval,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	StartupMsg     string   `json:"startup_msg,omitempty"`
}

// LoggingInfo configures local and remote log sinks.
type LoggingInfo struct {
	File         string `json:"file,omitempty"`
	Level        string `json:"level,omitempty"`
	EnableRemote bool   `json:"enable_remote"`
}

// DeviceInfo configures device handling.
type DeviceInfo struct {
	ProfilesDir   string `json:"profiles_dir,omitempty"`
	DataTransform bool   `json:"data_transform"`
}

// MessageBusInfo optionally routes cooked events to a message bus
// instead of the core-data REST endpoint.
type MessageBusInfo struct {
	Type  string `json:"type,omitempty"` // "nats" is the only supported type
	Host  string `json:"host,omitempty"`
	Port  int    `json:"port,omitempty"`
	Topic string `json:"topic,omitempty"`
}

// Config is the effective configuration record. The resolver guarantees
// that by its completion the record is fully populated and the metadata
// and data endpoints are set.
type Config struct {
	Service    ServiceInfo    `json:"service"`
	Endpoints  Endpoints      `json:"endpoints"`
	Logging    LoggingInfo    `json:"logging"`
	Device     DeviceInfo     `json:"device"`
	MessageBus MessageBusInfo `json:"message_bus,omitempty"`
	Driver     nvpairs.List   `json:"driver,omitempty"`
}

// Defaults returns the configuration used before any file or registry
// values are applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceInfo{
			Port:           49990,
			ConnectRetries: 3,
			Timeout:        5,
			CheckInterval:  "10s",
		},
		Logging: LoggingInfo{Level: "INFO"},
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return Defaults()
	}
	out := *c
	out.Service.Labels = append([]string(nil), c.Service.Labels...)
	out.Driver = c.Driver.Clone()
	return &out
}

// ApplyPairs populates the typed record from a flat name/value list.
// Keys are '/'-separated paths mirroring the TOML structure
// ("Service/Port", "Clients/Data/Host", "Driver/<name>"). Unknown keys
// are preserved only in the flat list; the typed record ignores them.
func (c *Config) ApplyPairs(pairs nvpairs.List) {
	if v, ok := pairs.Value("Service/Host"); ok {
		c.Service.Host = v
	}
	if v, ok := pairs.Int64Value("Service/Port"); ok {
		c.Service.Port = int(v)
	}
	if v, ok := pairs.Int64Value("Service/ConnectRetries"); ok {
		c.Service.ConnectRetries = int(v)
	}
	if v, ok := pairs.Int64Value("Service/Timeout"); ok {
		c.Service.Timeout = int(v)
	}
	if v, ok := pairs.Value("Service/CheckInterval"); ok {
		c.Service.CheckInterval = v
	}
	if v, ok := pairs.Value("Service/Labels"); ok && v != "" {
		c.Service.Labels = splitTrim(v)
	}
	if v, ok := pairs.Value("Service/StartupMsg"); ok {
		c.Service.StartupMsg = v
	}

	if v, ok := pairs.Value("Logging/File"); ok {
		c.Logging.File = v
	}
	if v, ok := pairs.Value("Logging/Level"); ok {
		c.Logging.Level = v
	}
	if v, ok := pairs.BoolValue("Logging/EnableRemote"); ok {
		c.Logging.EnableRemote = v
	}

	if v, ok := pairs.Value("Device/ProfilesDir"); ok {
		c.Device.ProfilesDir = v
	}
	if v, ok := pairs.BoolValue("Device/DataTransform"); ok {
		c.Device.DataTransform = v
	}

	if v, ok := pairs.Value("MessageBus/Type"); ok {
		c.MessageBus.Type = v
	}
	if v, ok := pairs.Value("MessageBus/Host"); ok {
		c.MessageBus.Host = v
	}
	if v, ok := pairs.Int64Value("MessageBus/Port"); ok {
		c.MessageBus.Port = int(v)
	}
	if v, ok := pairs.Value("MessageBus/Topic"); ok {
		c.MessageBus.Topic = v
	}

	c.applyClientPairs(pairs)

	// Driver configuration is opaque: everything under Driver/ passes
	// through with the prefix stripped.
	var driver nvpairs.List
	for _, p := range pairs {
		if name, ok := strings.CutPrefix(p.Name, "Driver/"); ok {
			driver = driver.Add(name, p.Value)
		}
	}
	if driver != nil {
		c.Driver = driver
	}
}

// applyClientPairs fills endpoints from Clients/<Name>/{Host,Port} keys.
func (c *Config) applyClientPairs(pairs nvpairs.List) {
	apply := func(table string, ep *Endpoint) {
		if v, ok := pairs.Value("Clients/" + table + "/Host"); ok {
			ep.Host = v
		}
		if v, ok := pairs.Int64Value("Clients/" + table + "/Port"); ok {
			ep.Port = int(v)
		}
	}
	apply("Metadata", &c.Endpoints.Metadata)
	apply("Data", &c.Endpoints.Data)
	apply("Logging", &c.Endpoints.Logging)
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SafeConfig provides snapshot-swap access to the effective
// configuration. Readers get immutable clones; the config-watch thread
// swaps in replacements atomically.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps an initial configuration.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Defaults()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg.Clone()
}

// Set replaces the current configuration.
func (sc *SafeConfig) Set(cfg *Config) {
	if cfg == nil {
		return
	}
	sc.mu.Lock()
	sc.cfg = cfg
	sc.mu.Unlock()
}

// Update applies fn to a clone of the current configuration and swaps
// the result in. Used by the config-watch callback to replace mutable
// fields in place.
func (sc *SafeConfig) Update(fn func(*Config)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	next := sc.cfg.Clone()
	fn(next)
	sc.cfg = next
}
