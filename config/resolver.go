package config

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/pkg/nvpairs"
	"github.com/c360/devicesdk/pkg/retry"
)

// Environment variables consulted by the resolver.
const (
	EnvRegistry           = "edgex_registry"
	EnvRegistryRetryCount = "edgex_registry_retry_count"
	EnvRegistryRetryWait  = "edgex_registry_retry_wait"
)

// Registry service names queried for endpoint discovery.
const (
	RegistryNameMetadata = "edgex-core-metadata"
	RegistryNameData     = "edgex-core-data"
	RegistryNameLogging  = "edgex-support-logging"
)

const (
	defaultRegistryRetries = 5
	defaultRegistryWait    = time.Second
)

// RegistryClient is the subset of registry operations the resolver
// consumes. The registry package provides the Consul implementation.
type RegistryClient interface {
	// Ping probes registry liveness.
	Ping(ctx context.Context) error
	// GetConfig fetches the stored flat configuration. A nil list with a
	// nil error means the registry holds no configuration yet
	// (first run). When a list is returned, the client arranges a
	// background watch that invokes onUpdate for subsequent changes
	// until *stop becomes true.
	GetConfig(ctx context.Context, name, profile string, onUpdate func(nvpairs.List), stop *atomic.Bool) (nvpairs.List, error)
	// PutConfig uploads a flat configuration list.
	PutConfig(ctx context.Context, name, profile string, pairs nvpairs.List) error
	// QueryService resolves a registered service's host and port.
	QueryService(ctx context.Context, service string) (string, int, error)
}

// RegistryConnector opens a registry client for a URL. A nil client with
// a non-nil error indicates the URL is unusable.
type RegistryConnector func(url string) (RegistryClient, error)

// Resolver determines the effective configuration per the bring-up
// rules: file-only, registry-sourced, or first-run upload.
type Resolver struct {
	Name        string
	Profile     string
	ConfDir     string
	RegistryURL string // "" with UseRegistry means consult the file
	UseRegistry bool

	Connect   RegistryConnector
	LookupEnv func(string) (string, bool)
	OnUpdate  func(nvpairs.List)
	StopWatch *atomic.Bool
	Logger    *slog.Logger
}

// Resolved is the resolver's output. Registry is non-nil when a registry
// is in use; File is non-nil only when the configuration file was read
// (registry-sourced configuration skips it).
type Resolved struct {
	Config   *Config
	Pairs    nvpairs.List
	File     *File
	Registry RegistryClient
}

// Resolve runs the resolution algorithm. On return the typed record is
// fully populated and the metadata/data endpoints are set from either
// the registry catalog or the file's Clients table.
func (r *Resolver) Resolve(ctx context.Context) (*Resolved, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	var file *File
	var err error
	regURL := r.RegistryURL

	if r.UseRegistry && regURL == "" {
		// Discover the registry location from the file before using it.
		file, err = Load(r.ConfDir, r.Profile)
		if err != nil {
			return nil, err
		}
		regURL = file.Registry
	}

	var reg RegistryClient
	if r.UseRegistry {
		if regURL != "" && r.Connect != nil {
			if reg, err = r.Connect(regURL); err != nil {
				log.Error("Registry connection failed", "url", regURL, "error", err)
				reg = nil
			}
		}
		if reg == nil {
			log.Error("Registry was requested but no location given")
			return nil, sdkerr.New(sdkerr.CodeInvalidArg, "registry requested but unresolvable")
		}
	}

	cfg := Defaults()
	var pairs nvpairs.List
	uploadConfig := false

	if reg != nil {
		if err := r.awaitRegistry(ctx, reg, regURL, log); err != nil {
			return nil, err
		}
		log.Info("Found registry service", "url", regURL)

		pairs, err = reg.GetConfig(ctx, r.Name, r.Profile, r.OnUpdate, r.StopWatch)
		if err != nil || pairs == nil {
			log.Info("Unable to get configuration from registry, will load from file", "error", err)
			uploadConfig = true
		} else {
			cfg.ApplyPairs(pairs)
		}
	}

	if uploadConfig || reg == nil {
		if file == nil {
			file, err = Load(r.ConfDir, r.Profile)
			if err != nil {
				return nil, err
			}
		}
		pairs = file.Pairs
		cfg.ApplyPairs(pairs)

		if uploadConfig {
			log.Info("Uploading configuration to registry")
			pairs = ApplyEnvOverrides(r.LookupEnv, r.Name, pairs)
			if err := reg.PutConfig(ctx, r.Name, r.Profile, pairs); err != nil {
				log.Error("Unable to upload config", "error", err)
				return nil, sdkerr.WrapOp(err, sdkerr.CodeRegistryError, "put_config")
			}
		}
	}

	if reg != nil {
		// Individual lookup failures are tolerated: endpoints may still
		// arrive via file defaults already applied above.
		r.queryEndpoint(ctx, reg, RegistryNameMetadata, &cfg.Endpoints.Metadata, log)
		r.queryEndpoint(ctx, reg, RegistryNameData, &cfg.Endpoints.Data, log)
		r.queryEndpoint(ctx, reg, RegistryNameLogging, &cfg.Endpoints.Logging, log)
	}

	return &Resolved{Config: cfg, Pairs: pairs, File: file, Registry: reg}, nil
}

// awaitRegistry pings the registry with the configured retry policy.
func (r *Resolver) awaitRegistry(ctx context.Context, reg RegistryClient, url string, log *slog.Logger) error {
	retries := defaultRegistryRetries
	wait := defaultRegistryWait
	if r.LookupEnv != nil {
		if v, ok := r.LookupEnv(EnvRegistryRetryCount); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				retries = n
			}
		}
		if v, ok := r.LookupEnv(EnvRegistryRetryWait); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				wait = time.Duration(n) * time.Second
			}
		}
	}

	err := retry.DoFixed(ctx, retries, wait, func() error {
		return reg.Ping(ctx)
	})
	if err != nil {
		log.Error("Registry service not running", "url", url)
		return sdkerr.Newf(sdkerr.CodeRemoteServerDown, "registry service not running at %s", url)
	}
	return nil
}

// queryEndpoint resolves one service endpoint, ignoring failures.
func (r *Resolver) queryEndpoint(ctx context.Context, reg RegistryClient, name string, ep *Endpoint, log *slog.Logger) {
	host, port, err := reg.QueryService(ctx, name)
	if err != nil {
		log.Debug("Registry lookup failed", "service", name, "error", err)
		return
	}
	ep.Host = host
	ep.Port = port
}
