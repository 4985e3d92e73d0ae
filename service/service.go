// Package service implements the device service lifecycle engine:
// configuration acquisition with registry fallback, dependency readiness
// barriers, metadata reconciliation, device import, driver bring-up, the
// HTTP control surface, reading ingestion, and orderly shutdown.
package service

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/devicesdk/clients"
	"github.com/c360/devicesdk/config"
	"github.com/c360/devicesdk/devmap"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/logging"
	"github.com/c360/devicesdk/metric"
	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/natsclient"
	"github.com/c360/devicesdk/pkg/worker"
	"github.com/c360/devicesdk/registry"
	"github.com/c360/devicesdk/restserver"
	"github.com/c360/devicesdk/scheduler"
	"github.com/c360/devicesdk/watchlist"
)

// SDKVersion identifies this SDK build in the version endpoint.
const SDKVersion = "1.2.0"

// Service is a device service instance. Create with New, run with
// Start, terminate with Stop, release with Free.
type Service struct {
	name        string
	version     string
	confdir     string
	profile     string
	regURL      string
	useRegistry bool

	driver Driver

	logger  *slog.Logger
	fanout  *logging.Fanout
	metrics *metric.Metrics

	safecfg  *config.SafeConfig
	devices  *devmap.Map
	watchers *watchlist.List
	sched    *scheduler.Scheduler
	pool     *worker.Pool[postWork]
	server   *restserver.Server

	md   clients.Metadata
	data clients.Data
	bus  *natsclient.Client

	reg        registry.Client
	regConnect config.RegistryConnector

	lookupEnv func(string) (string, bool)

	adminState atomic.Value // models.AdminState
	opState    atomic.Value // models.OperatingState
	state      atomic.Int32
	startTime  time.Time
	stopConfig atomic.Bool
	discoMu    sync.Mutex

	// autoevent task IDs per device name, for cancellation on remove.
	aeMu       sync.Mutex
	autoevents map[string][]string
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger supplies a caller-owned logger. The managed sink chain
// (file and remote reconfiguration at start) is disabled for it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
			s.fanout = nil
		}
	}
}

// WithMetadataClient overrides the core-metadata client.
func WithMetadataClient(md clients.Metadata) Option {
	return func(s *Service) { s.md = md }
}

// WithDataClient overrides the core-data client.
func WithDataClient(dc clients.Data) Option {
	return func(s *Service) { s.data = dc }
}

// WithRegistryConnector overrides how registry URLs are opened.
func WithRegistryConnector(connect config.RegistryConnector) Option {
	return func(s *Service) { s.regConnect = connect }
}

// WithEnvLookup overrides environment access.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(s *Service) { s.lookupEnv = lookup }
}

// New creates a device service. defaultName names the service unless -n
// overrides it; version is the service implementation version; driver is
// the protocol implementation. args are the command-line arguments
// excluding the program name.
func New(defaultName, version string, driver Driver, args []string, opts ...Option) (*Service, error) {
	if driver == nil {
		slog.Error("devsdk: no driver implementation")
		return nil, sdkerr.New(sdkerr.CodeNoDeviceImpl, "no driver implementation")
	}
	if defaultName == "" {
		slog.Error("devsdk: no default name specified")
		return nil, sdkerr.New(sdkerr.CodeNoDeviceName, "no default name specified")
	}
	if version == "" {
		slog.Error("devsdk: no version specified")
		return nil, sdkerr.New(sdkerr.CodeNoDeviceVersion, "no version specified")
	}

	s := &Service{
		version:    version,
		driver:     driver,
		confdir:    "res",
		lookupEnv:  os.LookupEnv,
		devices:    devmap.New(),
		watchers:   watchlist.New(),
		autoevents: make(map[string][]string),
		safecfg:    config.NewSafeConfig(config.Defaults()),
	}
	s.state.Store(int32(StateNew))
	s.adminState.Store(models.Unlocked)
	s.opState.Store(models.Enabled)

	for _, opt := range opts {
		opt(s)
	}

	// The registry location defaults from the environment; flags may
	// override it below.
	if v, ok := s.lookupEnv(config.EnvRegistry); ok && v != "" {
		s.regURL = v
		s.useRegistry = true
	}

	cl := cmdline{name: defaultName, confdir: s.confdir}
	if err := cl.parse(args); err != nil {
		return nil, err
	}
	s.name = cl.name
	s.confdir = cl.confdir
	s.profile = cl.profile
	if cl.registrySet {
		s.useRegistry = true
		if cl.registry != "" {
			s.regURL = cl.registry
		}
	}

	if s.logger == nil {
		s.fanout = logging.NewFanout(logging.NewConsoleHandler(slog.LevelDebug))
		s.logger = slog.New(s.fanout).With("service", s.name)
	}
	s.metrics = metric.New(s.name)
	s.sched = scheduler.New(s.logger)
	s.pool = worker.NewPool(worker.DefaultWorkers, s.processPost,
		worker.WithPrometheus[postWork](s.metrics.Registerer(), "event_post"))

	if s.regConnect == nil {
		s.regConnect = func(url string) (config.RegistryClient, error) {
			return registry.New(url, registry.WithDispatcher(func(fn func()) error {
				return s.pool.Submit(postWork{run: fn})
			}))
		}
	}

	if s.md == nil {
		s.md = clients.NewMetadata(func() config.Endpoint {
			return s.safecfg.Get().Endpoints.Metadata
		})
	}
	if s.data == nil {
		s.data = clients.NewData(func() config.Endpoint {
			return s.safecfg.Get().Endpoints.Data
		})
	}
	return s, nil
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service implementation version.
func (s *Service) Version() string { return s.version }

// State returns the lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// Config returns a snapshot of the effective configuration.
func (s *Service) Config() *config.Config { return s.safecfg.Get() }

// AdminState returns the service administrative state.
func (s *Service) AdminState() models.AdminState {
	return s.adminState.Load().(models.AdminState)
}

// OperatingState returns the service operational state.
func (s *Service) OperatingState() models.OperatingState {
	return s.opState.Load().(models.OperatingState)
}

// cmdline holds the parsed command-line options.
type cmdline struct {
	name        string
	profile     string
	confdir     string
	registry    string
	registrySet bool
}

// parse scans args for the SDK's options. Values may follow the flag or
// be attached with '='. The registry flag's value is optional; all other
// flags require one. Unrecognized arguments are ignored so the driver
// may define its own.
func (c *cmdline) parse(args []string) error {
	take := func(arg, val string) (string, error) {
		if val == "" {
			return "", sdkerr.Newf(sdkerr.CodeInvalidArg, "option %q requires a parameter", arg)
		}
		return val, nil
	}

	i := 0
	for i < len(args) {
		arg := args[i]
		var val string
		attached := false
		if eq := strings.IndexByte(arg, '='); eq >= 0 && strings.HasPrefix(arg, "-") {
			val = arg[eq+1:]
			arg = arg[:eq]
			attached = true
		} else if i+1 < len(args) {
			val = args[i+1]
		}

		consumed := 2
		if attached {
			consumed = 1
		}

		var err error
		switch arg {
		case "-n", "--name":
			c.name, err = take(arg, val)
		case "-p", "--profile":
			c.profile, err = take(arg, val)
		case "-c", "--confdir":
			c.confdir, err = take(arg, val)
		case "-r", "--registry":
			c.registrySet = true
			// The value is optional: a following flag (or nothing)
			// means "consult the environment, then the file".
			if val == "" || (!attached && strings.HasPrefix(val, "-")) {
				consumed = 1
			} else {
				c.registry = val
			}
		default:
			i++
			continue
		}
		if err != nil {
			return err
		}
		i += consumed
	}
	return nil
}
