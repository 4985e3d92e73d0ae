package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/c360/devicesdk/clients"
	"github.com/c360/devicesdk/config"
	sdkerr "github.com/c360/devicesdk/errors"
	"github.com/c360/devicesdk/logging"
	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/natsclient"
	"github.com/c360/devicesdk/pkg/nvpairs"
	"github.com/c360/devicesdk/registry"
	"github.com/c360/devicesdk/restserver"
)

// CallbackPath is the metadata callback route; it is the first handler
// installed so create callbacks are deliverable during bring-up.
const CallbackPath = "/api/v1/callback"

// Start runs the bring-up sequence. On error the service is in
// StateFailed and must be freed, not started again.
func (s *Service) Start(ctx context.Context) error {
	s.startTime = time.Now()
	s.setState(StateConfiguring)

	if err := s.pool.Start(ctx); err != nil {
		return s.fail(err)
	}

	resolver := &config.Resolver{
		Name:        s.name,
		Profile:     s.profile,
		ConfDir:     s.confdir,
		RegistryURL: s.regURL,
		UseRegistry: s.useRegistry,
		Connect:     s.regConnect,
		LookupEnv:   s.lookupEnv,
		OnUpdate:    s.updateConfig,
		StopWatch:   &s.stopConfig,
		Logger:      s.logger,
	}
	resolved, err := resolver.Resolve(ctx)
	if err != nil {
		return s.fail(err)
	}
	cfg := resolved.Config
	if cfg.Device.ProfilesDir == "" {
		cfg.Device.ProfilesDir = s.confdir
	}
	s.safecfg.Set(cfg)
	if rc, ok := resolved.Registry.(registry.Client); ok {
		s.reg = rc
	}

	if err := s.configureLogging(ctx, cfg); err != nil {
		return s.fail(err)
	}

	s.logger.Info("Starting device service", "name", s.name, "version", s.version)
	s.logger.Info("Device SDK for Go", "sdk_version", SDKVersion)
	s.logger.Debug("Service configuration follows:")
	for _, p := range resolved.Pairs {
		s.logger.Debug("config", p.Name, p.Value)
	}

	if err := s.startConfigured(ctx, cfg, resolved.File); err != nil {
		return s.fail(err)
	}

	s.setState(StateServing)
	s.logger.Info("Service started", "elapsed", time.Since(s.startTime).Round(time.Millisecond))
	s.logger.Info("Listening", "port", s.server.Port())
	return nil
}

// configureLogging attaches the file sink and, when enabled, the remote
// sink. Remote logging requires support-logging to answer its ping;
// failure there aborts bring-up.
func (s *Service) configureLogging(ctx context.Context, cfg *config.Config) error {
	if s.fanout == nil {
		return nil // custom logger supplied; leave it alone
	}
	level := logging.ParseLevel(cfg.Logging.Level)

	var out []slog.Handler
	if cfg.Logging.File != "" {
		fh, err := logging.NewFileHandler(cfg.Logging.File, level)
		if err != nil {
			return err
		}
		out = append(out, fh)
	} else {
		out = append(out, logging.NewConsoleHandler(level))
	}

	if cfg.Logging.EnableRemote {
		err := clients.PingEndpoint(ctx, s.logger, "support-logging",
			cfg.Endpoints.Logging, cfg.Service.ConnectRetries,
			time.Duration(cfg.Service.Timeout)*time.Second)
		if err != nil {
			return err
		}
		lc := clients.NewLogging(func() config.Endpoint {
			return s.safecfg.Get().Endpoints.Logging
		})
		out = append(out, logging.NewRemoteHandler(s.name, level, lc))
	}

	s.fanout.SetSinks(out...)
	return nil
}

// startConfigured is the bring-up state machine from dependency pings to
// registry registration. The order here is strict.
func (s *Service) startConfigured(ctx context.Context, cfg *config.Config, file *config.File) error {
	myhost := cfg.Service.Host
	if myhost == "" {
		if hn, err := os.Hostname(); err == nil {
			myhost = hn
		} else {
			myhost = "localhost"
		}
	}

	s.setState(StateBringup)
	pingDelay := time.Duration(cfg.Service.Timeout) * time.Second

	// Wait for data and metadata to be available.
	if err := clients.PingEndpoint(ctx, s.logger, "core-data", cfg.Endpoints.Data,
		cfg.Service.ConnectRetries, pingDelay); err != nil {
		return err
	}
	if err := clients.PingEndpoint(ctx, s.logger, "core-metadata", cfg.Endpoints.Metadata,
		cfg.Service.ConnectRetries, pingDelay); err != nil {
		return err
	}

	if err := s.reconcileServiceRecord(ctx, cfg, myhost); err != nil {
		return err
	}

	s.setState(StateLoading)

	// Profiles go up before devices so device imports resolve.
	if err := s.uploadProfiles(ctx, cfg.Device.ProfilesDir); err != nil {
		return err
	}

	devs, err := s.md.GetDevices(ctx, s.name)
	if err != nil {
		s.logger.Error("Unable to retrieve device list from metadata")
		return err
	}
	if err := s.importDevices(ctx, devs); err != nil {
		return err
	}

	// The REST server starts now so metadata's create callbacks are
	// deliverable while configured devices are processed. Only the
	// callback handler is installed until the driver is up.
	s.server = restserver.New(cfg.Service.Port, s.logger)
	if err := s.server.Start(); err != nil {
		return err
	}
	s.server.Register(CallbackPath, []string{"PUT", "POST", "DELETE"}, s.handleCallback)

	if file != nil {
		if err := s.processConfiguredDevices(ctx, file.DeviceList); err != nil {
			return err
		}
	}

	if err := s.driver.Initialize(s.logger, cfg.Driver); err != nil {
		s.logger.Error("Protocol driver initialization failed", "error", err)
		return sdkerr.New(sdkerr.CodeDriverUnstart, "protocol driver initialization failed")
	}

	// Watcher fetch failures are logged, never fatal.
	if ws, err := s.md.GetWatchers(ctx, s.name); err != nil {
		s.logger.Error("Unable to retrieve provision watchers from metadata", "error", err)
	} else if len(ws) > 0 {
		s.logger.Info("Added provision watchers from metadata", "count", s.watchers.Populate(ws))
	}

	if cfg.MessageBus.Type == "nats" && cfg.MessageBus.Host != "" {
		s.bus = natsclient.New(fmt.Sprintf("nats://%s:%d", cfg.MessageBus.Host, cfg.MessageBus.Port),
			natsclient.WithLogger(s.logger))
		if err := s.bus.Connect(ctx); err != nil {
			// The REST data path remains; the bus is best-effort.
			s.logger.Warn("Message bus unavailable, events go to core-data", "error", err)
			s.bus = nil
		}
	}

	s.sched.Start()

	// Remaining control surface.
	s.server.Register("/api/v1/device/", []string{"GET", "PUT", "POST"}, s.handleDevice)
	s.server.Register("/api/v1/discovery", []string{"POST"}, s.handleDiscovery)
	s.server.Register("/api/v1/metrics", []string{"GET"}, s.handleMetrics)
	s.server.Register("/metrics", []string{"GET"}, s.metrics.PromHandler().ServeHTTP)
	s.server.Register("/api/v1/config", []string{"GET"}, s.handleConfig)
	s.server.Register("/api/version", []string{"GET"}, s.handleVersion)
	s.server.Register("/api/v1/ping", []string{"GET"}, s.handlePing)

	// Registration is last; its failure is fatal.
	if s.reg != nil {
		err := s.reg.RegisterService(ctx, s.name, myhost, s.server.Port(), cfg.Service.CheckInterval)
		if err != nil {
			s.logger.Error("Unable to register service in registry", "error", err)
			return err
		}
	}

	if cfg.Service.StartupMsg != "" {
		s.logger.Info(cfg.Service.StartupMsg)
	}
	return nil
}

// reconcileServiceRecord ensures metadata has a current DeviceService
// record for this name. Host or port drift updates the addressable;
// other fields are never reconciled.
func (s *Service) reconcileServiceRecord(ctx context.Context, cfg *config.Config, myhost string) error {
	ds, err := s.md.GetDeviceService(ctx, s.name)
	if err != nil {
		s.logger.Error("get_deviceservice failed")
		return err
	}

	if ds != nil {
		if ds.Addressable.Port != cfg.Service.Port || ds.Addressable.Address != myhost {
			s.logger.Info("Updating service endpoint in metadata")
			addr := ds.Addressable
			addr.Port = cfg.Service.Port
			addr.Address = myhost
			if err := s.md.UpdateAddressable(ctx, addr); err != nil {
				s.logger.Error("update_addressable failed")
				return err
			}
		}
		return nil
	}

	millis := models.NowMillis()
	addr, err := s.md.GetAddressable(ctx, s.name)
	if err != nil {
		s.logger.Error("get_addressable failed")
		return err
	}
	if addr == nil {
		addr = &models.Addressable{
			Name:     s.name,
			Method:   "POST",
			Protocol: "HTTP",
			Address:  myhost,
			Port:     cfg.Service.Port,
			Path:     CallbackPath,
			Origin:   millis,
		}
		id, err := s.md.CreateAddressable(ctx, *addr)
		if err != nil {
			s.logger.Error("create_addressable failed")
			return err
		}
		addr.ID = id
	}

	record := models.DeviceService{
		Name:           s.name,
		OperatingState: models.Enabled,
		AdminState:     models.Unlocked,
		Labels:         cfg.Service.Labels,
		Addressable:    *addr,
		Created:        millis,
	}
	if _, err := s.md.CreateDeviceService(ctx, record); err != nil {
		s.logger.Error("Unable to create device service in metadata")
		return err
	}
	return nil
}

// uploadProfiles pushes every profile definition found in dir to
// metadata, skipping names metadata already has.
func (s *Service) uploadProfiles(ctx context.Context, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var p models.DeviceProfile
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Error("Skipping unparseable profile", "file", path, "error", err)
			continue
		}
		if p.Name == "" {
			s.logger.Error("Skipping profile with no name", "file", path)
			continue
		}
		existing, err := s.md.GetProfile(ctx, p.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := s.md.CreateProfile(ctx, p); err != nil {
			return err
		}
		s.logger.Info("Uploaded device profile", "profile", p.Name)
	}
	return nil
}

// importDevices resolves profiles and fills the device map from the
// metadata device list.
func (s *Service) importDevices(ctx context.Context, devs []models.Device) error {
	ptrs := make([]*models.Device, 0, len(devs))
	for i := range devs {
		dev := devs[i]
		if dev.Profile == nil {
			p, err := s.md.GetProfile(ctx, dev.ProfileName)
			if err != nil {
				return err
			}
			if p == nil {
				s.logger.Error("Device has no resolvable profile, skipping",
					"device", dev.Name, "profile", dev.ProfileName)
				continue
			}
			dev.Profile = p
		}
		ptrs = append(ptrs, &dev)
	}
	n := s.devices.Populate(ptrs)
	s.metrics.DevicesManaged.Set(float64(s.devices.Count()))
	s.logger.Info("Devices loaded from metadata", "count", n)
	for _, d := range ptrs {
		s.registerAutoEvents(*d)
	}
	return nil
}

// processConfiguredDevices upserts the file's DeviceList entries into
// metadata; absent devices are created there and land in the map either
// through the create callback or directly here.
func (s *Service) processConfiguredDevices(ctx context.Context, entries []config.DeviceEntry) error {
	for _, e := range entries {
		if h := s.devices.FindByName(e.Name); h != nil {
			h.Release()
			continue
		}
		profile, err := s.md.GetProfile(ctx, e.Profile)
		if err != nil {
			return err
		}
		if profile == nil {
			s.logger.Error("Configured device names unknown profile, skipping",
				"device", e.Name, "profile", e.Profile)
			continue
		}
		dev := models.Device{
			Name:           e.Name,
			Description:    e.Description,
			AdminState:     models.Unlocked,
			OperatingState: models.Enabled,
			Protocols:      e.Protocols,
			Labels:         e.Labels,
			ProfileName:    e.Profile,
			AutoEvents:     e.AutoEvents,
			Origin:         models.NowMillis(),
		}
		id, err := s.md.AddDevice(ctx, dev)
		if err != nil {
			return err
		}
		if id == "" {
			id = uuid.NewString()
		}
		dev.ID = id
		dev.Profile = profile
		if s.devices.Insert(&dev) {
			s.registerAutoEvents(dev)
			s.logger.Info("Added configured device", "device", dev.Name)
		}
	}
	s.metrics.DevicesManaged.Set(float64(s.devices.Count()))
	return nil
}

// updateConfig is the registry watch callback: it replaces the mutable
// fields of the effective configuration in place.
func (s *Service) updateConfig(pairs nvpairs.List) {
	s.logger.Info("Configuration update received from registry")
	s.safecfg.Update(func(c *config.Config) {
		c.ApplyPairs(pairs)
	})
}

// Stop terminates the service. Shutdown never fails; individual errors
// are logged and the sequence continues.
func (s *Service) Stop(force bool) {
	s.logger.Debug("Stop device service")
	s.setState(StateStopping)
	s.stopConfig.Store(true)

	if s.sched != nil {
		s.sched.Stop()
	}
	if s.server != nil {
		s.server.Stop(5 * time.Second)
	}
	if err := s.driver.Stop(force); err != nil {
		s.logger.Error("Driver stop reported failure", "error", err)
	}
	s.devices.Clear()
	s.metrics.DevicesManaged.Set(0)

	if s.reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.reg.DeregisterService(ctx, s.name); err != nil {
			s.logger.Error("Unable to deregister service from registry", "error", err)
		}
		cancel()
	}

	// Drain outstanding event posts before declaring the stop complete.
	if err := s.pool.Stop(0); err != nil {
		s.logger.Error("Worker pool drain failed", "error", err)
	}

	s.setState(StateStopped)
	s.logger.Info("Stopped device service")
}

// Free releases remaining resources. The service must be stopped.
func (s *Service) Free() {
	if s == nil {
		return
	}
	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
	if s.reg != nil {
		s.reg.Close()
		s.reg = nil
	}
}

// fail records a terminal bring-up error.
func (s *Service) fail(err error) error {
	s.setState(StateFailed)
	return err
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.ServiceStatus.Set(float64(st))
}
