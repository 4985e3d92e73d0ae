package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/c360/devicesdk/metric"
	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/restserver"
)

// callbackAlert is the notification body core-metadata delivers when an
// entity changes.
type callbackAlert struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// handlePing answers the readiness probe with the service version.
func (s *Service) handlePing(w http.ResponseWriter, _ *http.Request) {
	restserver.WriteText(w, http.StatusOK, s.version)
}

// handleVersion reports service and SDK versions.
func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	restserver.WriteJSON(w, http.StatusOK, map[string]string{
		"version":     s.version,
		"sdk_version": SDKVersion,
	})
}

// handleConfig dumps the effective configuration.
func (s *Service) handleConfig(w http.ResponseWriter, _ *http.Request) {
	restserver.WriteJSON(w, http.StatusOK, s.safecfg.Get())
}

// handleMetrics serves the basic process metrics.
func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	restserver.WriteJSON(w, http.StatusOK, metric.Snapshot())
}

// handleCallback applies metadata's add/update/delete notifications to
// the device map.
func (s *Service) handleCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		restserver.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var alert callbackAlert
	if err := json.Unmarshal(body, &alert); err != nil || alert.ID == "" {
		restserver.WriteError(w, http.StatusBadRequest, "malformed callback")
		return
	}
	if !strings.EqualFold(alert.Type, "DEVICE") {
		// Only device callbacks mutate state here.
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.metrics.CallbacksSeen.WithLabelValues("add").Inc()
		s.callbackAddDevice(w, r, alert.ID)
	case http.MethodPut:
		s.metrics.CallbacksSeen.WithLabelValues("update").Inc()
		s.callbackUpdateDevice(w, r, alert.ID)
	case http.MethodDelete:
		s.metrics.CallbacksSeen.WithLabelValues("remove").Inc()
		s.callbackRemoveDevice(w, alert.ID)
	}
}

func (s *Service) callbackAddDevice(w http.ResponseWriter, r *http.Request, id string) {
	dev, err := s.fetchDevice(r, id)
	if err != nil {
		s.logger.Error("Callback: device fetch failed", "id", id, "error", err)
		restserver.WriteError(w, http.StatusBadGateway, "device fetch failed")
		return
	}
	if dev == nil {
		restserver.WriteError(w, http.StatusNotFound, "no such device")
		return
	}
	if s.devices.Insert(dev) {
		s.metrics.DevicesManaged.Set(float64(s.devices.Count()))
		s.registerAutoEvents(*dev)
		if n, ok := s.driver.(DeviceNotifier); ok {
			n.DeviceAdded(*dev)
		}
		s.logger.Info("Device added via callback", "device", dev.Name)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) callbackUpdateDevice(w http.ResponseWriter, r *http.Request, id string) {
	dev, err := s.fetchDevice(r, id)
	if err != nil {
		s.logger.Error("Callback: device fetch failed", "id", id, "error", err)
		restserver.WriteError(w, http.StatusBadGateway, "device fetch failed")
		return
	}
	if dev == nil {
		restserver.WriteError(w, http.StatusNotFound, "no such device")
		return
	}
	if s.devices.Update(dev) {
		if n, ok := s.driver.(DeviceNotifier); ok {
			n.DeviceUpdated(*dev)
		}
		s.logger.Info("Device updated via callback", "device", dev.Name)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) callbackRemoveDevice(w http.ResponseWriter, id string) {
	h := s.devices.FindByID(id)
	if h == nil {
		restserver.WriteError(w, http.StatusNotFound, "no such device")
		return
	}
	dev := *h.Device()
	h.Release()

	s.cancelAutoEvents(dev.Name)
	s.devices.RemoveByID(id)
	s.metrics.DevicesManaged.Set(float64(s.devices.Count()))
	if n, ok := s.driver.(DeviceNotifier); ok {
		n.DeviceRemoved(dev)
	}
	s.logger.Info("Device removed via callback", "device", dev.Name)
	w.WriteHeader(http.StatusOK)
}

// fetchDevice pulls a device record and resolves its profile.
func (s *Service) fetchDevice(r *http.Request, id string) (*models.Device, error) {
	dev, err := s.md.GetDevice(r.Context(), id)
	if err != nil || dev == nil {
		return dev, err
	}
	if dev.Profile == nil {
		p, err := s.md.GetProfile(r.Context(), dev.ProfileName)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		dev.Profile = p
	}
	return dev, nil
}

// handleDevice serves the device command interface:
// GET/PUT /api/v1/device/{name}/{command}.
func (s *Service) handleDevice(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/device/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		restserver.WriteError(w, http.StatusBadRequest, "expected /api/v1/device/{name}/{command}")
		return
	}
	name, command := parts[0], parts[1]

	if s.AdminState() == models.Locked {
		restserver.WriteError(w, http.StatusLocked, "service is locked")
		return
	}

	h := s.devices.FindByName(name)
	if h == nil {
		restserver.WriteError(w, http.StatusNotFound, "no such device")
		return
	}
	dev := *h.Device()
	h.Release()

	if dev.AdminState == models.Locked {
		restserver.WriteError(w, http.StatusLocked, "device is locked")
		return
	}
	if dev.OperatingState == models.Disabled {
		restserver.WriteError(w, http.StatusLocked, "device is disabled")
		return
	}

	cmd, ok := dev.Profile.FindCommand(command)
	if !ok {
		restserver.WriteError(w, http.StatusNotFound, "no such command")
		return
	}

	switch r.Method {
	case http.MethodGet:
		reader, ok := s.driver.(CommandReader)
		if !ok {
			restserver.WriteError(w, http.StatusNotImplemented, "driver does not serve reads")
			return
		}
		values, err := reader.ReadCommands(dev.Name, dev.Protocols, cmd.Resources)
		if err != nil {
			s.logger.Error("Device read failed", "device", dev.Name, "command", cmd.Name, "error", err)
			restserver.WriteError(w, http.StatusInternalServerError, "device read failed")
			return
		}
		s.PostReadings(dev.Name, cmd.Name, values)
		restserver.WriteJSON(w, http.StatusOK, map[string]any{
			"device":   dev.Name,
			"command":  cmd.Name,
			"readings": values,
		})
	case http.MethodPut, http.MethodPost:
		writer, ok := s.driver.(CommandWriter)
		if !ok {
			restserver.WriteError(w, http.StatusNotImplemented, "driver does not serve writes")
			return
		}
		defer r.Body.Close()
		var values []models.CommandValue
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			restserver.WriteError(w, http.StatusBadRequest, "malformed command body")
			return
		}
		if err := writer.WriteCommands(dev.Name, dev.Protocols, values); err != nil {
			s.logger.Error("Device write failed", "device", dev.Name, "command", cmd.Name, "error", err)
			restserver.WriteError(w, http.StatusInternalServerError, "device write failed")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// handleDiscovery triggers a driver discovery run. Runs are serialized:
// a request arriving while one is active is turned away.
func (s *Service) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	disco, ok := s.driver.(Discoverer)
	if !ok {
		restserver.WriteError(w, http.StatusNotImplemented, "driver does not support discovery")
		return
	}
	if s.AdminState() == models.Locked {
		restserver.WriteError(w, http.StatusLocked, "service is locked")
		return
	}
	if !s.discoMu.TryLock() {
		restserver.WriteError(w, http.StatusServiceUnavailable, "discovery already running")
		return
	}
	go func() {
		defer s.discoMu.Unlock()
		disco.Discover()
	}()
	w.WriteHeader(http.StatusAccepted)
}

// Watchers exposes the provision watch list to discovery
// implementations deciding whether to admit a found device.
func (s *Service) Watchers() []models.Watcher {
	return s.watchers.Snapshot()
}
