package service

import (
	"context"

	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/transform"
)

// postWork is one worker-pool item: either a cooked event to post or an
// arbitrary deferred call (used for config-watch dispatch).
type postWork struct {
	event *models.CookedEvent
	run   func()
}

// processPost executes one work item on a pool worker.
func (s *Service) processPost(ctx context.Context, w postWork) error {
	if w.run != nil {
		w.run()
		return nil
	}
	if w.event == nil {
		return nil
	}

	if s.bus != nil {
		topic := s.safecfg.Get().MessageBus.Topic
		if topic == "" {
			topic = "events"
		}
		if err := s.bus.Publish(topic+"."+w.event.Device, w.event.Payload); err == nil {
			s.metrics.EventsPosted.WithLabelValues("bus").Inc()
			return nil
		}
		// Bus failure falls through to the REST path.
	}

	if err := s.data.AddEvent(ctx, w.event); err != nil {
		s.metrics.PostErrors.Inc()
		s.logger.Error("Event post failed", "device", w.event.Device, "error", err)
		return err
	}
	s.metrics.EventsPosted.WithLabelValues("rest").Inc()
	return nil
}

// PostReadings accepts raw readings from the driver for one device
// resource and enqueues at most one posting work item. Unknown devices
// or resources are logged and swallowed.
func (s *Service) PostReadings(deviceName, resourceName string, values []models.CommandValue) {
	h := s.devices.FindByName(deviceName)
	if h == nil {
		s.logger.Error("Post readings: no such device", "device", deviceName)
		return
	}
	profile := h.Device().Profile
	h.Release()

	cmd, ok := profile.FindCommand(resourceName)
	if !ok {
		s.logger.Error("Post readings: no such resource", "resource", resourceName)
		return
	}

	cfg := s.safecfg.Get()
	cooked, err := transform.ProcessEvent(deviceName, cmd, profile, values, cfg.Device.DataTransform)
	if err != nil {
		s.logger.Error("Post readings: event processing failed", "device", deviceName, "error", err)
		return
	}

	s.metrics.ReadingsTaken.WithLabelValues(deviceName).Add(float64(len(values)))
	if err := s.pool.Submit(postWork{event: cooked}); err != nil {
		s.logger.Error("Post readings: worker pool rejected event", "device", deviceName, "error", err)
	}
}

// registerAutoEvents schedules the device's autoevents. Drivers that do
// not implement CommandReader get a log line instead of tasks.
func (s *Service) registerAutoEvents(dev models.Device) {
	if len(dev.AutoEvents) == 0 {
		return
	}
	reader, ok := s.driver.(CommandReader)
	if !ok {
		s.logger.Warn("Driver does not serve reads; autoevents ignored", "device", dev.Name)
		return
	}

	var ids []string
	for _, ae := range dev.AutoEvents {
		ae := ae
		name := dev.Name
		protocols := dev.Protocols.Clone()
		id, err := s.sched.Schedule(name+"/"+ae.Resource, ae.Schedule, func() {
			values, err := reader.ReadCommands(name, protocols, []string{ae.Resource})
			if err != nil {
				s.logger.Error("Autoevent read failed", "device", name,
					"resource", ae.Resource, "error", err)
				return
			}
			s.PostReadings(name, ae.Resource, values)
		})
		if err != nil {
			s.logger.Error("Autoevent schedule rejected", "device", dev.Name,
				"resource", ae.Resource, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		s.aeMu.Lock()
		s.autoevents[dev.Name] = append(s.autoevents[dev.Name], ids...)
		s.aeMu.Unlock()
	}
}

// cancelAutoEvents removes a device's scheduled tasks.
func (s *Service) cancelAutoEvents(deviceName string) {
	s.aeMu.Lock()
	ids := s.autoevents[deviceName]
	delete(s.autoevents, deviceName)
	s.aeMu.Unlock()
	for _, id := range ids {
		s.sched.Cancel(id)
	}
}
