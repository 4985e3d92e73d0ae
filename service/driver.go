package service

import (
	"log/slog"

	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/pkg/nvpairs"
)

// Driver is the protocol implementation behind a device service. The
// lifecycle engine initializes it during bring-up and stops it during
// shutdown; everything between is the driver pushing readings through
// Service.PostReadings.
type Driver interface {
	// Initialize receives the service logger and the opaque driver
	// configuration. A non-nil error terminates bring-up with
	// DRIVER_UNSTART.
	Initialize(logger *slog.Logger, driverConfig nvpairs.List) error
	// Stop shuts the driver down. force indicates the caller will not
	// wait for orderly protocol teardown.
	Stop(force bool) error
}

// CommandReader is implemented by drivers that serve read commands; the
// device command surface and autoevents use it.
type CommandReader interface {
	ReadCommands(deviceName string, protocols nvpairs.Protocols, resources []string) ([]models.CommandValue, error)
}

// CommandWriter is implemented by drivers that serve write commands.
type CommandWriter interface {
	WriteCommands(deviceName string, protocols nvpairs.Protocols, values []models.CommandValue) error
}

// Discoverer is implemented by drivers that support triggered
// discovery. Runs are serialized by the service's discovery mutex.
type Discoverer interface {
	Discover()
}

// DeviceNotifier is implemented by drivers that want add/update/remove
// notifications when metadata callbacks mutate the device map.
type DeviceNotifier interface {
	DeviceAdded(dev models.Device)
	DeviceUpdated(dev models.Device)
	DeviceRemoved(dev models.Device)
}
