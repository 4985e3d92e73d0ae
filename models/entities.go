// Package models defines the platform entities exchanged with
// core-metadata and core-data: devices, profiles, addressables, the
// device service record, provision watchers, and events.
package models

// AdminState locks or unlocks an entity for administrative purposes.
type AdminState string

// Admin states.
const (
	Locked   AdminState = "LOCKED"
	Unlocked AdminState = "UNLOCKED"
)

// OperatingState reflects whether an entity is in service.
type OperatingState string

// Operating states.
const (
	Enabled  OperatingState = "ENABLED"
	Disabled OperatingState = "DISABLED"
)

// Addressable describes a network endpoint other services can call.
type Addressable struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Method   string `json:"method"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Path     string `json:"path"`
	Origin   int64  `json:"origin"`
}

// DeviceService is the metadata record describing this process.
type DeviceService struct {
	ID             string         `json:"id,omitempty"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Labels         []string       `json:"labels,omitempty"`
	AdminState     AdminState     `json:"admin_state"`
	OperatingState OperatingState `json:"operating_state"`
	Addressable    Addressable    `json:"addressable"`
	Created        int64          `json:"created,omitempty"`
	Modified       int64          `json:"modified,omitempty"`
}

// Watcher is a provision-watcher rule describing which discovered
// devices should be auto-admitted.
type Watcher struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	ProfileName string            `json:"profile_name"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	Blocking    bool              `json:"blocking,omitempty"`
	AdminState  AdminState        `json:"admin_state,omitempty"`
}
