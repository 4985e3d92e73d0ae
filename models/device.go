package models

import "github.com/c360/devicesdk/pkg/nvpairs"

// Device is a managed south-bound endpoint. Every device held by the
// service has a resolved Profile.
type Device struct {
	ID             string            `json:"id,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	AdminState     AdminState        `json:"admin_state"`
	OperatingState OperatingState    `json:"operating_state"`
	Protocols      nvpairs.Protocols `json:"protocols,omitempty"`
	Labels         []string          `json:"labels,omitempty"`
	ProfileName    string            `json:"profile_name"`
	Profile        *DeviceProfile    `json:"profile,omitempty"`
	AutoEvents     []AutoEvent       `json:"auto_events,omitempty"`
	Origin         int64             `json:"origin,omitempty"`
}

// AutoEvent schedules unattended reads of a resource. Schedule is either
// a duration ("10s") or a cron expression ("*/5 * * * *").
type AutoEvent struct {
	Resource string `json:"resource"`
	Schedule string `json:"schedule"`
	OnChange bool   `json:"on_change,omitempty"`
}

// DeviceProfile is the schema describing a device's resources and the
// commands derived from them.
type DeviceProfile struct {
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name"`
	Manufacturer string           `json:"manufacturer,omitempty"`
	Model        string           `json:"model,omitempty"`
	Labels       []string         `json:"labels,omitempty"`
	Resources    []DeviceResource `json:"resources,omitempty"`
	Commands     []Command        `json:"commands,omitempty"`
}

// DeviceResource declares a single named value a device exposes.
type DeviceResource struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Attributes  nvpairs.List       `json:"attributes,omitempty"`
	Properties  ResourceProperties `json:"properties"`
}

// ResourceProperties carries the value type and the optional numeric
// transform parameters applied when data-transform is enabled.
type ResourceProperties struct {
	ValueType string   `json:"value_type"`
	ReadWrite string   `json:"read_write,omitempty"`
	Units     string   `json:"units,omitempty"`
	Scale     *float64 `json:"scale,omitempty"`
	Offset    *float64 `json:"offset,omitempty"`
	Base      *float64 `json:"base,omitempty"`
}

// Command names a set of resources read or written together. Commands
// are derived from resources: a profile with no explicit commands gets
// one single-resource command per resource.
type Command struct {
	Name      string   `json:"name"`
	Resources []string `json:"resources"`
}

// FindCommand resolves a command by name. When no declared command
// matches, a resource whose name matches yields an implicit
// single-resource command, preserving the rule that command definitions
// derive from resource definitions.
func (p *DeviceProfile) FindCommand(name string) (Command, bool) {
	if p == nil || name == "" {
		return Command{}, false
	}
	for _, c := range p.Commands {
		if c.Name == name {
			return c, true
		}
	}
	for _, r := range p.Resources {
		if r.Name == name {
			return Command{Name: r.Name, Resources: []string{r.Name}}, true
		}
	}
	return Command{}, false
}

// FindResource looks up a resource definition by name.
func (p *DeviceProfile) FindResource(name string) (DeviceResource, bool) {
	if p == nil {
		return DeviceResource{}, false
	}
	for _, r := range p.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return DeviceResource{}, false
}
