// Package devmap provides the concurrent in-memory device index. Devices
// are reachable by ID and by name; lookups return ref-counted handles so
// a reader may keep using a device while another goroutine removes it.
// Removal blocks until the last handle is released, which makes map
// operations linearizable per key.
package devmap

import (
	"sync"

	"github.com/c360/devicesdk/models"
)

// entry tracks one device and its outstanding handles.
type entry struct {
	dev     *models.Device
	refs    int
	removed bool
}

// Map indexes devices by unique ID and by name.
type Map struct {
	mu     sync.Mutex
	cond   *sync.Cond
	byID   map[string]*entry
	byName map[string]*entry
}

// New creates an empty device map.
func New() *Map {
	m := &Map{
		byID:   make(map[string]*entry),
		byName: make(map[string]*entry),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Handle is a ref-counted reference to a device. The device remains
// valid, and its profile attached, until Release is called. Handles are
// not safe for use after Release.
type Handle struct {
	m *Map
	e *entry
}

// Device returns the referenced device.
func (h *Handle) Device() *models.Device {
	return h.e.dev
}

// Release drops the reference. Pending removals proceed once the last
// handle is gone.
func (h *Handle) Release() {
	if h == nil || h.e == nil {
		return
	}
	h.m.mu.Lock()
	h.e.refs--
	if h.e.refs == 0 && h.e.removed {
		h.m.cond.Broadcast()
	}
	h.m.mu.Unlock()
	h.e = nil
}

// Insert adds a device. A device already present under the same ID or
// name is left untouched and false is returned. The device must carry a
// resolved profile.
func (m *Map) Insert(dev *models.Device) bool {
	if dev == nil || dev.ID == "" || dev.Name == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[dev.ID]; ok {
		return false
	}
	if _, ok := m.byName[dev.Name]; ok {
		return false
	}
	e := &entry{dev: dev}
	m.byID[dev.ID] = e
	m.byName[dev.Name] = e
	return true
}

// Update replaces the device stored under dev.ID. Readers holding
// handles to the previous value keep their snapshot; new lookups observe
// the replacement. Returns false when the ID is unknown.
func (m *Map) Update(dev *models.Device) bool {
	if dev == nil || dev.ID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[dev.ID]
	if !ok {
		return false
	}
	delete(m.byName, old.dev.Name)
	e := &entry{dev: dev}
	m.byID[dev.ID] = e
	m.byName[dev.Name] = e
	// Outstanding handles on the old entry stay valid; the entry is
	// simply no longer reachable from the map.
	old.removed = true
	if old.refs == 0 {
		m.cond.Broadcast()
	}
	return true
}

// FindByName returns a handle for the named device, or nil when absent.
// The caller must Release the handle.
func (m *Map) FindByName(name string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byName[name]
	if !ok {
		return nil
	}
	e.refs++
	return &Handle{m: m, e: e}
}

// FindByID returns a handle for the device with the given ID, or nil.
func (m *Map) FindByID(id string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil
	}
	e.refs++
	return &Handle{m: m, e: e}
}

// RemoveByID unlinks the device and blocks until every outstanding
// handle has been released. Returns false when the ID is unknown.
func (m *Map) RemoveByID(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	delete(m.byName, e.dev.Name)
	e.removed = true
	for e.refs > 0 {
		m.cond.Wait()
	}
	return true
}

// Populate inserts every device in the list. Devices without a resolved
// profile or with colliding identifiers are skipped; the count of
// inserted devices is returned.
func (m *Map) Populate(devs []*models.Device) int {
	n := 0
	for _, d := range devs {
		if d == nil || d.Profile == nil {
			continue
		}
		if m.Insert(d) {
			n++
		}
	}
	return n
}

// Snapshot returns value copies of every device currently in the map.
// The copies are safe to use without handles.
func (m *Map) Snapshot() []models.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Device, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, *e.dev)
	}
	return out
}

// Count returns the number of devices in the map.
func (m *Map) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Clear removes every device, waiting for outstanding handles as
// RemoveByID does. Devices inserted while Clear waits are untouched.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]*entry, 0, len(m.byID))
	for _, e := range m.byID {
		entries = append(entries, e)
	}
	m.byID = make(map[string]*entry)
	m.byName = make(map[string]*entry)
	for _, e := range entries {
		e.removed = true
	}
	for _, e := range entries {
		for e.refs > 0 {
			m.cond.Wait()
		}
	}
}
