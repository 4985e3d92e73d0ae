// Package watchlist holds the provision-watcher rules fetched from
// core-metadata. The discovery path consults it to decide which
// discovered devices are auto-admitted.
package watchlist

import (
	"sync"

	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/pkg/nvpairs"
)

// List is a thread-safe collection of watchers keyed by ID.
type List struct {
	mu       sync.RWMutex
	watchers map[string]models.Watcher
}

// New creates an empty watch list.
func New() *List {
	return &List{watchers: make(map[string]models.Watcher)}
}

// Populate adds watchers, skipping entries whose ID is already present
// or empty. Returns the number added.
func (l *List) Populate(ws []models.Watcher) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range ws {
		if w.ID == "" {
			continue
		}
		if _, ok := l.watchers[w.ID]; ok {
			continue
		}
		l.watchers[w.ID] = w
		n++
	}
	return n
}

// Remove deletes a watcher by ID.
func (l *List) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.watchers, id)
}

// Count returns the number of watchers held.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.watchers)
}

// Snapshot returns a copy of all watchers.
func (l *List) Snapshot() []models.Watcher {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Watcher, 0, len(l.watchers))
	for _, w := range l.watchers {
		out = append(out, w)
	}
	return out
}

// Match returns the first unlocked watcher whose identifiers are all
// satisfied by some protocol's properties, or false when none match.
func (l *List) Match(protocols nvpairs.Protocols) (models.Watcher, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, w := range l.watchers {
		if w.AdminState == models.Locked {
			continue
		}
		if matches(w, protocols) {
			return w, true
		}
	}
	return models.Watcher{}, false
}

// matches checks every identifier against every protocol property set.
func matches(w models.Watcher, protocols nvpairs.Protocols) bool {
	if len(w.Identifiers) == 0 {
		return false
	}
	for key, want := range w.Identifiers {
		found := false
		for _, p := range protocols {
			if v, ok := p.Properties.Value(key); ok && v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
