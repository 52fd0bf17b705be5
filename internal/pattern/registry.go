package pattern

import (
	"log/slog"
	"sync"
)

// Registry owns the set of known detectors and which are enabled. Enumeration
// order is registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

type entry struct {
	det     Detector
	enabled bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a detector, enabled by default. A name collision warns and
// overwrites the existing registration, keeping its position in the order.
func (r *Registry) Register(d Detector) {
	name := d.Name()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		slog.Warn("[pattern] overwriting registered detector", "name", name)
	} else {
		r.order = append(r.order, name)
	}
	r.entries[name] = &entry{det: d, enabled: true}
}

// Unregister removes a detector entirely. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Enable marks a registered detector active. Returns false if unknown.
func (r *Registry) Enable(name string) bool {
	return r.setEnabled(name, true)
}

// Disable keeps the registration but removes the detector from the active
// set. Returns false if unknown.
func (r *Registry) Disable(name string) bool {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, v bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return false
	}
	e.enabled = v
	return true
}

// Active returns the enabled detectors in registration order.
func (r *Registry) Active() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Detector, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e != nil && e.enabled {
			out = append(out, e.det)
		}
	}
	return out
}

// All returns every registered detector in registration order.
func (r *Registry) All() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Detector, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e != nil {
			out = append(out, e.det)
		}
	}
	return out
}

// Has reports whether a detector is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// IsEnabled reports whether a detector is registered and active.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.enabled
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = make(map[string]*entry)
}
