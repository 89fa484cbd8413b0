package extract

// Registry holds the registered backends in priority order. The order
// is fixed at construction by the caller; the registry itself never
// inspects the environment.
type Registry struct {
	byName map[string]Backend
	order  []string
}

// NewRegistry registers backends in fallback-priority order.
// Registering two backends with the same name keeps the first.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{byName: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		if _, dup := r.byName[b.Name()]; dup {
			continue
		}
		r.byName[b.Name()] = b
		r.order = append(r.order, b.Name())
	}
	return r
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Names returns all registered backend names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Available returns the names of backends that currently report
// themselves usable, in priority order.
func (r *Registry) Available() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.byName[name].Available() {
			out = append(out, name)
		}
	}
	return out
}

// Recommended returns the highest-priority available backend name,
// or "" when none is usable.
func (r *Registry) Recommended() string {
	for _, name := range r.order {
		if r.byName[name].Available() {
			return name
		}
	}
	return ""
}
