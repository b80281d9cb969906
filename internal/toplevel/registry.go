package toplevel

import "fmt"

// Registry holds every live Handle, keyed by protocol object id. The
// protocol guarantees one announcement and one close per identity, so a
// duplicate insert or an unknown remove is a compositor bug and panics
// rather than being masked.
type Registry struct {
	handles map[uint32]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[uint32]*Handle)}
}

// Insert adds a newly announced handle.
func (r *Registry) Insert(h *Handle) {
	if _, dup := r.handles[h.ID()]; dup {
		panic(fmt.Sprintf("toplevel: duplicate handle id %d", h.ID()))
	}
	r.handles[h.ID()] = h
}

// Remove deletes the handle for id and returns it so the caller can release
// its protocol object.
func (r *Registry) Remove(id uint32) *Handle {
	h, ok := r.handles[id]
	if !ok {
		panic(fmt.Sprintf("toplevel: remove of unknown handle id %d", id))
	}
	delete(r.handles, id)
	return h
}

// ForEach visits every live handle. Iteration order is unspecified.
func (r *Registry) ForEach(fn func(*Handle)) {
	for _, h := range r.handles {
		fn(h)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return len(r.handles)
}
