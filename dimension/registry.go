package dimension

import (
	"strings"
	"sync"

	"molap.evalgo.org/molaperr"
)

// Hooks lets the owning database react to dimension lifecycle events
// without the dimension package importing cube/server (which would
// create an import cycle). Registry only guarantees the hooks run exactly
// once per edit. server.Database installs only OnDelete, which removes
// the cubes built on the deleted dimension; no hook creates, renames or
// deletes sibling attribute dimensions or cubes, per-dimension rights
// cubes, or list-of-dimensions/list-of-cubes meta dimensions.
type Hooks struct {
	OnAdd    func(d *Dimension)
	OnRename func(d *Dimension, oldName string)
	OnDelete func(d *Dimension)
}

// Registry is the database-local, id-and-name-keyed collection of
// dimensions (spec §4.2, component B).
type Registry struct {
	mu     sync.RWMutex
	byID   map[int]*Dimension
	byName map[string]*Dimension
	nextID int
	hooks  Hooks
}

// NewRegistry creates an empty dimension registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int]*Dimension),
		byName: make(map[string]*Dimension),
	}
}

// SetHooks installs the attributed-dimension protocol callbacks.
func (r *Registry) SetHooks(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = h
}

// Create allocates and registers a new dimension, then fires OnAdd.
func (r *Registry) Create(name string, subtype Subtype, purger ValuePurger) (*Dimension, error) {
	r.mu.Lock()
	key := strings.ToLower(name)
	if _, ok := r.byName[key]; ok {
		r.mu.Unlock()
		return nil, molaperr.NameInUse("dimension", name)
	}
	id := r.nextID
	r.nextID++
	d := New(id, name, subtype, purger)
	r.byID[id] = d
	r.byName[key] = d
	hook := r.hooks.OnAdd
	r.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return d, nil
}

// Rename renames a dimension by id, then fires OnRename.
func (r *Registry) Rename(id int, newName string) error {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return molaperr.NotFound("dimension", "")
	}
	if !d.Renamable {
		r.mu.Unlock()
		return molaperr.Unrenamable("dimension", d.Name)
	}
	key := strings.ToLower(newName)
	if existing, ok := r.byName[key]; ok && existing.ID != id {
		r.mu.Unlock()
		return molaperr.NameInUse("dimension", newName)
	}
	oldName := d.Name
	delete(r.byName, strings.ToLower(oldName))
	d.Name = newName
	r.byName[key] = d
	hook := r.hooks.OnRename
	r.mu.Unlock()

	if hook != nil {
		hook(d, oldName)
	}
	return nil
}

// Delete removes a dimension by id, then fires OnDelete.
func (r *Registry) Delete(id int) error {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return molaperr.NotFound("dimension", "")
	}
	if !d.Deletable {
		r.mu.Unlock()
		return molaperr.Undeletable("dimension", d.Name)
	}
	delete(r.byID, id)
	delete(r.byName, strings.ToLower(d.Name))
	hook := r.hooks.OnDelete
	r.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

// Get looks up a dimension by id.
func (r *Registry) Get(id int) (*Dimension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// GetByName looks up a dimension by case-insensitive name.
func (r *Registry) GetByName(name string) (*Dimension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// All returns every registered dimension in no particular order.
func (r *Registry) All() []*Dimension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Dimension, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}
