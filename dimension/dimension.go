// Package dimension implements the per-dimension element graph (spec §4.1,
// component A) and the dimension registry's subtype dispatch (spec §4.2,
// component B). Grounded on the teacher's statemanager.Manager for the
// owning-mutex-plus-map shape (statemanager/manager.go) and on
// original_source/molap/server/Source/Olap/BasicDimension.h for the element
// graph operations it generalizes.
package dimension

import (
	"fmt"
	"strings"
	"sync"

	"molap.evalgo.org/molaperr"
)

// Subtype selects the attributed-dimension policy of spec §4.2.
type Subtype int

const (
	SubtypeNormal Subtype = iota
	SubtypeAttribute
	SubtypeRights
	SubtypeAlias
	SubtypeCube
	SubtypeConfiguration
	SubtypeSubsetView
	SubtypeUserInfo
)

// ValuePurger is implemented by whatever owns the cubes built on this
// dimension. PurgeElement is invoked synchronously from Delete so that
// every cube cell mentioning the deleted element id disappears in the
// same edit (spec §4.1 "cascades a value purge callback"). server.Database,
// the implementation in this repository, removes cells only; rules whose
// area or expression mention the element are left in place.
type ValuePurger interface {
	PurgeElement(dimensionID, elementID int)
}

// Dimension owns one element graph plus its derived caches.
type Dimension struct {
	mu sync.RWMutex

	ID      int
	Name    string
	Subtype Subtype

	Deletable           bool
	Renamable            bool
	StructurallyMutable bool

	byID     map[int]*Element
	byName   map[string]*Element // lower-cased name -> element
	order    []int               // element ids ordered by Position, dense
	nextID   int

	purger ValuePurger

	caches  derivedCaches
	protect map[string]bool // names that Delete refuses, case-insensitive
}

// New creates an empty dimension. purger may be nil until the owning
// database wires cube cascades in (see server.Database.CreateDimension).
func New(id int, name string, subtype Subtype, purger ValuePurger) *Dimension {
	d := &Dimension{
		ID:                  id,
		Name:                name,
		Subtype:             subtype,
		Deletable:           true,
		Renamable:           true,
		StructurallyMutable: true,
		byID:                make(map[int]*Element),
		byName:              make(map[string]*Element),
		purger:              purger,
		protect:             make(map[string]bool),
	}
	d.caches.invalidate()
	return d
}

// Protect marks an element name (case-insensitively) as non-deletable,
// e.g. the system dimensions' "admin" user/group/role (spec §4.1).
func (d *Dimension) Protect(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protect[strings.ToLower(name)] = true
}

func (d *Dimension) coerceKind(kind Kind) (Kind, error) {
	switch d.Subtype {
	case SubtypeAttribute:
		if kind == KindConsolidated {
			return 0, molaperr.Internal("attribute dimension %q cannot hold a consolidated element", d.Name)
		}
	case SubtypeRights, SubtypeSubsetView, SubtypeConfiguration:
		kind = KindString
	}
	return kind, nil
}

// Add creates a new base or consolidated element (spec §4.1 "add").
func (d *Dimension) Add(name string, kind Kind) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := d.byName[key]; ok {
		return 0, molaperr.NameInUse("element", name)
	}

	kind, err := d.coerceKind(kind)
	if err != nil {
		return 0, err
	}

	id := d.nextID
	d.nextID++
	position := len(d.order)

	el := newElement(id, name, position, kind)
	d.byID[id] = el
	d.byName[key] = el
	d.order = append(d.order, id)

	d.caches.invalidate()
	return id, nil
}

// Delete removes an element, its child/parent edges, and cascades a value
// purge to every cube on this dimension (spec §4.1 "delete").
func (d *Dimension) Delete(id int) error {
	d.mu.Lock()
	el, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return molaperr.NotFound("element", fmt.Sprintf("#%d", id))
	}
	if d.protect[strings.ToLower(el.Name)] {
		d.mu.Unlock()
		return molaperr.Undeletable("element", el.Name)
	}

	// remove as child from every parent
	for p := range el.parents {
		if parent, ok := d.byID[p]; ok {
			if i, found := parent.hasChild(id); found {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			}
		}
	}
	// remove as parent from every child
	for _, c := range el.Children {
		if child, ok := d.byID[c.ID]; ok {
			delete(child.parents, id)
		}
	}

	delete(d.byID, id)
	delete(d.byName, strings.ToLower(el.Name))
	d.removeFromOrder(id)
	d.renumberPositions()
	d.caches.invalidate()
	purger := d.purger
	dimID := d.ID
	d.mu.Unlock()

	if purger != nil {
		purger.PurgeElement(dimID, id)
	}
	return nil
}

func (d *Dimension) removeFromOrder(id int) {
	for i, e := range d.order {
		if e == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func (d *Dimension) renumberPositions() {
	for pos, id := range d.order {
		d.byID[id].Position = pos
	}
}

// Rename changes an element's display name (spec §4.1 "rename").
func (d *Dimension) Rename(id int, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.byID[id]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", id))
	}
	key := strings.ToLower(newName)
	if existing, ok := d.byName[key]; ok && existing.ID != id {
		return molaperr.NameInUse("element", newName)
	}
	delete(d.byName, strings.ToLower(el.Name))
	el.Name = newName
	d.byName[key] = el
	return nil
}

// ChangeKind switches an element's kind, fixing up the graph when moving
// to/from consolidated (spec §4.1 "changeKind").
func (d *Dimension) ChangeKind(id int, newKind Kind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.byID[id]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", id))
	}
	newKind, err := d.coerceKind(newKind)
	if err != nil {
		return err
	}
	if el.Kind == KindConsolidated && newKind != KindConsolidated {
		for _, c := range el.Children {
			if child, ok := d.byID[c.ID]; ok {
				delete(child.parents, id)
			}
		}
		el.Children = nil
	}
	el.Kind = newKind
	d.caches.invalidate()
	return nil
}

// AddChildren appends or merges (child, weight) edges under parent,
// rejecting edits that would create a cycle (spec §4.1 "addChildren", I1).
func (d *Dimension) AddChildren(parent int, children []Child) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.byID[parent]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", parent))
	}
	for _, c := range children {
		if _, ok := d.byID[c.ID]; !ok {
			return molaperr.NotFound("element", fmt.Sprintf("#%d", c.ID))
		}
		if c.ID == parent || d.reaches(c.ID, parent) {
			return molaperr.Internal("adding child #%d to #%d would create a cycle", c.ID, parent)
		}
	}
	p.Kind = KindConsolidated
	for _, c := range children {
		if i, found := p.hasChild(c.ID); found {
			p.Children[i].Weight = c.Weight
		} else {
			p.Children = append(p.Children, c)
			d.byID[c.ID].parents[parent] = struct{}{}
		}
	}
	d.caches.invalidate()
	return nil
}

// reaches reports whether from can reach to by following child edges
// (used to reject cycles: a cycle forms iff `to` can already reach the
// element we're about to make its parent).
func (d *Dimension) reaches(from, to int) bool {
	visited := make(map[int]bool)
	var walk func(n int) bool
	walk = func(n int) bool {
		if n == to {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		el, ok := d.byID[n]
		if !ok {
			return false
		}
		for _, c := range el.Children {
			if walk(c.ID) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// RemoveChildren detaches every child from parent (spec §4.1).
func (d *Dimension) RemoveChildren(parent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[parent]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", parent))
	}
	for _, c := range p.Children {
		if child, ok := d.byID[c.ID]; ok {
			delete(child.parents, parent)
		}
	}
	p.Children = nil
	d.caches.invalidate()
	return nil
}

// RemoveChildrenNotIn detaches every child of parent not present in keep.
func (d *Dimension) RemoveChildrenNotIn(parent int, keep map[int]bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[parent]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", parent))
	}
	kept := p.Children[:0]
	for _, c := range p.Children {
		if keep[c.ID] {
			kept = append(kept, c)
			continue
		}
		if child, ok := d.byID[c.ID]; ok {
			delete(child.parents, parent)
		}
	}
	p.Children = kept
	d.caches.invalidate()
	return nil
}

// Move re-orders an element to newPosition, shifting others to keep the
// sequence dense (spec §4.1 "move"). Negative positions are rejected at
// this boundary per spec §9's open question about unsigned positions.
func (d *Dimension) Move(id, newPosition int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if newPosition < 0 {
		return molaperr.InvalidCoordinates("position must not be negative")
	}
	el, ok := d.byID[id]
	if !ok {
		return molaperr.NotFound("element", fmt.Sprintf("#%d", id))
	}
	if newPosition >= len(d.order) {
		newPosition = len(d.order) - 1
	}
	d.removeFromOrder(id)
	if newPosition >= len(d.order) {
		d.order = append(d.order, id)
	} else {
		d.order = append(d.order[:newPosition], append([]int{id}, d.order[newPosition:]...)...)
	}
	d.renumberPositions()
	_ = el
	return nil
}

// Element looks up an element by id.
func (d *Dimension) Element(id int) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byID[id]
	return e, ok
}

// ElementByName looks up an element by case-insensitive name.
func (d *Dimension) ElementByName(name string) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[strings.ToLower(name)]
	return e, ok
}

// Elements returns every live element ordered by position.
func (d *Dimension) Elements() []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Element, len(d.order))
	for i, id := range d.order {
		out[i] = d.byID[id]
	}
	return out
}

// Count returns the number of live elements.
func (d *Dimension) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}
