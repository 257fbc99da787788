package broker

import (
	"fmt"
	"sort"
	"sync"
)

// Filter selects a subset of the catalog for one scan run.
type Filter struct {
	// All selects every broker; it wins over the other fields.
	All bool
	// Category selects brokers by catalog category.
	Category string
	// IDs selects an explicit broker list.
	IDs []string
}

func FilterAll() Filter              { return Filter{All: true} }
func FilterCategory(c string) Filter { return Filter{Category: c} }
func FilterIDs(ids ...string) Filter { return Filter{IDs: ids} }

// Matches reports whether the filter selects the given definition.
func (f Filter) Matches(d *Definition) bool {
	switch {
	case f.All:
		return true
	case f.Category != "":
		return d.Category == f.Category
	default:
		for _, id := range f.IDs {
			if d.ID == id {
				return true
			}
		}
		return false
	}
}

// Registry serves immutable broker definitions keyed by id.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

// Get returns the definition for a broker id.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("unknown broker: %s", id)
	}
	return d, nil
}

// All returns every definition, ordered by id for stable iteration.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Select returns the definitions matched by the filter, ordered by id.
func (r *Registry) Select(f Filter) []*Definition {
	all := r.All()
	out := all[:0]
	for _, d := range all {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

// Add registers a definition, replacing an existing one with the same id.
// Used by the loader and by tests.
func (r *Registry) Add(d *Definition) {
	r.mu.Lock()
	r.defs[d.ID] = d
	r.mu.Unlock()
}

// Len reports the catalog size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
