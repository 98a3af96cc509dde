package entity

import (
	"sort"
	"sync"

	"github.com/raterudder/esplus/pkg/metrics"
)

// AddFunc receives every entity that is new in a refresh cycle. It is called
// at most once per platform and cycle.
type AddFunc func(entities []Entity)

// Registry holds the latest snapshot of every entity. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]Entity
	callbacks map[Platform]AddFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]Entity),
		callbacks: make(map[Platform]AddFunc),
	}
}

// OnAdd sets the batch-add callback of a platform.
func (r *Registry) OnAdd(p Platform, fn AddFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[p] = fn
}

// Has reports whether an entity with the unique id exists.
func (r *Registry) Has(uniqueID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[uniqueID]
	return ok
}

// Replace overwrites the snapshot of an existing entity and reports whether
// it existed. Unknown entities are not stored; they go through Add.
func (r *Registry) Replace(e Entity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.UniqueID]; !ok {
		return false
	}
	r.entities[e.UniqueID] = e
	return true
}

// Add stores new entities of a platform and hands them to the platform's
// callback in one call.
func (r *Registry) Add(p Platform, entities []Entity) {
	if len(entities) == 0 {
		return
	}
	r.mu.Lock()
	for _, e := range entities {
		r.entities[e.UniqueID] = e
	}
	fn := r.callbacks[p]
	r.updateMetricsLocked()
	r.mu.Unlock()

	if fn != nil {
		fn(entities)
	}
}

// Get returns the snapshot with the unique id.
func (r *Registry) Get(uniqueID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[uniqueID]
	return e, ok
}

// List returns the snapshots of a platform, or of every platform when p is
// empty, ordered by unique id.
func (r *Registry) List(p Platform) []Entity {
	r.mu.RLock()
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		if p == "" || e.Platform == p {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].UniqueID < out[j].UniqueID
	})
	return out
}

// Remove deletes the entities with the given unique ids.
func (r *Registry) Remove(uniqueIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range uniqueIDs {
		delete(r.entities, id)
	}
	r.updateMetricsLocked()
}

// RemoveWhere deletes every entity matching fn and returns their unique ids.
func (r *Registry) RemoveWhere(fn func(Entity) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entities {
		if fn(e) {
			delete(r.entities, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	r.updateMetricsLocked()
	return removed
}

// RemoveEntry deletes every entity of a config entry.
func (r *Registry) RemoveEntry(entryID string) []string {
	return r.RemoveWhere(func(e Entity) bool {
		return e.EntryID == entryID
	})
}

func (r *Registry) updateMetricsLocked() {
	counts := make(map[Platform]int, len(Platforms))
	for _, e := range r.entities {
		counts[e.Platform]++
	}
	for _, p := range Platforms {
		metrics.SetEntities(string(p), counts[p])
	}
}
