// Package reconcile merges pushed snapshots into locally held pages.
//
// A held page is never grown by an event: snapshots for ids outside the page
// are discarded, and snapshots for ids inside it replace the held item in
// place. Replacement is conditional on the snapshot version, so a reordered
// older snapshot cannot overwrite a newer one.
package reconcile

import (
	"reflect"
	"sync"

	"lifecycle-service/internal/entity"
)

// Snapshot is an entity that can be merged by id.
type Snapshot interface {
	GetID() string
	GetVersion() int64
}

type Outcome int

const (
	// Applied means the held item was replaced.
	Applied Outcome = iota
	// Discarded means the id is not on the held page.
	Discarded
	// Stale means the held item is newer than the snapshot.
	Stale
	// Unchanged means the held item already is this snapshot.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	case Stale:
		return "stale"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// Collection holds one materialised page of a sorted collection.
type Collection[T Snapshot] struct {
	name string

	mu    sync.RWMutex
	page  entity.Page[T]
	index map[string]int
}

func NewCollection[T Snapshot](name string) *Collection[T] {
	return &Collection[T]{name: name, index: make(map[string]int)}
}

func (c *Collection[T]) Name() string { return c.name }

// Load replaces the held page, typically after an explicit fetch.
func (c *Collection[T]) Load(page entity.Page[T]) {
	items := make([]T, len(page.Items))
	copy(items, page.Items)
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.GetID()] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	page.Items = items
	c.page = page
	c.index = index
}

// Apply merges snap into the held page by id.
func (c *Collection[T]) Apply(snap T) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[snap.GetID()]
	if !ok {
		return Discarded
	}
	held := c.page.Items[i]
	hv, sv := held.GetVersion(), snap.GetVersion()
	if hv != 0 && sv != 0 {
		switch {
		case sv < hv:
			return Stale
		case sv == hv:
			return Unchanged
		}
	} else if reflect.DeepEqual(held, snap) {
		return Unchanged
	}
	c.page.Items[i] = snap
	return Applied
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.page.Items[i], true
}

// Page returns a copy of the held page.
func (c *Collection[T]) Page() entity.Page[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.page
	p.Items = make([]T, len(c.page.Items))
	copy(p.Items, c.page.Items)
	return p
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.page.Items)
}
