package entity

import (
	"sort"
	"time"
)

// ListState is the fetch lifecycle metadata attached to a list.
type ListState struct {
	Fetching      bool
	Fetched       bool
	Error         error
	LastFetchedAt *time.Time
	Next          string // Cursor for the following page; "" when there is none.
	Prev          string // Cursor for the preceding page; "" when there is none.
	TotalCount    *int   // Server-side total; nil when unknown.
	Invalid       bool
}

// Count returns the total count and whether it is known.
func (ls ListState) Count() (int, bool) {
	if ls.TotalCount == nil {
		return 0, false
	}
	return *ls.TotalCount, true
}

// withCount returns a copy of ls with TotalCount set to a fresh pointer.
func (ls ListState) withCount(n int) ListState {
	ls.TotalCount = &n
	return ls
}

// IntPtr returns a pointer to n, for building ListState literals.
func IntPtr(n int) *int {
	return &n
}

// List is an ordered view over entities of one type.
type List struct {
	ids   OrderedSet
	state ListState
}

// IDs returns the list's ids in display order.
func (l *List) IDs() []string {
	return l.ids.Slice()
}

// Len returns the number of ids in the list.
func (l *List) Len() int {
	return l.ids.Len()
}

// Has reports whether id is a member of the list.
func (l *List) Has(id string) bool {
	return l.ids.Has(id)
}

// State returns the list's fetch lifecycle state.
func (l *List) State() ListState {
	return l.state
}

// Cache holds the entities and lists of one entity type.
type Cache struct {
	store map[string]Entity
	lists map[string]*List
}

// Entity returns the stored entity with the given id.
func (c *Cache) Entity(id string) (Entity, bool) {
	e, ok := c.store[id]
	return e, ok
}

// Len returns the number of stored entities.
func (c *Cache) Len() int {
	return len(c.store)
}

// List returns the list with the given key.
func (c *Cache) List(key string) (*List, bool) {
	l, ok := c.lists[key]
	return l, ok
}

// ListKeys returns the keys of all lists, sorted.
func (c *Cache) ListKeys() []string {
	keys := make([]string, 0, len(c.lists))
	for k := range c.lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every stored entity until fn returns false.
// Iteration order is unspecified.
func (c *Cache) Range(fn func(Entity) bool) {
	for _, e := range c.store {
		if !fn(e) {
			return
		}
	}
}

// clone returns a shallow copy whose maps may be modified without touching c.
func (c *Cache) clone() *Cache {
	out := &Cache{
		store: make(map[string]Entity, len(c.store)),
		lists: make(map[string]*List, len(c.lists)),
	}
	for k, v := range c.store {
		out.store[k] = v
	}
	for k, v := range c.lists {
		out.lists[k] = v
	}
	return out
}

// State is the whole cache: one Cache per entity type.
// A nil *State is a valid empty state.
type State struct {
	caches map[string]*Cache
}

// NewState returns an empty State.
func NewState() *State {
	return &State{caches: make(map[string]*Cache)}
}

// Cache returns the cache for an entity type.
func (s *State) Cache(entityType string) (*Cache, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.caches[entityType]
	return c, ok
}

// EntityTypes returns the entity types present in the state, sorted.
func (s *State) EntityTypes() []string {
	if s == nil {
		return nil
	}
	types := make([]string, 0, len(s.caches))
	for t := range s.caches {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// list returns the list addressed by p, if any.
func (s *State) list(p Path) (*List, bool) {
	c, ok := s.Cache(p.EntityType)
	if !ok {
		return nil, false
	}
	return c.List(p.ListKey)
}

// Builder assembles a State outside the reducer, for restoring snapshots.
type Builder struct {
	caches map[string]*Cache
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{caches: make(map[string]*Cache)}
}

// Put stores entities under an entity type.
func (b *Builder) Put(entityType string, entities ...Entity) *Builder {
	c := b.cache(entityType)
	for _, e := range entities {
		if e != nil {
			c.store[e.EntityID()] = e
		}
	}
	return b
}

// List sets the ids and state of a list, replacing any previous definition.
func (b *Builder) List(p Path, ids []string, state ListState) *Builder {
	c := b.cache(p.EntityType)
	c.lists[p.ListKey] = &List{ids: NewOrderedSet(ids...), state: state}
	return b
}

// Build returns the assembled State. The Builder must not be used afterwards.
func (b *Builder) Build() *State {
	s := &State{caches: b.caches}
	b.caches = nil
	return s
}

func (b *Builder) cache(entityType string) *Cache {
	c, ok := b.caches[entityType]
	if !ok {
		c = &Cache{store: make(map[string]Entity), lists: make(map[string]*List)}
		b.caches[entityType] = c
	}
	return c
}
