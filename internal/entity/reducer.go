package entity

// Reduce returns the state that results from applying a to s.
// It never mutates s, never panics on malformed input and returns s itself
// when the action changes nothing. A nil s is treated as an empty state.
func Reduce(s *State, a Action) *State {
	if s == nil {
		s = NewState()
	}

	switch a := a.(type) {
	case ImportAction:
		return reduceImport(s, a.Path, a.Entities, a.Position, nil, false)

	case FetchSuccessAction:
		return reduceImport(s, a.Path, a.Entities, a.Position, a.NewListState, a.Overwrite)

	case FetchRequestAction:
		return s.updateList(a.Path, true, func(l List) (List, bool) {
			l.state.Fetching = true
			return l, true
		})

	case FetchFailAction:
		return s.updateList(a.Path, true, func(l List) (List, bool) {
			l.state.Fetching = false
			l.state.Error = a.Err
			return l, true
		})

	case DeleteAction:
		return reduceDelete(s, a)

	case DismissAction:
		return s.updateList(a.Path, false, func(l List) (List, bool) {
			next, removed := l.ids.Remove(a.IDs...)
			if removed == 0 {
				return l, false
			}
			l.ids = next
			if n, ok := l.state.Count(); ok {
				l.state = l.state.withCount(n - removed)
			}
			return l, true
		})

	case IncrementAction:
		return s.updateList(a.Path, false, func(l List) (List, bool) {
			n, ok := l.state.Count()
			if !ok || a.Diff == 0 {
				return l, false
			}
			l.state = l.state.withCount(n + a.Diff)
			return l, true
		})

	case InvalidateAction:
		return s.updateList(a.Path, true, func(l List) (List, bool) {
			l.state.Invalid = true
			return l, true
		})

	case TransactionAction:
		return reduceTransaction(s, a.Tx)
	}

	return s
}

// reduceImport stores entities and, when p names a list, merges their ids into it.
func reduceImport(s *State, p Path, entities []Entity, pos Position, newState *ListState, overwrite bool) *State {
	if p.EntityType == "" {
		return s
	}
	return s.updateCache(p.EntityType, true, func(c *Cache) bool {
		for _, e := range entities {
			if e == nil {
				continue
			}
			c.store[e.EntityID()] = e
		}
		if !p.HasList() {
			return true
		}

		l := c.listOrDefault(p.ListKey)
		prev := l.ids
		incoming := ids(entities)
		switch {
		case overwrite:
			l.ids = NewOrderedSet(incoming...)
		case pos == PositionStart:
			l.ids = prev.Prepend(incoming...)
		default:
			l.ids = prev.Append(incoming...)
		}

		// Counts move by the net membership change; an unknown count starts at zero.
		base, _ := l.state.Count()
		derived := base + l.ids.Len() - prev.Len()

		if newState != nil {
			l.state = *newState
			if n, ok := newState.Count(); ok {
				l.state = l.state.withCount(n)
			} else {
				l.state = l.state.withCount(derived)
			}
		} else {
			l.state.Fetched = true
			l.state.Fetching = false
			l.state.Error = nil
			l.state = l.state.withCount(derived)
		}
		c.lists[p.ListKey] = &l
		return true
	})
}

// reduceDelete drops entities from the store and, unless preserved, from every list.
func reduceDelete(s *State, a DeleteAction) *State {
	if len(a.IDs) == 0 {
		return s
	}
	return s.updateCache(a.Type, false, func(c *Cache) bool {
		changed := false
		for _, id := range a.IDs {
			if _, ok := c.store[id]; ok {
				delete(c.store, id)
				changed = true
			}
		}
		if a.Options.PreserveLists {
			return changed
		}
		for key, list := range c.lists {
			next, removed := list.ids.Remove(a.IDs...)
			if removed == 0 {
				continue
			}
			l := *list
			l.ids = next
			if n, ok := l.state.Count(); ok {
				l.state = l.state.withCount(n - removed)
			}
			c.lists[key] = &l
			changed = true
		}
		return changed
	})
}

// reduceTransaction applies per-entity updaters across entity types in one step.
func reduceTransaction(s *State, tx Transaction) *State {
	out := s
	for entityType, updaters := range tx {
		out = out.updateCache(entityType, false, func(c *Cache) bool {
			changed := false
			for id, update := range updaters {
				current, ok := c.store[id]
				if !ok || update == nil {
					continue
				}
				next := update(current)
				if next == nil || next.EntityID() != id {
					continue
				}
				c.store[id] = next
				changed = true
			}
			return changed
		})
	}
	return out
}

// updateCache runs fn against a private copy of the cache for entityType and
// returns a new State holding it when fn reports a change. With create unset,
// a missing cache makes the update a no-op.
func (s *State) updateCache(entityType string, create bool, fn func(*Cache) bool) *State {
	current, ok := s.Cache(entityType)
	var draft *Cache
	switch {
	case ok:
		draft = current.clone()
	case create:
		draft = &Cache{store: make(map[string]Entity), lists: make(map[string]*List)}
	default:
		return s
	}

	if !fn(draft) {
		return s
	}

	next := &State{caches: make(map[string]*Cache, len(s.caches)+1)}
	for k, v := range s.caches {
		next.caches[k] = v
	}
	next.caches[entityType] = draft
	return next
}

// updateList runs fn against a copy of the list at p. With create unset,
// a missing list (or cache) makes the update a no-op.
func (s *State) updateList(p Path, create bool, fn func(List) (List, bool)) *State {
	if p.EntityType == "" || !p.HasList() {
		return s
	}
	if !create {
		if _, ok := s.list(p); !ok {
			return s
		}
	}
	return s.updateCache(p.EntityType, create, func(c *Cache) bool {
		l, changed := fn(c.listOrDefault(p.ListKey))
		if !changed {
			return false
		}
		c.lists[p.ListKey] = &l
		return true
	})
}

// listOrDefault returns a copy of the list at key, or a fresh empty list.
func (c *Cache) listOrDefault(key string) List {
	if l, ok := c.lists[key]; ok {
		return *l
	}
	return List{}
}
