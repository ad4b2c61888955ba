package entity

// SelectEntity returns the stored entity of entityType with the given id.
// It reports false when the entity is missing or not a T.
func SelectEntity[T Entity](s *State, entityType, id string) (T, bool) {
	var zero T
	c, ok := s.Cache(entityType)
	if !ok {
		return zero, false
	}
	e, ok := c.Entity(id)
	if !ok {
		return zero, false
	}
	t, ok := e.(T)
	return t, ok
}

// SelectEntities returns the entities of the list at p in list order.
// Ids without a store entry, or whose entity is not a T, are skipped.
// The result is never nil-padded and is empty when the list does not exist.
func SelectEntities[T Entity](s *State, p Path) []T {
	c, ok := s.Cache(p.EntityType)
	if !ok {
		return nil
	}
	l, ok := c.List(p.ListKey)
	if !ok {
		return nil
	}
	out := make([]T, 0, l.Len())
	for _, id := range l.ids.ids {
		e, ok := c.store[id]
		if !ok {
			continue
		}
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// SelectListState returns the state of the list at p.
func SelectListState(s *State, p Path) (ListState, bool) {
	l, ok := s.list(p)
	if !ok {
		return ListState{}, false
	}
	return l.state, true
}

// ListField names one field of ListState.
type ListField int

const (
	FieldFetching ListField = iota
	FieldFetched
	FieldError
	FieldLastFetchedAt
	FieldNext
	FieldPrev
	FieldTotalCount
	FieldInvalid
)

// SelectListField returns one field of the list state at p, or nil when the
// list does not exist. Pointer fields are dereferenced; an unset pointer yields nil.
func SelectListField(s *State, p Path, field ListField) any {
	ls, ok := SelectListState(s, p)
	if !ok {
		return nil
	}
	switch field {
	case FieldFetching:
		return ls.Fetching
	case FieldFetched:
		return ls.Fetched
	case FieldError:
		if ls.Error == nil {
			return nil
		}
		return ls.Error
	case FieldLastFetchedAt:
		if ls.LastFetchedAt == nil {
			return nil
		}
		return *ls.LastFetchedAt
	case FieldNext:
		return ls.Next
	case FieldPrev:
		return ls.Prev
	case FieldTotalCount:
		if ls.TotalCount == nil {
			return nil
		}
		return *ls.TotalCount
	case FieldInvalid:
		return ls.Invalid
	}
	return nil
}

// FindEntity returns the first stored entity of entityType that is a T and
// satisfies pred. Which match is returned when several exist is unspecified.
func FindEntity[T Entity](s *State, entityType string, pred func(T) bool) (T, bool) {
	var found T
	var ok bool
	c, exists := s.Cache(entityType)
	if !exists {
		return found, false
	}
	c.Range(func(e Entity) bool {
		t, isT := e.(T)
		if isT && pred(t) {
			found, ok = t, true
			return false
		}
		return true
	})
	return found, ok
}
