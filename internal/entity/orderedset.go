package entity

// OrderedSet is an immutable insertion-ordered set of ids.
// The zero value is an empty set. Methods that change membership return a new set
// and leave the receiver untouched, so sets can be shared between States.
type OrderedSet struct {
	ids   []string
	index map[string]struct{}
}

// NewOrderedSet builds a set from ids, keeping the first occurrence of duplicates.
func NewOrderedSet(ids ...string) OrderedSet {
	return OrderedSet{}.Append(ids...)
}

// Len returns the number of ids in the set.
func (s OrderedSet) Len() int {
	return len(s.ids)
}

// Has reports whether id is a member.
func (s OrderedSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Slice returns a copy of the ids in order.
func (s OrderedSet) Slice() []string {
	return append([]string(nil), s.ids...)
}

// Append returns a set with the ids not already present added after the existing ones.
func (s OrderedSet) Append(ids ...string) OrderedSet {
	fresh := s.missing(ids)
	if len(fresh) == 0 {
		return s
	}
	out := make([]string, 0, len(s.ids)+len(fresh))
	out = append(out, s.ids...)
	out = append(out, fresh...)
	return newSetFrom(out)
}

// Prepend returns a set with the ids not already present inserted, in their
// given order, before the existing ones. Existing ids keep their relative position.
func (s OrderedSet) Prepend(ids ...string) OrderedSet {
	fresh := s.missing(ids)
	if len(fresh) == 0 {
		return s
	}
	out := make([]string, 0, len(s.ids)+len(fresh))
	out = append(out, fresh...)
	out = append(out, s.ids...)
	return newSetFrom(out)
}

// Remove returns a set without the given ids and the number actually removed.
func (s OrderedSet) Remove(ids ...string) (OrderedSet, int) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if s.Has(id) {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return s, 0
	}
	out := make([]string, 0, len(s.ids)-len(drop))
	for _, id := range s.ids {
		if _, gone := drop[id]; !gone {
			out = append(out, id)
		}
	}
	return newSetFrom(out), len(drop)
}

// missing returns ids not in s, deduplicated, in first-seen order.
func (s OrderedSet) missing(ids []string) []string {
	var fresh []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if s.Has(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

// newSetFrom indexes an already-deduplicated slice it takes ownership of.
func newSetFrom(ids []string) OrderedSet {
	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}
	return OrderedSet{ids: ids, index: index}
}
