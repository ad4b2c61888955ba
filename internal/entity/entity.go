// Package entity implements a normalized client-side cache of API entities.
//
// A State holds one Cache per entity type. Each Cache maps ids to the most
// recently imported entity and keeps any number of named, ordered lists of ids
// over those entities together with their fetch lifecycle state.
//
// State values are immutable. Reduce is the only way to derive a new State,
// and selectors are the only way to read one.
package entity

import "strings"

// Entity is any record with a stable identifier, unique within its entity type.
type Entity interface {
	EntityID() string
}

// listKeySep joins list key parts in a Path.
const listKeySep = ":"

// Path addresses one list of one entity type.
type Path struct {
	EntityType string
	ListKey    string
}

// NewPath builds a Path from an entity type and list key parts.
// Parts are joined with ":"; no parts yields a path with an empty list key.
func NewPath(entityType string, listKeyParts ...string) Path {
	return Path{EntityType: entityType, ListKey: strings.Join(listKeyParts, listKeySep)}
}

// ParsePath parses the form produced by Path.String.
func ParsePath(s string) Path {
	entityType, listKey, _ := strings.Cut(s, listKeySep)
	return Path{EntityType: entityType, ListKey: listKey}
}

// String returns "type:listkey", or just "type" when there is no list key.
func (p Path) String() string {
	if p.ListKey == "" {
		return p.EntityType
	}
	return p.EntityType + listKeySep + p.ListKey
}

// HasList reports whether the path names a list rather than only an entity type.
func (p Path) HasList() bool {
	return p.ListKey != ""
}

// ids returns the ids of entities in order, skipping nil entries.
func ids(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		out = append(out, e.EntityID())
	}
	return out
}
