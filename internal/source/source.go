// Package source names the lists a client can browse and binds each one to a
// store path, a page fetcher and a schema.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/orchestrator"
	"github.com/smileynet/fedicache/internal/schema"
)

// ErrInvalidName is returned for names with a missing or unexpected argument.
var ErrInvalidName = errors.New("source: invalid name")

// Source is one browsable list.
type Source struct {
	Name   string
	Path   entity.Path
	Fetch  orchestrator.PageFetcher
	Schema schema.Schema
	Stream string // Streaming API stream feeding this list; "" when none.
}

// Factory builds a source from the argument after the ":" in its name.
type Factory func(arg string) (Source, error)

type registration struct {
	factory Factory
	takeArg bool
}

// Registry maps source names to factories.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]registration)}
}

// Register adds a source that takes no argument. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	r.register(name, f, false)
}

// RegisterParam adds a source addressed as "name:<arg>".
func (r *Registry) RegisterParam(name string, f Factory) {
	r.register(name, f, true)
}

func (r *Registry) register(name string, f Factory, takeArg bool) {
	if name == "" {
		panic("source: Register called with empty name")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	r.factories[name] = registration{factory: f, takeArg: takeArg}
}

// Lookup resolves a full source name such as "home" or "account:42".
func (r *Registry) Lookup(name string) (Source, error) {
	base, arg, hasArg := strings.Cut(name, ":")
	reg, ok := r.factories[base]
	if !ok {
		return Source{}, &UnknownSourceError{Name: name, Available: r.Available()}
	}
	if reg.takeArg && arg == "" {
		return Source{}, fmt.Errorf("%w: %q needs an id, as in %s:<id>", ErrInvalidName, name, base)
	}
	if !reg.takeArg && hasArg {
		return Source{}, fmt.Errorf("%w: %q takes no argument", ErrInvalidName, name)
	}
	s, err := reg.factory(arg)
	if err != nil {
		return Source{}, fmt.Errorf("source factory %q: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	return s, nil
}

// Available returns the registered names in sorted order, parameterized
// ones written as "name:<id>".
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name, reg := range r.factories {
		if reg.takeArg {
			name += ":<id>"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownSourceError indicates a source name is not registered.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
