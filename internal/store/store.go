// Package store holds the current entity state and serializes dispatch.
package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
)

// Change describes the effect of one dispatched action.
type Change struct {
	Action entity.Action
	Prev   *entity.State
	Next   *entity.State
}

// Changed reports whether the action produced a new state.
func (c Change) Changed() bool {
	return c.Prev != c.Next
}

// DispatchFunc applies an action and reports its effect.
type DispatchFunc func(entity.Action) Change

// Middleware wraps a DispatchFunc. Middleware runs under the dispatch lock,
// so it observes actions in the order they are applied.
type Middleware func(next DispatchFunc) DispatchFunc

// Listener is notified after every action that changed the state.
type Listener func(Change)

// Store is the single writer of an entity.State. Dispatch is safe for
// concurrent use; State never blocks.
type Store struct {
	mu       sync.Mutex // serializes reduce + middleware
	notifyMu sync.Mutex // keeps listener calls in dispatch order
	state    atomic.Pointer[entity.State]
	dispatch DispatchFunc

	subsMu sync.Mutex
	subs   map[int]Listener
	nextID int

	log         *zap.Logger
	middlewares []Middleware
}

// Option configures a Store.
type Option func(*Store)

// WithInitialState seeds the store, for example from a snapshot.
func WithInitialState(s *entity.State) Option {
	return func(st *Store) {
		if s != nil {
			st.state.Store(s)
		}
	}
}

// WithMiddleware appends middleware. The first one given is the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(st *Store) { st.middlewares = append(st.middlewares, mw...) }
}

// WithLogger sets the logger used for listener panics.
func WithLogger(log *zap.Logger) Option {
	return func(st *Store) { st.log = log }
}

// New creates a Store holding an empty state unless WithInitialState is given.
func New(opts ...Option) *Store {
	s := &Store{
		subs: make(map[int]Listener),
		log:  zap.NewNop(),
	}
	s.state.Store(entity.NewState())
	for _, opt := range opts {
		opt(s)
	}

	d := s.reduce
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		d = s.middlewares[i](d)
	}
	s.dispatch = d
	return s
}

// State returns the current state. The result is immutable and may be read
// without synchronization.
func (s *Store) State() *entity.State {
	return s.state.Load()
}

// Dispatch applies a to the current state and notifies listeners when the
// state changed. Listeners run after the dispatch lock is released but before
// the next dispatch notifies, and must not call Dispatch synchronously.
// A panic raised by middleware or an Updater propagates to the caller and
// leaves the state unchanged.
func (s *Store) Dispatch(a entity.Action) *entity.State {
	c := s.apply(a)
	defer s.notifyMu.Unlock()

	if c.Changed() {
		s.notify(c)
	}
	return c.Next
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = l
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// apply runs a under mu and returns holding notifyMu.
func (s *Store) apply(a entity.Action) Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.dispatch(a)
	s.notifyMu.Lock()
	return c
}

func (s *Store) reduce(a entity.Action) Change {
	prev := s.state.Load()
	next := entity.Reduce(prev, a)
	if next != prev {
		s.state.Store(next)
	}
	return Change{Action: a, Prev: prev, Next: next}
}

func (s *Store) notify(c Change) {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, l := range listeners {
		s.call(l, c)
	}
}

func (s *Store) call(l Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("store: listener panicked", zap.Any("panic", r), zap.String("action", string(c.Action.Kind())))
		}
	}()
	l(c)
}
