// Package orchestrator runs fetches and mutations against the entity store.
//
// Each operation calls a transport function, validates what came back and
// dispatches the resulting actions. Mutations are optimistic where the store
// can express the inverse: the local change is dispatched first and undone with
// a compensating action when the transport fails.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/schema"
)

// Dispatcher applies actions and exposes the current state.
type Dispatcher interface {
	Dispatch(a entity.Action) *entity.State
	State() *entity.State
}

// Response is what a transport call returned. Either Body (decoded through a
// schema) or Entities (already typed) carries the payload.
type Response struct {
	Entities   []entity.Entity
	Body       []byte
	Next       string // Cursor for the following page; "" when there is none.
	Prev       string // Cursor for the preceding page; "" when there is none.
	TotalCount *int   // Server-reported total; nil when unreported.
}

// ErrNoNextPage is returned by FetchNextPage when the list has no next cursor.
var ErrNoNextPage = errors.New("orchestrator: no next page")

// ErrNoSchema is returned when a response carries a raw body but no schema was given.
var ErrNoSchema = errors.New("orchestrator: response body without schema")

// OpError reports a failed orchestrated operation.
type OpError struct {
	Op   string      // Operation name, e.g. "fetch" or "delete".
	Path entity.Path // List or entity type the operation addressed.
	ID   string      // Entity id for single-entity operations.
	Err  error       // Underlying transport, validation or context error.
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("orchestrator: %s %s/%s: %s", e.Op, e.Path.EntityType, e.ID, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s %s: %s", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Orchestrator performs fetches and mutations for any entity type.
type Orchestrator struct {
	store      Dispatcher
	log        *zap.Logger
	now        func() time.Time
	staleAfter time.Duration

	flight singleflight.Group
	mu     sync.Mutex       // guards calls and their waiters
	calls  map[string]*call // in-flight shared fetches by flight key
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// New creates an Orchestrator dispatching into store.
func New(store Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
		calls: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides the time source used for LastFetchedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStaleAfter skips first-page fetches of lists fetched less than d ago
// that are not invalidated. Zero always fetches.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) { o.staleAfter = d }
}

// State returns the store's current state.
func (o *Orchestrator) State() *entity.State {
	return o.store.State()
}

// decode turns a response into entities using s when the response carries a body.
func decode(resp Response, s schema.Schema) ([]entity.Entity, error) {
	if resp.Body == nil {
		return resp.Entities, nil
	}
	if s == nil {
		return nil, ErrNoSchema
	}
	return s.Parse(resp.Body)
}
