package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/metrics"
)

type note struct{ ID string }

func (n note) EntityID() string { return n.ID }

func TestStore_DispatchUpdatesState(t *testing.T) {
	s := New()
	before := s.State()

	next := s.Dispatch(entity.ImportEntities([]entity.Entity{note{ID: "1"}}, "notes", "all", entity.PositionEnd))

	if next == before {
		t.Fatal("Dispatch returned the previous state for a changing action")
	}
	if s.State() != next {
		t.Error("State() does not return the dispatched result")
	}
	if got := entity.SelectEntities[note](s.State(), entity.NewPath("notes", "all")); len(got) != 1 {
		t.Errorf("entities = %v, want 1", got)
	}
}

func TestStore_WithInitialState(t *testing.T) {
	seed := entity.NewBuilder().Put("notes", note{ID: "x"}).Build()
	s := New(WithInitialState(seed))

	if s.State() != seed {
		t.Error("initial state not used")
	}
}

func TestStore_SubscribeOnlyOnChange(t *testing.T) {
	// Given: a store with one listener
	s := New()
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	// When: a changing and a no-op action are dispatched
	s.Dispatch(entity.EntitiesFetchRequest("notes", "all"))
	s.Dispatch(entity.IncrementEntities("notes", "missing", 1))

	// Then: only the change is delivered
	if len(changes) != 1 {
		t.Fatalf("listener called %d times, want 1", len(changes))
	}
	if changes[0].Action.Kind() != entity.KindFetchRequest {
		t.Errorf("action kind = %q, want %q", changes[0].Action.Kind(), entity.KindFetchRequest)
	}

	// When: unsubscribed
	unsubscribe()
	unsubscribe()
	s.Dispatch(entity.InvalidateEntityList("notes", "all"))

	// Then: no further calls
	if len(changes) != 1 {
		t.Errorf("listener called %d times after unsubscribe, want 1", len(changes))
	}
}

func TestStore_ListenerPanicIsContained(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(WithLogger(zap.New(core)))
	called := false
	s.Subscribe(func(Change) { panic("boom") })
	s.Subscribe(func(Change) { called = true })

	s.Dispatch(entity.EntitiesFetchRequest("notes", "all"))

	if !called {
		t.Error("second listener not called after first panicked")
	}
	if logs.FilterMessage("store: listener panicked").Len() != 1 {
		t.Errorf("panic log entries = %d, want 1", logs.Len())
	}
}

func TestStore_DispatchPanicReleasesLock(t *testing.T) {
	// Given: middleware that panics on invalidation
	explode := func(next DispatchFunc) DispatchFunc {
		return func(a entity.Action) Change {
			if a.Kind() == entity.KindInvalidate {
				panic("boom")
			}
			return next(a)
		}
	}
	s := New(WithMiddleware(explode))
	before := s.State()

	// When: the panicking action is dispatched
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Dispatch did not propagate the panic")
			}
		}()
		s.Dispatch(entity.InvalidateEntityList("notes", "all"))
	}()

	// Then: the state is untouched and later dispatches still run
	if s.State() != before {
		t.Error("state changed by a panicking dispatch")
	}
	done := make(chan struct{})
	go func() {
		s.Dispatch(entity.EntitiesFetchRequest("notes", "all"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked after an earlier panic")
	}
	if _, ok := entity.SelectListState(s.State(), entity.NewPath("notes", "all")); !ok {
		t.Error("fetch request after the panic was not applied")
	}
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := New()
	s.Dispatch(entity.ImportEntities(nil, "notes", "all", entity.PositionEnd))

	var mu sync.Mutex
	var seen []*entity.State
	s.Subscribe(func(c Change) {
		mu.Lock()
		seen = append(seen, c.Next)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispatch(entity.IncrementEntities("notes", "all", 1))
		}()
	}
	wg.Wait()

	n, ok := s.State().Cache("notes")
	if !ok {
		t.Fatal("cache missing")
	}
	l, _ := n.List("all")
	if got, _ := l.State().Count(); got != 50 {
		t.Errorf("totalCount = %d, want 50", got)
	}
	if len(seen) != 50 {
		t.Fatalf("listener calls = %d, want 50", len(seen))
	}
	// Listeners observe states in dispatch order, so counts are strictly increasing.
	for i, st := range seen {
		c, _ := st.Cache("notes")
		l, _ := c.List("all")
		if got, _ := l.State().Count(); got != i+1 {
			t.Fatalf("listener call %d saw count %d, want %d", i, got, i+1)
		}
	}
}

func TestMiddleware_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next DispatchFunc) DispatchFunc {
			return func(a entity.Action) Change {
				order = append(order, name+">")
				c := next(a)
				order = append(order, "<"+name)
				return c
			}
		}
	}
	s := New(WithMiddleware(tag("outer"), tag("inner")))

	s.Dispatch(entity.EntitiesFetchRequest("notes", "all"))

	want := []string{"outer>", "inner>", "<inner", "<outer"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(WithMiddleware(Logging(zap.New(core))))

	s.Dispatch(entity.ImportEntities([]entity.Entity{note{ID: "1"}}, "notes", "all", entity.PositionEnd))
	s.Dispatch(entity.EntitiesFetchFail("notes", "all", errors.New("offline")))

	if got := logs.FilterMessage("dispatch").Len(); got != 1 {
		t.Errorf("dispatch entries = %d, want 1", got)
	}
	warn := logs.FilterMessage("fetch failed").All()
	if len(warn) != 1 {
		t.Fatalf("fetch failed entries = %d, want 1", len(warn))
	}
	if warn[0].Level != zapcore.WarnLevel {
		t.Errorf("fetch failed level = %v, want warn", warn[0].Level)
	}
	if got := warn[0].ContextMap()["entity_type"]; got != "notes" {
		t.Errorf("entity_type = %v, want notes", got)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	s := New(WithMiddleware(Metrics(m)))

	s.Dispatch(entity.ImportEntities([]entity.Entity{note{ID: "1"}, note{ID: "2"}}, "notes", "all", entity.PositionEnd))
	s.Dispatch(entity.EntitiesFetchFail("notes", "all", errors.New("offline")))
	s.Dispatch(entity.IncrementEntities("notes", "missing", 1))

	if got := testutil.ToFloat64(m.EntitiesImported.WithLabelValues("notes")); got != 2 {
		t.Errorf("imported = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FetchFailures.WithLabelValues("notes")); got != 1 {
		t.Errorf("fetch failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActionsDispatched.WithLabelValues("increment", "notes")); got != 1 {
		t.Errorf("increment dispatched = %v, want 1", got)
	}
}
