package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/schema"
)

// Fetcher performs one transport call.
type Fetcher func(ctx context.Context) (Response, error)

// PageFetcher fetches the page at cursor; "" is the first page.
type PageFetcher func(ctx context.Context, cursor string) (Response, error)

type fetchOptions struct {
	schema    schema.Schema
	position  entity.Position
	overwrite bool
	force     bool
}

// FetchOption configures a list fetch.
type FetchOption func(*fetchOptions)

// WithSchema decodes raw response bodies through s.
func WithSchema(s schema.Schema) FetchOption {
	return func(fo *fetchOptions) { fo.schema = s }
}

// WithPosition sets where fetched ids land when the list is merged rather than overwritten.
func WithPosition(pos entity.Position) FetchOption {
	return func(fo *fetchOptions) { fo.position = pos }
}

// Merge keeps the existing ids and merges the fetched ones in at the configured position.
func Merge() FetchOption {
	return func(fo *fetchOptions) { fo.overwrite = false }
}

// Force fetches even when the list is still fresh.
func Force() FetchOption {
	return func(fo *fetchOptions) { fo.force = true }
}

// FetchEntities runs the fetch lifecycle of the list at p: request, transport
// call, validation, then success or failure. By default the fetched ids replace
// the list.
//
// Concurrent calls for the same path with the same overwrite and position
// share one transport call; the first caller's fetcher and schema serve all of
// them. Cancelling one caller's ctx does not fail the others.
func (o *Orchestrator) FetchEntities(ctx context.Context, p entity.Path, fetch Fetcher, opts ...FetchOption) error {
	fo := fetchOptions{position: entity.PositionEnd, overwrite: true}
	for _, opt := range opts {
		opt(&fo)
	}
	if !fo.force && o.fresh(p) {
		o.log.Debug("list fresh, skipping fetch", zap.Stringer("path", p))
		return nil
	}

	key := fmt.Sprintf("%s overwrite=%t position=%s", p, fo.overwrite, fo.position)
	return o.share(ctx, key, "fetch", p, func(ctx context.Context, abandoned func() error) error {
		return o.runFetch(ctx, abandoned, "fetch", p, fetch, fo, nil)
	})
}

// FetchFirstPage fetches the first page of a paginated list, replacing its ids.
func (o *Orchestrator) FetchFirstPage(ctx context.Context, p entity.Path, fetch PageFetcher, opts ...FetchOption) error {
	return o.FetchEntities(ctx, p, func(ctx context.Context) (Response, error) {
		return fetch(ctx, "")
	}, opts...)
}

// FetchNextPage fetches the page after the list's Next cursor and appends it.
// It returns ErrNoNextPage when the list does not exist or has no cursor.
func (o *Orchestrator) FetchNextPage(ctx context.Context, p entity.Path, fetch PageFetcher, opts ...FetchOption) error {
	current, ok := entity.SelectListState(o.store.State(), p)
	if !ok || current.Next == "" {
		return ErrNoNextPage
	}
	fo := fetchOptions{position: entity.PositionEnd}
	for _, opt := range opts {
		opt(&fo)
	}
	fo.overwrite = false

	cursor := current.Next
	key := fmt.Sprintf("next %s cursor=%s position=%s", p, cursor, fo.position)
	return o.share(ctx, key, "fetch next page", p, func(ctx context.Context, abandoned func() error) error {
		return o.runFetch(ctx, abandoned, "fetch next page", p, func(ctx context.Context) (Response, error) {
			return fetch(ctx, cursor)
		}, fo, func(ls *entity.ListState) {
			// A later page neither refreshes the list nor clears an invalidation.
			ls.Prev = current.Prev
			ls.Invalid = current.Invalid
			ls.LastFetchedAt = current.LastFetchedAt
		})
	})
}

// FetchAll fetches the first page and then up to maxPages-1 further pages.
// It stops early, without error, when the list runs out of pages.
func (o *Orchestrator) FetchAll(ctx context.Context, p entity.Path, fetch PageFetcher, maxPages int, opts ...FetchOption) error {
	if err := o.FetchFirstPage(ctx, p, fetch, opts...); err != nil {
		return err
	}
	for page := 1; page < maxPages; page++ {
		err := o.FetchNextPage(ctx, p, fetch, opts...)
		if errors.Is(err, ErrNoNextPage) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// FetchEntity fetches one entity and imports it without touching any list.
func (o *Orchestrator) FetchEntity(ctx context.Context, entityType string, fetch Fetcher, s schema.Schema) (entity.Entity, error) {
	p := entity.NewPath(entityType)
	resp, err := fetch(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		return nil, &OpError{Op: "fetch entity", Path: p, Err: err}
	}
	entities, err := decode(resp, s)
	if err != nil {
		return nil, &OpError{Op: "fetch entity", Path: p, Err: err}
	}
	if len(entities) == 0 {
		return nil, &OpError{Op: "fetch entity", Path: p, Err: errors.New("empty response")}
	}
	o.store.Dispatch(entity.ImportEntities(entities[:1], entityType, "", entity.PositionUnspecified))
	return entities[0], nil
}

// runFetch dispatches request then exactly one of success or fail. A fetch
// whose callers have all gone fails with their context error.
func (o *Orchestrator) runFetch(ctx context.Context, abandoned func() error, op string, p entity.Path, fetch Fetcher, fo fetchOptions, adjust func(*entity.ListState)) error {
	o.store.Dispatch(entity.EntitiesFetchRequest(p.EntityType, p.ListKey))

	resp, err := fetch(ctx)
	if cause := abandoned(); cause != nil {
		err = cause
	}
	if err != nil {
		return o.fail(op, p, err)
	}

	entities, err := decode(resp, fo.schema)
	if err != nil {
		return o.fail(op, p, err)
	}

	now := o.now()
	ls := entity.ListState{
		Fetched:       true,
		LastFetchedAt: &now,
		Next:          resp.Next,
		Prev:          resp.Prev,
		TotalCount:    resp.TotalCount,
	}
	if adjust != nil {
		adjust(&ls)
	}
	o.store.Dispatch(entity.EntitiesFetchSuccess(entities, p.EntityType, p.ListKey, fo.position, &ls, fo.overwrite))
	o.log.Debug("fetched", zap.Stringer("path", p), zap.Int("entities", len(entities)), zap.Bool("has_next", resp.Next != ""))
	return nil
}

func (o *Orchestrator) fail(op string, p entity.Path, err error) error {
	o.store.Dispatch(entity.EntitiesFetchFail(p.EntityType, p.ListKey, err))
	return &OpError{Op: op, Path: p, Err: err}
}

// fresh reports whether the list at p was fetched successfully within staleAfter
// and has not been invalidated since.
func (o *Orchestrator) fresh(p entity.Path) bool {
	if o.staleAfter <= 0 {
		return false
	}
	ls, ok := entity.SelectListState(o.store.State(), p)
	if !ok || !ls.Fetched || ls.Invalid || ls.Error != nil || ls.LastFetchedAt == nil {
		return false
	}
	return o.now().Sub(*ls.LastFetchedAt) < o.staleAfter
}
