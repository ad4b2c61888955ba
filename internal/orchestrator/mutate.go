package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/schema"
)

// Call performs a transport call whose response body is not needed.
type Call func(ctx context.Context) error

// ListTarget names a list a created entity is added to.
type ListTarget struct {
	ListKey  string
	Position entity.Position
}

type createOptions struct {
	schema    schema.Schema
	tentative entity.Entity
	targets   []ListTarget
}

// CreateOption configures CreateEntity.
type CreateOption func(*createOptions)

// WithCreateSchema decodes the created entity through s.
func WithCreateSchema(s schema.Schema) CreateOption {
	return func(co *createOptions) { co.schema = s }
}

// Tentative imports e into the target lists before the transport call. On
// success it is deleted and replaced by the server's entity; on failure it is
// left in place for the caller to reconcile.
func Tentative(e entity.Entity) CreateOption {
	return func(co *createOptions) { co.tentative = e }
}

// IntoList adds the created entity to the list listKey at pos.
func IntoList(listKey string, pos entity.Position) CreateOption {
	return func(co *createOptions) {
		co.targets = append(co.targets, ListTarget{ListKey: listKey, Position: pos})
	}
}

// CreateEntity creates an entity through create and imports the result into
// the store and every target list.
func (o *Orchestrator) CreateEntity(ctx context.Context, entityType string, create Fetcher, opts ...CreateOption) (entity.Entity, error) {
	var co createOptions
	for _, opt := range opts {
		opt(&co)
	}
	p := entity.NewPath(entityType)

	if co.tentative != nil {
		o.importInto(entityType, []entity.Entity{co.tentative}, co.targets)
	}

	resp, err := create(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		return nil, &OpError{Op: "create", Path: p, Err: err}
	}
	entities, err := decode(resp, co.schema)
	if err != nil {
		return nil, &OpError{Op: "create", Path: p, Err: err}
	}
	if len(entities) == 0 {
		return nil, &OpError{Op: "create", Path: p, Err: errors.New("empty response")}
	}
	created := entities[0]

	if co.tentative != nil && co.tentative.EntityID() != created.EntityID() {
		o.store.Dispatch(entity.DeleteEntities([]string{co.tentative.EntityID()}, entityType, entity.DeleteOptions{}))
	}
	o.importInto(entityType, []entity.Entity{created}, co.targets)
	return created, nil
}

func (o *Orchestrator) importInto(entityType string, entities []entity.Entity, targets []ListTarget) {
	if len(targets) == 0 {
		o.store.Dispatch(entity.ImportEntities(entities, entityType, "", entity.PositionUnspecified))
		return
	}
	for _, t := range targets {
		o.store.Dispatch(entity.ImportEntities(entities, entityType, t.ListKey, t.Position))
	}
}

// DeleteEntity deletes an entity optimistically. The store entry goes first
// while lists keep the id, so selectors hide it; after the transport call
// succeeds the id is removed from every list, after it fails the saved entity
// is imported back.
func (o *Orchestrator) DeleteEntity(ctx context.Context, entityType, id string, del Call) error {
	saved, existed := o.lookup(entityType, id)
	o.store.Dispatch(entity.DeleteEntities([]string{id}, entityType, entity.DeleteOptions{PreserveLists: true}))

	err := del(ctx)
	if ctxErr := ctx.Err(); err == nil && ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		if existed {
			o.store.Dispatch(entity.ImportEntities([]entity.Entity{saved}, entityType, "", entity.PositionUnspecified))
		}
		o.log.Debug("delete rolled back", zap.String("entity_type", entityType), zap.String("id", id), zap.Error(err))
		return &OpError{Op: "delete", Path: entity.NewPath(entityType), ID: id, Err: err}
	}

	o.store.Dispatch(entity.DeleteEntities([]string{id}, entityType, entity.DeleteOptions{}))
	return nil
}

// DismissEntity removes id from the list at p after dismiss succeeds. A nil
// dismiss removes it locally only.
func (o *Orchestrator) DismissEntity(ctx context.Context, p entity.Path, id string, dismiss Call) error {
	if dismiss != nil {
		if err := dismiss(ctx); err != nil {
			return &OpError{Op: "dismiss", Path: p, ID: id, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return &OpError{Op: "dismiss", Path: p, ID: id, Err: err}
		}
	}
	o.store.Dispatch(entity.DismissEntities([]string{id}, p.EntityType, p.ListKey))
	return nil
}

// IncrementEntity adds diff to the list's total count, then runs call. If call
// fails the count is moved back by diff.
func (o *Orchestrator) IncrementEntity(ctx context.Context, p entity.Path, diff int, call Call) error {
	o.store.Dispatch(entity.IncrementEntities(p.EntityType, p.ListKey, diff))

	err := call(ctx)
	if ctxErr := ctx.Err(); err == nil && ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		o.store.Dispatch(entity.IncrementEntities(p.EntityType, p.ListKey, -diff))
		return &OpError{Op: "increment", Path: p, Err: err}
	}
	return nil
}

// UpdateEntity applies apply to the stored entity, runs call, and applies
// revert if call fails. Both updaters go through a transaction, so list
// membership is never affected.
func (o *Orchestrator) UpdateEntity(ctx context.Context, entityType, id string, apply, revert entity.Updater, call Call) error {
	o.store.Dispatch(entity.EntitiesTransaction(entity.Transaction{entityType: {id: apply}}))

	err := call(ctx)
	if ctxErr := ctx.Err(); err == nil && ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		if revert != nil {
			o.store.Dispatch(entity.EntitiesTransaction(entity.Transaction{entityType: {id: revert}}))
		}
		return &OpError{Op: "update", Path: entity.NewPath(entityType), ID: id, Err: err}
	}
	return nil
}

// Invalidate marks the list at p stale so the next fetch ignores freshness.
func (o *Orchestrator) Invalidate(p entity.Path) {
	o.store.Dispatch(entity.InvalidateEntityList(p.EntityType, p.ListKey))
}

func (o *Orchestrator) lookup(entityType, id string) (entity.Entity, bool) {
	c, ok := o.store.State().Cache(entityType)
	if !ok {
		return nil, false
	}
	return c.Entity(id)
}
