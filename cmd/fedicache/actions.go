package main

import (
	"context"
	"fmt"

	"github.com/smileynet/fedicache/internal/api"
	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/model"
	"github.com/smileynet/fedicache/internal/orchestrator"
	"github.com/smileynet/fedicache/internal/source"
)

// sourceActions implements dashboard.Actions for one list source.
type sourceActions struct {
	ctx    context.Context
	orch   *orchestrator.Orchestrator
	client *api.Client
	src    source.Source
}

func newSourceActions(ctx context.Context, orch *orchestrator.Orchestrator, client *api.Client, src source.Source) *sourceActions {
	return &sourceActions{ctx: ctx, orch: orch, client: client, src: src}
}

func (a *sourceActions) Refresh() error {
	return a.orch.FetchFirstPage(a.ctx, a.src.Path, a.src.Fetch, orchestrator.WithSchema(a.src.Schema), orchestrator.Force())
}

func (a *sourceActions) NextPage() error {
	return a.orch.FetchNextPage(a.ctx, a.src.Path, a.src.Fetch, orchestrator.WithSchema(a.src.Schema))
}

// Dismiss removes id from the list. Notifications are dismissed on the server
// too; other entries are only hidden locally.
func (a *sourceActions) Dismiss(id string) error {
	var call orchestrator.Call
	if a.src.Path.EntityType == model.TypeNotifications {
		call = a.client.DismissNotification(id)
	}
	return a.orch.DismissEntity(a.ctx, a.src.Path, id, call)
}

// Favourite toggles the favourite on the status behind id: the entry itself
// for status lists, the notification's status for notification lists. The
// entry and the status's favourited_by count change first and are rolled back
// if the server refuses.
func (a *sourceActions) Favourite(id string) error {
	state := a.orch.State()
	entityType := a.src.Path.EntityType

	var (
		statusID string
		on       bool
	)
	switch entityType {
	case model.TypeStatuses:
		s, ok := entity.SelectEntity[model.Status](state, entityType, id)
		if !ok {
			return fmt.Errorf("favourite: status %s is not loaded", id)
		}
		statusID, on = s.ID, !s.Favourited
	case model.TypeNotifications:
		n, ok := entity.SelectEntity[model.Notification](state, entityType, id)
		if !ok {
			return fmt.Errorf("favourite: notification %s is not loaded", id)
		}
		if n.Status == nil {
			return fmt.Errorf("favourite: notification %s has no status", id)
		}
		statusID, on = n.Status.ID, !n.Status.Favourited
	default:
		return fmt.Errorf("favourite: %s entries cannot be favourited", entityType)
	}

	call, diff := a.client.Favourite(statusID), 1
	if !on {
		call, diff = a.client.Unfavourite(statusID), -1
	}
	favs := entity.NewPath(model.TypeAccounts, model.FavouritesKey(statusID))
	return a.orch.IncrementEntity(a.ctx, favs, diff, func(ctx context.Context) error {
		return a.orch.UpdateEntity(ctx, entityType, id, setFavourite(on), setFavourite(!on), call)
	})
}

func (a *sourceActions) Invalidate() {
	a.orch.Invalidate(a.src.Path)
}

// setFavourite returns an updater marking a status, or a notification's
// status, as favourited or not and adjusting its favourites count.
func setFavourite(on bool) entity.Updater {
	return func(e entity.Entity) entity.Entity {
		switch v := e.(type) {
		case model.Status:
			return favouriteStatus(v, on)
		case model.Notification:
			if v.Status != nil {
				s := favouriteStatus(*v.Status, on)
				v.Status = &s
			}
			return v
		}
		return e
	}
}

func favouriteStatus(s model.Status, on bool) model.Status {
	if s.Favourited == on {
		return s
	}
	s.Favourited = on
	if on {
		s.FavouritesCount++
	} else if s.FavouritesCount > 0 {
		s.FavouritesCount--
	}
	return s
}
