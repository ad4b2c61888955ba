package store

import (
	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/metrics"
)

// Logging logs every dispatched action at debug level and fetch failures at warn.
func Logging(log *zap.Logger) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(a entity.Action) Change {
			c := next(a)
			if a == nil {
				return c
			}
			fields := []zap.Field{
				zap.String("kind", string(a.Kind())),
				zap.String("entity_type", a.EntityType()),
				zap.Bool("changed", c.Changed()),
			}
			switch a := a.(type) {
			case entity.FetchFailAction:
				log.Warn("fetch failed", append(fields, zap.String("list", a.Path.ListKey), zap.Error(a.Err))...)
				return c
			case entity.ImportAction:
				fields = append(fields, zap.String("list", a.Path.ListKey), zap.Int("entities", len(a.Entities)))
			case entity.FetchSuccessAction:
				fields = append(fields, zap.String("list", a.Path.ListKey), zap.Int("entities", len(a.Entities)), zap.Bool("overwrite", a.Overwrite))
			case entity.DeleteAction:
				fields = append(fields, zap.Strings("ids", a.IDs))
			case entity.DismissAction:
				fields = append(fields, zap.String("list", a.Path.ListKey), zap.Strings("ids", a.IDs))
			case entity.IncrementAction:
				fields = append(fields, zap.String("list", a.Path.ListKey), zap.Int("diff", a.Diff))
			}
			log.Debug("dispatch", fields...)
			return c
		}
	}
}

// Metrics counts dispatched actions, fetch failures and imported entities.
func Metrics(m *metrics.Collectors) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(a entity.Action) Change {
			c := next(a)
			if a == nil {
				return c
			}
			m.ActionDispatched(string(a.Kind()), a.EntityType())
			switch a := a.(type) {
			case entity.FetchFailAction:
				m.FetchFailed(a.Path.EntityType)
			case entity.ImportAction:
				m.Imported(a.Path.EntityType, len(a.Entities))
			case entity.FetchSuccessAction:
				m.Imported(a.Path.EntityType, len(a.Entities))
			}
			return c
		}
	}
}
