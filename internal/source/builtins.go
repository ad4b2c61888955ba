package source

import (
	"github.com/smileynet/fedicache/internal/api"
	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/model"
	"github.com/smileynet/fedicache/internal/schema"
)

// Shared schemas for the built-in sources.
var (
	Statuses      = schema.NewJSON[model.Status]("status")
	Accounts      = schema.NewJSON[model.Account]("account")
	Notifications = schema.NewJSON[model.Notification]("notification")
)

// RegisterBuiltins registers the standard Mastodon lists, fetching pages of
// pageSize items through c.
func RegisterBuiltins(reg *Registry, c *api.Client, pageSize int) {
	reg.Register("home", func(string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeStatuses, "home"),
			Fetch:  c.HomeTimeline(pageSize),
			Schema: Statuses,
			Stream: "user",
		}, nil
	})
	reg.Register("public", func(string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeStatuses, "public"),
			Fetch:  c.PublicTimeline(false, pageSize),
			Schema: Statuses,
			Stream: "public",
		}, nil
	})
	reg.Register("local", func(string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeStatuses, "public", "local"),
			Fetch:  c.PublicTimeline(true, pageSize),
			Schema: Statuses,
			Stream: "public:local",
		}, nil
	})
	reg.Register("notifications", func(string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeNotifications, "all"),
			Fetch:  c.Notifications(pageSize),
			Schema: Notifications,
			Stream: "user:notification",
		}, nil
	})
	reg.RegisterParam("account", func(id string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeStatuses, "account", id),
			Fetch:  c.AccountStatuses(id, pageSize),
			Schema: Statuses,
		}, nil
	})
	reg.RegisterParam("followers", func(id string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeAccounts, "followers", id),
			Fetch:  c.Followers(id, pageSize),
			Schema: Accounts,
		}, nil
	})
	reg.RegisterParam("favourited_by", func(id string) (Source, error) {
		return Source{
			Path:   entity.NewPath(model.TypeAccounts, model.FavouritesKey(id)),
			Fetch:  c.FavouritedBy(id, pageSize),
			Schema: Accounts,
		}, nil
	})
}
