// Package model defines the entity shapes returned by Mastodon-compatible servers.
package model

import "time"

// Entity types, as used in entity.Path.
const (
	TypeAccounts      = "Account"
	TypeStatuses      = "Status"
	TypeNotifications = "Notification"
)

// Account is a user profile.
type Account struct {
	ID             string    `json:"id" validate:"required"`
	Username       string    `json:"username" validate:"required"`
	Acct           string    `json:"acct" validate:"required"`
	DisplayName    string    `json:"display_name"`
	URL            string    `json:"url" validate:"omitempty,url"`
	Note           string    `json:"note"`
	Avatar         string    `json:"avatar" validate:"omitempty,url"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
	FollowersCount int       `json:"followers_count" validate:"gte=0"`
	FollowingCount int       `json:"following_count" validate:"gte=0"`
	StatusesCount  int       `json:"statuses_count" validate:"gte=0"`
	CreatedAt      time.Time `json:"created_at"`
}

func (a Account) EntityID() string { return a.ID }

// Visibility values accepted for statuses.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// Status is a post.
type Status struct {
	ID              string    `json:"id" validate:"required"`
	URI             string    `json:"uri"`
	URL             string    `json:"url,omitempty" validate:"omitempty,url"`
	CreatedAt       time.Time `json:"created_at"`
	Account         Account   `json:"account"`
	Content         string    `json:"content"`
	SpoilerText     string    `json:"spoiler_text"`
	Visibility      string    `json:"visibility" validate:"omitempty,oneof=public unlisted private direct"`
	Sensitive       bool      `json:"sensitive"`
	InReplyToID     string    `json:"in_reply_to_id,omitempty"`
	RepliesCount    int       `json:"replies_count" validate:"gte=0"`
	ReblogsCount    int       `json:"reblogs_count" validate:"gte=0"`
	FavouritesCount int       `json:"favourites_count" validate:"gte=0"`
	Favourited      bool      `json:"favourited"`
	Reblogged       bool      `json:"reblogged"`
	Reblog          *Status   `json:"reblog,omitempty"`
}

func (s Status) EntityID() string { return s.ID }

// FavouritesKey is the list key whose total count mirrors a status's favourites.
func FavouritesKey(statusID string) string {
	return "favourited_by:" + statusID
}

// Notification types.
const (
	NotificationMention   = "mention"
	NotificationReblog    = "reblog"
	NotificationFavourite = "favourite"
	NotificationFollow    = "follow"
	NotificationPoll      = "poll"
	NotificationStatus    = "status"
)

// Notification is an event addressed to the authenticated user.
type Notification struct {
	ID        string    `json:"id" validate:"required"`
	Type      string    `json:"type" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

func (n Notification) EntityID() string { return n.ID }
