package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/smileynet/fedicache/internal/orchestrator"
)

// list returns a PageFetcher over path. The first page uses query; later pages
// follow the absolute URLs the server advertised.
func (c *Client) list(path string, query url.Values) orchestrator.PageFetcher {
	return func(ctx context.Context, cursor string) (orchestrator.Response, error) {
		target := c.endpoint(path, query)
		if cursor != "" {
			u, err := c.cursorURL(cursor)
			if err != nil {
				return orchestrator.Response{}, err
			}
			target = u
		}
		return c.do(ctx, request{method: http.MethodGet, target: target})
	}
}

// cursorURL resolves a page cursor, refusing hosts other than the instance's
// so the bearer token never leaves it.
func (c *Client) cursorURL(cursor string) (*url.URL, error) {
	u, err := c.base.Parse(cursor)
	if err != nil {
		return nil, fmt.Errorf("api: invalid page cursor %q: %w", cursor, err)
	}
	if u.Scheme != c.base.Scheme || u.Host != c.base.Host {
		return nil, fmt.Errorf("api: page cursor %q is not on %s", cursor, c.base.Host)
	}
	return u, nil
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// HomeTimeline pages through the authenticated user's home timeline.
func (c *Client) HomeTimeline(limit int) orchestrator.PageFetcher {
	return c.list("/api/v1/timelines/home", limitQuery(limit))
}

// PublicTimeline pages through the federated timeline, or the local one when local is set.
func (c *Client) PublicTimeline(local bool, limit int) orchestrator.PageFetcher {
	q := limitQuery(limit)
	if local {
		q.Set("local", "true")
	}
	return c.list("/api/v1/timelines/public", q)
}

// AccountStatuses pages through the statuses posted by an account.
func (c *Client) AccountStatuses(accountID string, limit int) orchestrator.PageFetcher {
	return c.list("/api/v1/accounts/"+url.PathEscape(accountID)+"/statuses", limitQuery(limit))
}

// Followers pages through the followers of an account.
func (c *Client) Followers(accountID string, limit int) orchestrator.PageFetcher {
	return c.list("/api/v1/accounts/"+url.PathEscape(accountID)+"/followers", limitQuery(limit))
}

// FavouritedBy pages through the accounts that favourited a status.
func (c *Client) FavouritedBy(statusID string, limit int) orchestrator.PageFetcher {
	return c.list("/api/v1/statuses/"+url.PathEscape(statusID)+"/favourited_by", limitQuery(limit))
}

// Notifications pages through the authenticated user's notifications.
func (c *Client) Notifications(limit int) orchestrator.PageFetcher {
	return c.list("/api/v1/notifications", limitQuery(limit))
}

// Status fetches one status.
func (c *Client) Status(id string) orchestrator.Fetcher {
	return func(ctx context.Context) (orchestrator.Response, error) {
		return c.do(ctx, request{method: http.MethodGet, target: c.endpoint("/api/v1/statuses/"+url.PathEscape(id), nil)})
	}
}

// VerifyCredentials fetches the authenticated account.
func (c *Client) VerifyCredentials() orchestrator.Fetcher {
	return func(ctx context.Context) (orchestrator.Response, error) {
		return c.do(ctx, request{method: http.MethodGet, target: c.endpoint("/api/v1/accounts/verify_credentials", nil)})
	}
}

// NewStatus is the body of a status creation request.
type NewStatus struct {
	Status      string `json:"status"`
	Visibility  string `json:"visibility,omitempty"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
	SpoilerText string `json:"spoiler_text,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
}

// CreateStatus posts a status. One Idempotency-Key is generated per returned
// Fetcher and reused across retries, so a retried post is not duplicated.
func (c *Client) CreateStatus(s NewStatus) orchestrator.Fetcher {
	key := c.newKey()
	return func(ctx context.Context) (orchestrator.Response, error) {
		return c.do(ctx, request{
			method:  http.MethodPost,
			target:  c.endpoint("/api/v1/statuses", nil),
			body:    s,
			headers: http.Header{"Idempotency-Key": {key}},
		})
	}
}

// DeleteStatus deletes a status.
func (c *Client) DeleteStatus(id string) orchestrator.Call {
	return c.call(http.MethodDelete, "/api/v1/statuses/"+url.PathEscape(id))
}

// Favourite favourites a status.
func (c *Client) Favourite(id string) orchestrator.Call {
	return c.call(http.MethodPost, "/api/v1/statuses/"+url.PathEscape(id)+"/favourite")
}

// Unfavourite removes a favourite from a status.
func (c *Client) Unfavourite(id string) orchestrator.Call {
	return c.call(http.MethodPost, "/api/v1/statuses/"+url.PathEscape(id)+"/unfavourite")
}

// DismissNotification dismisses one notification.
func (c *Client) DismissNotification(id string) orchestrator.Call {
	return c.call(http.MethodPost, "/api/v1/notifications/"+url.PathEscape(id)+"/dismiss")
}

func (c *Client) call(method, path string) orchestrator.Call {
	return func(ctx context.Context) error {
		_, err := c.do(ctx, request{method: method, target: c.endpoint(path, nil)})
		return err
	}
}

func newIdempotencyKey() string {
	return uuid.NewString()
}
