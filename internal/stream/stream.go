// Package stream follows a Mastodon streaming API connection and turns its
// events into store actions.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/metrics"
	"github.com/smileynet/fedicache/internal/model"
	"github.com/smileynet/fedicache/internal/schema"
)

// Streaming event names.
const (
	EventUpdate       = "update"
	EventStatusUpdate = "status.update"
	EventDelete       = "delete"
	EventNotification = "notification"
)

const handshakeTimeout = 15 * time.Second

// Event is one message on the wire. Payload is itself JSON for entity
// events and a bare id for deletes.
type Event struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// Dispatcher applies actions.
type Dispatcher interface {
	Dispatch(a entity.Action) *entity.State
}

// Targets names the lists streamed entities are prepended to. An empty path
// imports without touching any list.
type Targets struct {
	Updates       entity.Path
	Notifications entity.Path
}

var (
	statusSchema       = schema.NewJSON[model.Status]("status")
	notificationSchema = schema.NewJSON[model.Notification]("notification")
)

// Translate maps one event to the actions it implies. Events it does not
// know about yield no actions and no error.
func Translate(ev Event, t Targets) ([]entity.Action, error) {
	switch ev.Event {
	case EventUpdate:
		statuses, err := statusSchema.Parse([]byte(ev.Payload))
		if err != nil {
			return nil, err
		}
		return []entity.Action{importAt(statuses, model.TypeStatuses, t.Updates)}, nil
	case EventStatusUpdate:
		statuses, err := statusSchema.Parse([]byte(ev.Payload))
		if err != nil {
			return nil, err
		}
		return []entity.Action{entity.ImportEntities(statuses, model.TypeStatuses, "", entity.PositionUnspecified)}, nil
	case EventDelete:
		id := strings.TrimSpace(ev.Payload)
		if id == "" {
			return nil, errors.New("stream: delete event without id")
		}
		return []entity.Action{entity.DeleteEntities([]string{id}, model.TypeStatuses, entity.DeleteOptions{})}, nil
	case EventNotification:
		notes, err := notificationSchema.Parse([]byte(ev.Payload))
		if err != nil {
			return nil, err
		}
		return []entity.Action{importAt(notes, model.TypeNotifications, t.Notifications)}, nil
	}
	return nil, nil
}

func importAt(entities []entity.Entity, entityType string, p entity.Path) entity.Action {
	if p.ListKey == "" {
		return entity.ImportEntities(entities, entityType, "", entity.PositionUnspecified)
	}
	return entity.ImportEntities(entities, entityType, p.ListKey, entity.PositionStart)
}

// Client follows one stream.
type Client struct {
	base      *url.URL
	token     string
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       *zap.Logger
	metrics   *metrics.Collectors
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates the connection.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithReconnectDelay sets the pause between a dropped connection and the next dial.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnect = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics counts received events on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client for the instance at baseURL (http or https).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("stream: parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("stream: unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("stream: base URL %q has no host", baseURL)
	}
	c := &Client{
		base:      u,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		reconnect: 5 * time.Second,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the websocket address of stream.
func (c *Client) URL(stream string) string {
	u := *c.base
	u.Path = c.base.Path + "/api/v1/streaming"
	q := url.Values{}
	q.Set("stream", stream)
	u.RawQuery = q.Encode()
	return u.String()
}

// Run follows stream and dispatches the actions of every event until ctx is
// done, reconnecting after the configured delay whenever the connection drops.
// It returns ctx.Err().
func (c *Client) Run(ctx context.Context, stream string, d Dispatcher, t Targets) error {
	_ = retry.Do(
		func() error {
			return c.follow(ctx, stream, d, t)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(c.reconnect),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("stream disconnected", zap.String("stream", stream), zap.Uint("attempt", n+1), zap.Duration("retry_in", c.reconnect), zap.Error(err))
		}),
		retry.LastErrorOnly(true),
	)
	return ctx.Err()
}

// follow runs one connection until it fails or ctx ends.
func (c *Client) follow(ctx context.Context, stream string, d Dispatcher, t Targets) error {
	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.URL(stream), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream: dial: status=%d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close()
	c.log.Info("stream connected", zap.String("stream", stream))

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}
		c.handle(data, d, t)
	}
}

func (c *Client) handle(data []byte, d Dispatcher, t Targets) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("stream: malformed event", zap.Error(err))
		return
	}
	if ev.Event == "" {
		return
	}
	c.metrics.StreamEvent(ev.Event)
	actions, err := Translate(ev, t)
	if err != nil {
		c.log.Warn("stream: dropping event", zap.String("event", ev.Event), zap.Error(err))
		return
	}
	for _, a := range actions {
		d.Dispatch(a)
	}
}
