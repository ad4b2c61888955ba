package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smileynet/fedicache/internal/metrics"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetry(3, time.Millisecond)}, opts...)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "mastodon.example", "ftp://mastodon.example", "://bad"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) error = nil, want error", raw)
		}
	}
}

func TestClient_SendsTokenAndLimit(t *testing.T) {
	// Given: a server recording the request
	var gotAuth, gotPath, gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[]`)
	}), WithToken("s3cret"))

	// When: the home timeline's first page is fetched
	resp, err := c.HomeTimeline(20)(context.Background(), "")

	// Then: the bearer token and limit are sent
	if err != nil {
		t.Fatalf("HomeTimeline() error = %v", err)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer s3cret")
	}
	if gotPath != "/api/v1/timelines/home" {
		t.Errorf("path = %q, want /api/v1/timelines/home", gotPath)
	}
	if gotQuery != "limit=20" {
		t.Errorf("query = %q, want limit=20", gotQuery)
	}
	if string(resp.Body) != "[]" {
		t.Errorf("Body = %q, want []", resp.Body)
	}
}

func TestClient_PublicTimelineLocal(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[]`)
	}))

	if _, err := c.PublicTimeline(true, 0)(context.Background(), ""); err != nil {
		t.Fatalf("PublicTimeline() error = %v", err)
	}
	if gotQuery != "local=true" {
		t.Errorf("query = %q, want local=true", gotQuery)
	}
}

func TestClient_PageMetadata(t *testing.T) {
	// Given: a page advertising next and prev links and a total count
	var srvURL string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<`+srvURL+`/api/v1/timelines/home?max_id=7>; rel="next", <`+srvURL+`/api/v1/timelines/home?min_id=9>; rel="prev"`)
		w.Header().Set("X-Total-Count", "42")
		_, _ = io.WriteString(w, `[]`)
	}))
	srvURL = srv.URL

	// When: the first page is fetched
	resp, err := c.HomeTimeline(0)(context.Background(), "")

	// Then: cursors and count are extracted
	if err != nil {
		t.Fatalf("HomeTimeline() error = %v", err)
	}
	if want := srv.URL + "/api/v1/timelines/home?max_id=7"; resp.Next != want {
		t.Errorf("Next = %q, want %q", resp.Next, want)
	}
	if want := srv.URL + "/api/v1/timelines/home?min_id=9"; resp.Prev != want {
		t.Errorf("Prev = %q, want %q", resp.Prev, want)
	}
	if resp.TotalCount == nil || *resp.TotalCount != 42 {
		t.Errorf("TotalCount = %v, want 42", resp.TotalCount)
	}
}

func TestClient_FollowsCursor(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[]`)
	}))

	if _, err := c.HomeTimeline(20)(context.Background(), srv.URL+"/api/v1/timelines/home?max_id=7"); err != nil {
		t.Fatalf("HomeTimeline() error = %v", err)
	}
	if gotQuery != "max_id=7" {
		t.Errorf("query = %q, want max_id=7", gotQuery)
	}
}

func TestClient_RejectsForeignCursor(t *testing.T) {
	// Given: a server that must not be reached
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), WithToken("s3cret"))

	// When: a cursor on another host is followed
	_, err := c.HomeTimeline(0)(context.Background(), "https://elsewhere.example/api/v1/timelines/home?max_id=1")

	// Then: the call is refused before any request
	if err == nil {
		t.Fatal("error = nil, want foreign host error")
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0", calls.Load())
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	// Given: a server failing twice with 503
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":"1"}`)
	}))

	// When: a status is fetched
	resp, err := c.Status("1")(context.Background())

	// Then: the third attempt succeeds
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if string(resp.Body) != `{"id":"1"}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Status("1")(context.Background())

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Kind != KindRateLimited {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, KindRateLimited)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	// Given: a server answering 404 with a Mastodon error body
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"Record not found"}`)
	}))

	// When: a status is fetched
	_, err := c.Status("404")(context.Background())

	// Then: one attempt, the sentinel matches and the message is kept
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false for %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Errorf("errors.Is(err, ErrUnauthorized) = true, want false")
	}
	if !strings.Contains(err.Error(), "Record not found") {
		t.Errorf("error = %q, want server message", err.Error())
	}
}

func TestClient_StopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Status("1")(ctx)

	if err == nil {
		t.Fatal("error = nil, want error")
	}
	if calls.Load() > 1 {
		t.Errorf("calls = %d, want at most 1", calls.Load())
	}
}

func TestClient_CreateStatusReusesIdempotencyKey(t *testing.T) {
	// Given: a server that fails the first post
	var (
		mu     sync.Mutex
		keys   []string
		bodies []NewStatus
	)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s NewStatus
		_ = json.NewDecoder(r.Body).Decode(&s)
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		bodies = append(bodies, s)
		n := len(keys)
		mu.Unlock()
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/statuses" {
			t.Errorf("request = %s %s, want POST /api/v1/statuses", r.Method, r.URL.Path)
		}
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"id":"100"}`)
	}), WithIdempotencyKeys(func() string { return "key-1" }))

	// When: a status is posted
	_, err := c.CreateStatus(NewStatus{Status: "hello", Visibility: "public"})(context.Background())

	// Then: both attempts carry the same key and body
	if err != nil {
		t.Fatalf("CreateStatus() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("attempts = %d, want 2", len(keys))
	}
	for i, k := range keys {
		if k != "key-1" {
			t.Errorf("attempt %d Idempotency-Key = %q, want key-1", i, k)
		}
	}
	if bodies[1].Status != "hello" || bodies[1].Visibility != "public" {
		t.Errorf("body = %+v", bodies[1])
	}
}

func TestClient_CreateStatusGeneratesKey(t *testing.T) {
	var got string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Idempotency-Key")
		_, _ = io.WriteString(w, `{"id":"1"}`)
	}))

	if _, err := c.CreateStatus(NewStatus{Status: "x"})(context.Background()); err != nil {
		t.Fatalf("CreateStatus() error = %v", err)
	}
	if len(got) != 36 {
		t.Errorf("Idempotency-Key = %q, want a UUID", got)
	}
}

func TestClient_Calls(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) func(context.Context) error
		wantMethod string
		wantPath   string
	}{
		{"delete", func(c *Client) func(context.Context) error { return c.DeleteStatus("5") }, http.MethodDelete, "/api/v1/statuses/5"},
		{"favourite", func(c *Client) func(context.Context) error { return c.Favourite("5") }, http.MethodPost, "/api/v1/statuses/5/favourite"},
		{"unfavourite", func(c *Client) func(context.Context) error { return c.Unfavourite("5") }, http.MethodPost, "/api/v1/statuses/5/unfavourite"},
		{"dismiss", func(c *Client) func(context.Context) error { return c.DismissNotification("9") }, http.MethodPost, "/api/v1/notifications/9/dismiss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod, gotPath = r.Method, r.URL.Path
				_, _ = io.WriteString(w, `{}`)
			}))

			if err := tt.call(c)(context.Background()); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if gotMethod != tt.wantMethod || gotPath != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", gotMethod, gotPath, tt.wantMethod, tt.wantPath)
			}
		})
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}), WithMetrics(m))

	if _, err := c.Notifications(0)(context.Background(), ""); err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if got := testutil.CollectAndCount(m.APIRequests); got != 1 {
		t.Errorf("request series = %d, want 1", got)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status    int
		want      Kind
		temporary bool
	}{
		{401, KindUnauthorized, false},
		{403, KindForbidden, false},
		{404, KindNotFound, false},
		{410, KindNotFound, false},
		{422, KindOther, false},
		{429, KindRateLimited, true},
		{500, KindServer, true},
		{503, KindServer, true},
	}
	for _, tt := range tests {
		e := &Error{Kind: kindOf(tt.status), Status: tt.status}
		if e.Kind != tt.want {
			t.Errorf("kindOf(%d) = %v, want %v", tt.status, e.Kind, tt.want)
		}
		if e.Temporary() != tt.temporary {
			t.Errorf("Temporary() for %d = %v, want %v", tt.status, e.Temporary(), tt.temporary)
		}
	}
}

func TestParseLinks(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   map[string]string
	}{
		{"empty", nil, map[string]string{}},
		{
			"next and prev",
			[]string{`<https://a.example/x?max_id=1>; rel="next", <https://a.example/x?min_id=2>; rel="prev"`},
			map[string]string{"next": "https://a.example/x?max_id=1", "prev": "https://a.example/x?min_id=2"},
		},
		{
			"unquoted rel across headers",
			[]string{`<https://a.example/1>; rel=next`, `<https://a.example/2>; rel=prev`},
			map[string]string{"next": "https://a.example/1", "prev": "https://a.example/2"},
		},
		{
			"multiple rels",
			[]string{`<https://a.example/1>; rel="next last"`},
			map[string]string{"next": "https://a.example/1", "last": "https://a.example/1"},
		},
		{
			"comma inside target",
			[]string{`<https://a.example/x?tags=go,fedi&max_id=1>; rel="next", <https://a.example/x?min_id=2>; rel="prev"`},
			map[string]string{"next": "https://a.example/x?tags=go,fedi&max_id=1", "prev": "https://a.example/x?min_id=2"},
		},
		{
			"first target wins",
			[]string{`<https://a.example/1>; rel="next"`, `<https://a.example/2>; rel="next"`},
			map[string]string{"next": "https://a.example/1"},
		},
		{
			"malformed ignored",
			[]string{`https://a.example/1; rel="next"`, `<https://a.example/2>`},
			map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLinks(tt.values)
			if len(got) != len(tt.want) {
				t.Fatalf("parseLinks() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseLinks()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	tests := []struct {
		name string
		opts func(h *http.Client) []Option
	}{
		{"timeout after client", func(h *http.Client) []Option {
			return []Option{WithHTTPClient(h), WithTimeout(time.Second)}
		}},
		{"timeout before client", func(h *http.Client) []Option {
			return []Option{WithTimeout(time.Second), WithHTTPClient(h)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an HTTP client shared with other code
			shared := &http.Client{Timeout: time.Minute}

			// When: a client is built with a timeout
			c, err := New("https://a.example", tt.opts(shared)...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			// Then: only the client's own copy carries the timeout
			if shared.Timeout != time.Minute {
				t.Errorf("shared Timeout = %v, want %v", shared.Timeout, time.Minute)
			}
			if c.http.Timeout != time.Second {
				t.Errorf("client Timeout = %v, want %v", c.http.Timeout, time.Second)
			}
			if c.http == shared {
				t.Error("client uses the shared *http.Client directly")
			}
		})
	}
}
