// Package inspect serves a read-mostly HTTP view of a running entity store.
package inspect

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
)

const shutdownTimeout = 5 * time.Second

// Store is the part of the entity store the server reads and invalidates.
type Store interface {
	State() *entity.State
	Dispatch(a entity.Action) *entity.State
}

// Server exposes health, metrics and cache contents.
type Server struct {
	store    Store
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New returns a server over store.
func New(store Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		gatherer: prometheus.DefaultGatherer,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(s.requestLogger(), gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	engine.GET("/caches", s.handleCaches)
	engine.GET("/entities/:type/:id", s.handleEntity)
	engine.GET("/lists/:type/*key", s.handleList)
	engine.POST("/invalidate/:type/*key", s.handleInvalidate)
	return engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("inspector listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("inspect request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CacheSummary is one entry of GET /caches.
type CacheSummary struct {
	Type     string   `json:"type"`
	Entities int      `json:"entities"`
	Lists    []string `json:"lists"`
}

func (s *Server) handleCaches(c *gin.Context) {
	st := s.store.State()
	out := make([]CacheSummary, 0)
	for _, typ := range st.EntityTypes() {
		cache, _ := st.Cache(typ)
		out = append(out, CacheSummary{Type: typ, Entities: cache.Len(), Lists: cache.ListKeys()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleEntity(c *gin.Context) {
	e, ok := entity.SelectEntity[entity.Entity](s.store.State(), c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// ListView is the body of GET /lists/:type/*key.
type ListView struct {
	Path          string     `json:"path"`
	IDs           []string   `json:"ids"`
	Fetching      bool       `json:"fetching"`
	Fetched       bool       `json:"fetched"`
	Invalid       bool       `json:"invalid"`
	Error         string     `json:"error,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	Next          string     `json:"next,omitempty"`
	Prev          string     `json:"prev,omitempty"`
	TotalCount    *int       `json:"total_count,omitempty"`
}

func (s *Server) handleList(c *gin.Context) {
	p := pathParam(c)
	cache, ok := s.store.State().Cache(p.EntityType)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "list not found"})
		return
	}
	l, ok := cache.List(p.ListKey)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "list not found"})
		return
	}
	ls := l.State()
	view := ListView{
		Path:          p.String(),
		IDs:           l.IDs(),
		Fetching:      ls.Fetching,
		Fetched:       ls.Fetched,
		Invalid:       ls.Invalid,
		LastFetchedAt: ls.LastFetchedAt,
		Next:          ls.Next,
		Prev:          ls.Prev,
		TotalCount:    ls.TotalCount,
	}
	if ls.Error != nil {
		view.Error = ls.Error.Error()
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleInvalidate(c *gin.Context) {
	p := pathParam(c)
	if !p.HasList() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "list key required"})
		return
	}
	s.store.Dispatch(entity.InvalidateEntityList(p.EntityType, p.ListKey))
	c.Status(http.StatusNoContent)
}

func pathParam(c *gin.Context) entity.Path {
	return entity.Path{
		EntityType: c.Param("type"),
		ListKey:    strings.TrimPrefix(c.Param("key"), "/"),
	}
}
