// Package metrics defines the Prometheus collectors for the entity cache.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fedicache"

// Collectors groups every fedicache metric. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	ActionsDispatched *prometheus.CounterVec
	FetchFailures     *prometheus.CounterVec
	EntitiesImported  *prometheus.CounterVec
	StreamEvents      *prometheus.CounterVec
	APIRequests       *prometheus.HistogramVec
}

// New returns unregistered collectors.
func New() *Collectors {
	return &Collectors{
		ActionsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dispatched_total",
			Help:      "Actions dispatched to the store, by kind and entity type.",
		}, []string{"kind", "entity_type"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "List fetches that ended in failure, by entity type.",
		}, []string{"entity_type"}),
		EntitiesImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_imported_total",
			Help:      "Entities imported into the store, by entity type.",
		}, []string{"entity_type"}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Streaming events received, by event name.",
		}, []string{"event"}),
		APIRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of API requests, by method and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Register registers every collector on r.
func (c *Collectors) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.ActionsDispatched,
		c.FetchFailures,
		c.EntitiesImported,
		c.StreamEvents,
		c.APIRequests,
	} {
		if err := r.Register(col); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	return nil
}

// ActionDispatched counts one dispatched action.
func (c *Collectors) ActionDispatched(kind, entityType string) {
	if c == nil {
		return
	}
	c.ActionsDispatched.WithLabelValues(kind, entityType).Inc()
}

// FetchFailed counts one failed list fetch.
func (c *Collectors) FetchFailed(entityType string) {
	if c == nil {
		return
	}
	c.FetchFailures.WithLabelValues(entityType).Inc()
}

// Imported counts n imported entities.
func (c *Collectors) Imported(entityType string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.EntitiesImported.WithLabelValues(entityType).Add(float64(n))
}

// StreamEvent counts one streaming event.
func (c *Collectors) StreamEvent(event string) {
	if c == nil {
		return
	}
	c.StreamEvents.WithLabelValues(event).Inc()
}

// ObserveRequest records the latency of one API request.
func (c *Collectors) ObserveRequest(method, status string, seconds float64) {
	if c == nil {
		return
	}
	c.APIRequests.WithLabelValues(method, status).Observe(seconds)
}
