package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector manages Prometheus metrics for the emergency response service.
type Collector struct {
	callsCreated      *prometheus.CounterVec
	statusUpdates     *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	sessionsDropped   prometheus.Counter
	dashboardSessions prometheus.Gauge
	userSessions      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
}

// NewCollector registers and returns the service metrics.
func NewCollector() *Collector {
	return &Collector{
		callsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_calls_created_total",
			Help: "Total number of emergency calls created, by service",
		}, []string{"service"}),
		statusUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_call_status_updates_total",
			Help: "Total number of call status updates, by actor (user or personnel)",
		}, []string{"actor"}),
		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Total number of events published through the relay, by type",
		}, []string{"type"}),
		sessionsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_dropped_total",
			Help: "Total number of sessions dropped for slow or dead connections",
		}),
		dashboardSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_dashboard_sessions",
			Help: "Number of currently connected dashboard sessions",
		}),
		userSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_user_sessions",
			Help: "Number of currently connected user-scoped sessions",
		}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, by method, path and status",
		}, []string{"method", "path", "status"}),
	}
}

// CallCreated records one created call.
func (c *Collector) CallCreated(service string) {
	c.callsCreated.WithLabelValues(service).Inc()
}

// StatusUpdated records one status update by the given actor.
func (c *Collector) StatusUpdated(actor string) {
	c.statusUpdates.WithLabelValues(actor).Inc()
}

// EventPublished records one relay publication.
func (c *Collector) EventPublished(eventType string) {
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

// SessionDropped records one dropped session.
func (c *Collector) SessionDropped() {
	c.sessionsDropped.Inc()
}

// SetSessions updates the connected session gauges.
func (c *Collector) SetSessions(dashboard, user int) {
	c.dashboardSessions.Set(float64(dashboard))
	c.userSessions.Set(float64(user))
}

// HTTPRequest records one handled HTTP request.
func (c *Collector) HTTPRequest(method, path, status string) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
}
