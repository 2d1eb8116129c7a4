// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StepTransitionsTotal tracks workflow step transitions by outcome.
	StepTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_step_transitions_total",
			Help: "Workflow step transitions by source, target and result",
		},
		[]string{"from", "to", "result"},
	)

	// WorkflowErrorsTotal tracks classified workflow errors.
	WorkflowErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_errors_total",
			Help: "Workflow errors by kind and step",
		},
		[]string{"kind", "step"},
	)

	// CollaboratorDuration tracks external collaborator call latency.
	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_collaborator_duration_seconds",
			Help:    "External collaborator call duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"collaborator", "status"},
	)

	// AttendeeCacheLookups tracks attendee validation cache hits and misses.
	AttendeeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendee_cache_lookups_total",
			Help: "Attendee validation cache lookups by result",
		},
		[]string{"result"},
	)

	// AttendeeCacheEvictions tracks entries removed by capacity eviction.
	AttendeeCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendee_cache_evictions_total",
			Help: "Attendee validation cache entries evicted for capacity",
		},
	)

	// ContextCompressionsTotal tracks conversation context compressions.
	ContextCompressionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_context_compressions_total",
			Help: "Conversation contexts compressed",
		},
	)

	// PersistenceFailuresTotal tracks failed background state saves.
	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_persistence_failures_total",
			Help: "Background workflow state persistence failures",
		},
		[]string{"reason"},
	)

	// PersistQueueDepth tracks snapshots waiting to be saved.
	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_persist_queue_depth",
			Help: "Session snapshots waiting to be saved",
		},
	)

	// ActiveSessions tracks sessions held in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_sessions_active",
			Help: "Number of workflow sessions held in memory",
		},
	)

	// EventStreamConnections tracks open workflow event streams.
	EventStreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_event_stream_connections",
			Help: "Open server-sent workflow event streams",
		},
	)

	// MeetingsCreatedTotal tracks meetings created by type.
	MeetingsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetings_created_total",
			Help: "Total meetings created",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTransition records the outcome of a step transition.
func RecordTransition(from, to string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	StepTransitionsTotal.WithLabelValues(from, to, result).Inc()
}

// RecordCollaboratorCall records the latency of an external collaborator call.
func RecordCollaboratorCall(collaborator string, err error, duration float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CollaboratorDuration.WithLabelValues(collaborator, status).Observe(duration)
}

// RecordCacheLookup records an attendee cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		AttendeeCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	AttendeeCacheLookups.WithLabelValues("miss").Inc()
}
