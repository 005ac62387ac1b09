// Package metrics defines the Prometheus collectors of the auth service and
// its sync worker. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "devhub_auth"

// CacheLookups counts cache-aside reads.
// Labels:
//   - kind: "user", "user_email" or "token"
//   - result: "hit", "miss", "tombstone" or "error"
var CacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache-aside lookups, by key kind and result.",
	},
	[]string{"kind", "result"},
)

// SessionOps counts session manager operations.
// Labels:
//   - op: login, register, refresh, logout, logout_all, password_reset
//   - outcome: "ok" or the error code returned to the caller
var SessionOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_operations_total",
		Help:      "Session operations, by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

// EventsPublished counts write-behind events handed to the broker.
var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Pending update events published, by type and result.",
	},
	[]string{"type", "result"},
)

var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Events applied to the credential store by the sync worker.",
	},
	[]string{"type"},
)

// EventsFailed counts events the worker could not apply.
// Label reason: "store_error" (requeued), "decode" or "poison" (dropped).
var EventsFailed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_failed_total",
		Help:      "Events the sync worker failed to apply, by type and reason.",
	},
	[]string{"type", "reason"},
)

var EventProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_processing_duration_seconds",
		Help:      "Duration of one event application against the credential store.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"type"},
)

var JanitorDeleted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "janitor_tokens_deleted_total",
		Help:      "Expired or revoked token rows removed by the janitor.",
	},
)

var RateLimited = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the token bucket, by route.",
	},
	[]string{"route"},
)
