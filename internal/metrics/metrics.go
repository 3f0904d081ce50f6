package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinicsync"

// Item outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeRetried   = "retried"
	OutcomeExhausted = "exhausted"
	OutcomeUnknown   = "unknown_type"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	queueUnprocessed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_unprocessed",
			Help:      "Unprocessed sync queue items per store side and tenant.",
		},
		[]string{"side", "tenant"},
	)

	queueUnknownType = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_unknown_type",
			Help:      "Pending items left in the queue because no handler knows their entity type.",
		},
		[]string{"side", "tenant"},
	)

	itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Sync queue items handled, by direction, entity type and outcome.",
		},
		[]string{"direction", "entity_type", "outcome"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of full synchronization ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	retentionDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Processed queue items removed by retention cleanup.",
		},
		[]string{"side"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, queueUnprocessed, queueUnknownType, itemsTotal, tickDuration, retentionDeleted)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func SetUnprocessed(side, tenant string, count int64) {
	queueUnprocessed.WithLabelValues(side, tenant).Set(float64(count))
}

func SetUnknownType(side, tenant string, count int) {
	queueUnknownType.WithLabelValues(side, tenant).Set(float64(count))
}

func IncItem(direction, entityType, outcome string) {
	itemsTotal.WithLabelValues(direction, entityType, outcome).Inc()
}

func ObserveTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

func AddRetentionDeleted(side string, n int64) {
	if n > 0 {
		retentionDeleted.WithLabelValues(side).Add(float64(n))
	}
}
