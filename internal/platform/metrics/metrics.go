package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	Decisions          *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	Throttled          *prometheus.CounterVec
	Tombstones         prometheus.Counter
	RetentionDeletes   prometheus.Counter
	SweepDuration      prometheus.Histogram
	AuditWriteFailures prometheus.Counter
	CASRetries         prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_decisions_total",
			Help: "Authorization decisions by kind and outcome",
		}, []string{"kind", "outcome"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "talentgate_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		}, []string{"provider"}),
		Throttled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_throttled_total",
			Help: "Requests throttled by the token bucket, per provider",
		}, []string{"provider"}),
		Tombstones: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_tombstones_total",
			Help: "Records tombstoned by the notification-deadline sweep",
		}),
		RetentionDeletes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_retention_deletes_total",
			Help: "Records hard-deleted by the retention sweep",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "talentgate_sweep_duration_seconds",
			Help:    "Duration of scheduler sweep runs",
			Buckets: prometheus.DefBuckets,
		}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_audit_write_failures_total",
			Help: "Audit entries that could not be persisted; nonzero means the trail has gaps",
		}),
		CASRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_cas_retries_total",
			Help: "Optimistic-concurrency conflicts retried against the profile store",
		}),
	}
}
