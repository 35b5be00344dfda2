// Package storemetrics exposes the property store's §4.8 counters as
// Prometheus collectors, mirroring this codebase's per-concern
// counter/gauge layout for services that scrape their own metrics.
package storemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds one store's collectors. Construct one per Store so that
// two stores in the same process don't collide on a shared registry.
type Metrics struct {
	Registry *prometheus.Registry

	TasksScheduled     prometheus.Counter
	FastTrackHits      prometheus.Counter
	RedundantIdempotent prometheus.Counter
	UselessPartial     prometheus.Counter
	FallbacksUsed      prometheus.Counter
	ScheduledLazy      prometheus.Counter
	QuiescenceCount    prometheus.Counter
	ResolvedSCCs       prometheus.Counter
	OpenJobs           prometheus.Gauge
	WorkerFailures     prometheus.Counter
}

// New builds a Metrics set registered against a fresh, store-local
// registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TasksScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "tasks_scheduled_total",
			Help: "Total number of compute tasks scheduled.",
		}),
		FastTrackHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "fast_track_hits_total",
			Help: "Total number of queries answered by a fast-track approximation.",
		}),
		RedundantIdempotent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "redundant_idempotent_total",
			Help: "Total number of IdempotentResults dropped because a value already existed.",
		}),
		UselessPartial: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "useless_partial_total",
			Help: "Total number of PartialResults whose update function returned nothing.",
		}),
		FallbacksUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "fallbacks_used_total",
			Help: "Total number of fallback values injected at quiescence.",
		}),
		ScheduledLazy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "scheduled_lazy_total",
			Help: "Total number of lazy computations triggered.",
		}),
		QuiescenceCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "quiescence_total",
			Help: "Total number of times the open-job counter reached zero.",
		}),
		ResolvedSCCs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "resolved_sccs_total",
			Help: "Total number of closed strongly-connected components resolved.",
		}),
		OpenJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "store", Name: "open_jobs",
			Help: "Current number of in-flight tasks plus queued updates.",
		}),
		WorkerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "worker_failures_total",
			Help: "Total number of uncaught computation failures recorded.",
		}),
	}
	reg.MustRegister(
		m.TasksScheduled, m.FastTrackHits, m.RedundantIdempotent, m.UselessPartial,
		m.FallbacksUsed, m.ScheduledLazy, m.QuiescenceCount, m.ResolvedSCCs,
		m.OpenJobs, m.WorkerFailures,
	)
	return m
}
