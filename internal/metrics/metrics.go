package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vibeops",
		Subsystem: "feed",
		Name:      "build_seconds",
		Help:      "Time to score, rank and allocate one feed page.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	FeedCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vibeops",
		Subsystem: "feed",
		Name:      "candidates",
		Help:      "Candidates considered per feed build.",
		Buckets:   prometheus.LinearBuckets(0, 100, 11),
	})
	FeedDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "feed",
		Name:      "deferred_items_total",
		Help:      "Items pushed to a later page by a diversity cap.",
	})
	ConfigSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "algorithm",
		Name:      "config_saves_total",
		Help:      "Algorithm config save attempts by type and outcome.",
	}, []string{"config_type", "outcome"})
	ConfigCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "algorithm",
		Name:      "config_cache_lookups_total",
		Help:      "Active config snapshot lookups by result (hit, miss, error).",
	}, []string{"result"})
	PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "payouts",
		Name:      "transitions_total",
		Help:      "Payout request status transitions by target status and outcome.",
	}, []string{"to", "outcome"})
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Ops events broadcast to user channels.",
	}, []string{"event", "outcome"})
	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduler job executions by job and outcome.",
	}, []string{"job", "outcome"})
	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vibeops",
		Subsystem: "streams",
		Name:      "published_total",
		Help:      "Envelopes appended to the ops event stream by event type and outcome.",
	}, []string{"event", "outcome"})
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vibeops",
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "HTTP request latency by route, method and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
	BalanceMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vibeops",
		Subsystem: "payouts",
		Name:      "balance_mismatches",
		Help:      "Creators whose balance disagrees with the payout ledger at the last reconciliation.",
	})
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
