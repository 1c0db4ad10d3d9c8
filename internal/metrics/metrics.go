// Package metrics exposes the engine's Prometheus metrics:
// package-level collector vars, an init() registration block, a
// Handler() for the scrape endpoint, and a Timer helper for histogram
// observations covering commits, transactions, snapshots, and replay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommitsTotal counts completed commit attempts by outcome
	// ("committed" or "aborted").
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statehouse_commits_total",
			Help: "Total number of commit attempts by outcome",
		},
		[]string{"outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statehouse_commit_duration_seconds",
			Help:    "Time taken to apply a commit through the state machine",
			Buckets: prometheus.DefBuckets,
		},
	)

	OpenTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statehouse_open_transactions",
			Help: "Current number of open transactions in the transaction table",
		},
	)

	TransactionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statehouse_transactions_expired_total",
			Help: "Total number of transactions expired by the deadline sweep",
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statehouse_snapshot_duration_seconds",
			Help:    "Time taken to build and persist a snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statehouse_snapshots_total",
			Help: "Total number of snapshots taken",
		},
	)

	RecoveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statehouse_recovery_duration_seconds",
			Help:    "Time taken to recover state on startup",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplayEventsServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statehouse_replay_events_served_total",
			Help: "Total number of event log entries served to replay streams",
		},
	)

	ReplayStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statehouse_replay_streams_active",
			Help: "Current number of open replay streams",
		},
	)

	StorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statehouse_storage_errors_total",
			Help: "Total number of storage backend errors by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(OpenTransactions)
	prometheus.MustRegister(TransactionsExpiredTotal)
	prometheus.MustRegister(SnapshotDuration)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(RecoveryDuration)
	prometheus.MustRegister(ReplayEventsServedTotal)
	prometheus.MustRegister(ReplayStreamsActive)
	prometheus.MustRegister(StorageErrorsTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for later observation into a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
