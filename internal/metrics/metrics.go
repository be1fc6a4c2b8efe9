// Package metrics exposes Prometheus instrumentation for the HTTP layer, the
// rating/like ledgers, the external catalog circuit breaker and the database
// pool.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Clark-Hu/cinerate/internal/domain"
)

// Metrics holds every collector the service registers. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	LedgerOps         *prometheus.CounterVec
	AverageRecomputes prometheus.Counter
	LikeCountRepairs  prometheus.Counter
	CatalogRequests   *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	MoviesImported    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LedgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		AverageRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movie_average_recomputes_total",
			Help: "Number of movie average rating recomputations",
		}),
		LikeCountRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_like_count_repairs_total",
			Help: "Like counters rebuilt from the like table after drift was detected",
		}),
		CatalogRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_api_requests_total",
				Help: "External catalog API calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		MoviesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_movies_imported_total",
			Help: "Movies inserted by bulk import",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests,
			m.HTTPDuration,
			m.LedgerOps,
			m.AverageRecomputes,
			m.LikeCountRepairs,
			m.CatalogRequests,
			m.BreakerState,
			m.MoviesImported,
		)
	}
	return m
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveLedgerOp records the outcome of a ledger operation, classified by
// the domain error kind.
func (m *Metrics) ObserveLedgerOp(op string, err error) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome labels an error for metrics.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != 0 {
		return kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

// IncRecompute counts one average recomputation.
func (m *Metrics) IncRecompute() {
	if m == nil {
		return
	}
	m.AverageRecomputes.Inc()
}

// IncLikeRepair counts one like counter rebuild.
func (m *Metrics) IncLikeRepair() {
	if m == nil {
		return
	}
	m.LikeCountRepairs.Inc()
}

// ObserveCatalog records one external catalog call.
func (m *Metrics) ObserveCatalog(endpoint string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CatalogRequests.WithLabelValues(endpoint, result).Inc()
}

// SetBreakerState publishes the numeric state of a named breaker.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

// AddImported counts movies saved by an import run.
func (m *Metrics) AddImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MoviesImported.Add(float64(n))
}

// StatsFunc returns a snapshot of pool statistics, e.g. (*store.Store).Stats.
type StatsFunc func() *pgxpool.Stat

// PoolCollector exports pgxpool statistics at scrape time.
type PoolCollector struct {
	stats        StatsFunc
	total        *prometheus.Desc
	acquired     *prometheus.Desc
	idle         *prometheus.Desc
	max          *prometheus.Desc
	acquireCount *prometheus.Desc
	acquireWait  *prometheus.Desc
}

// NewPoolCollector builds a collector over stats.
func NewPoolCollector(stats StatsFunc) *PoolCollector {
	return &PoolCollector{
		stats:        stats,
		total:        prometheus.NewDesc("db_pool_total_conns", "Total connections in the pool", nil, nil),
		acquired:     prometheus.NewDesc("db_pool_acquired_conns", "Connections currently acquired", nil, nil),
		idle:         prometheus.NewDesc("db_pool_idle_conns", "Idle connections", nil, nil),
		max:          prometheus.NewDesc("db_pool_max_conns", "Configured maximum connections", nil, nil),
		acquireCount: prometheus.NewDesc("db_pool_acquire_total", "Cumulative successful acquires", nil, nil),
		acquireWait:  prometheus.NewDesc("db_pool_acquire_wait_seconds_total", "Cumulative time spent waiting for a connection", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.acquireWait
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		return
	}
	s := c.stats()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, s.AcquireDuration().Seconds())
}
