package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the PredicTrack backend.
var Metrics = struct {
	VotesTotal       prometheus.Counter
	StakesTotal      prometheus.Counter
	ClaimsTotal      prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
	DBPoolActive     prometheus.GaugeFunc
	DBPoolIdle       prometheus.GaugeFunc
	RequestsInFlight prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	MergeDuration    prometheus.Histogram
	StoreFallbacks   prometheus.CounterFunc
	BusDropped       prometheus.CounterFunc
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
// storeFallbacks and droppedEvents read live counters; either may be nil.
func InitMetrics(pool *pgxpool.Pool, storeFallbacks, droppedEvents func() float64) {
	Metrics.VotesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictrack_votes_total",
			Help: "Total votes accepted.",
		},
	)

	Metrics.StakesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictrack_stakes_total",
			Help: "Total stakes placed.",
		},
	)

	Metrics.ClaimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictrack_claims_total",
			Help: "Total rewards claimed.",
		},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predictrack_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictrack_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictrack_cache_hits_total",
			Help: "Total Redis cache hits.",
		},
	)

	Metrics.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictrack_cache_misses_total",
			Help: "Total Redis cache misses.",
		},
	)

	Metrics.MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predictrack_store_merge_duration_seconds",
			Help:    "Duration of remote/local store merge passes.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DB pool gauges — read live stats from pgxpool
	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "predictrack_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "predictrack_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		prometheus.MustRegister(Metrics.DBPoolActive)
		prometheus.MustRegister(Metrics.DBPoolIdle)
	}

	if storeFallbacks != nil {
		Metrics.StoreFallbacks = prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "predictrack_store_fallbacks_total",
				Help: "Total operations that fell back to the local store.",
			},
			storeFallbacks,
		)
		prometheus.MustRegister(Metrics.StoreFallbacks)
	}

	if droppedEvents != nil {
		Metrics.BusDropped = prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "predictrack_bus_dropped_events_total",
				Help: "Total events dropped by slow bus subscribers.",
			},
			droppedEvents,
		)
		prometheus.MustRegister(Metrics.BusDropped)
	}

	prometheus.MustRegister(
		Metrics.VotesTotal,
		Metrics.StakesTotal,
		Metrics.ClaimsTotal,
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.CacheHits,
		Metrics.CacheMisses,
		Metrics.MergeDuration,
	)
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next() — Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/polls/"):
		rest := path[len("/api/polls/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/polls/:pollId" + rest[i:]
		}
		return "/api/polls/:pollId"
	case strings.HasPrefix(path, "/api/users/"):
		rest := path[len("/api/users/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/users/:address" + rest[i:]
		}
		return "/api/users/:address"
	default:
		return path
	}
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
