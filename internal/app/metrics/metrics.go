package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupsystem",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupsystem",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groupsystem",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	gatewayQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupsystem",
			Subsystem: "gateway",
			Name:      "queue_depth",
			Help:      "Store operations currently queued on the worker pool.",
		},
	)

	gatewayTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupsystem",
			Subsystem: "gateway",
			Name:      "tasks_total",
			Help:      "Total number of store operations executed.",
		},
		[]string{"op"},
	)

	gatewayTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groupsystem",
			Subsystem: "gateway",
			Name:      "task_duration_seconds",
			Help:      "Duration of store operations on the worker pool.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"op"},
	)

	gatewayRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupsystem",
			Subsystem: "gateway",
			Name:      "rejections_total",
			Help:      "Store operations rejected because the queue was full.",
		},
		[]string{"op"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupsystem",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of expiry sweep cycles.",
		},
		[]string{"status"},
	)

	sweepReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groupsystem",
			Subsystem: "sweeper",
			Name:      "reconciled_total",
			Help:      "Expired assignments reset to the default group.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "groupsystem",
			Subsystem: "sweeper",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of expiry sweep cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	directorySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupsystem",
			Subsystem: "cache",
			Name:      "groups",
			Help:      "Groups currently held in the directory cache.",
		},
	)

	membershipCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupsystem",
			Subsystem: "cache",
			Name:      "memberships",
			Help:      "Connected users currently held in the membership cache.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		gatewayQueueDepth,
		gatewayTasks,
		gatewayTaskDuration,
		gatewayRejections,
		sweepRuns,
		sweepReconciled,
		sweepDuration,
		directorySize,
		membershipCacheSize,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// SetGatewayQueueDepth records the current depth of the gateway task queue.
func SetGatewayQueueDepth(depth int) {
	gatewayQueueDepth.Set(float64(depth))
}

// RecordGatewayTask records an executed store operation.
func RecordGatewayTask(op string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	gatewayTasks.WithLabelValues(op).Inc()
	gatewayTaskDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordGatewayRejection records a store operation rejected at submission.
func RecordGatewayRejection(op string) {
	if op == "" {
		op = "unknown"
	}
	gatewayRejections.WithLabelValues(op).Inc()
}

// RecordSweep records the outcome of one expiry sweep cycle.
func RecordSweep(reconciled int, duration time.Duration, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	sweepRuns.WithLabelValues(status).Inc()
	sweepReconciled.Add(float64(reconciled))
	if duration <= 0 {
		duration = time.Millisecond
	}
	sweepDuration.Observe(duration.Seconds())
}

// SetDirectorySize records the number of cached groups.
func SetDirectorySize(n int) {
	directorySize.Set(float64(n))
}

// SetMembershipCacheSize records the number of cached user assignments.
func SetMembershipCacheSize(n int) {
	membershipCacheSize.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "groups":
		if len(parts) == 1 {
			return "/groups"
		}
		if len(parts) == 2 {
			return "/groups/:group"
		}
		return "/groups/:group/" + parts[2]
	case "users":
		if len(parts) == 1 {
			return "/users"
		}
		if len(parts) == 2 {
			return "/users/:user"
		}
		return "/users/:user/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
