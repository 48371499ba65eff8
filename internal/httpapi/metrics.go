package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"ollamad/pkg/types"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ollamad",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ollamad",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// The route pattern is only known once chi has routed the request.
		path := routePatternOrPath(r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// clusterMetricsSource is the slice of Service the collector needs.
type clusterMetricsSource interface {
	Instances() []types.InstanceSnapshot
	UserCounts() map[string]int64
}

// clusterCollector walks the supervisor snapshot at scrape time and emits one
// gauge series per worker plus the per-user request counters.
type clusterCollector struct {
	src clusterMetricsSource

	up           *prometheus.Desc
	inflight     *prometheus.Desc
	cpu          *prometheus.Desc
	memoryMB     *prometheus.Desc
	load         *prometheus.Desc
	composite    *prometheus.Desc
	rps          *prometheus.Desc
	userRequests *prometheus.Desc
}

func newClusterCollector(src clusterMetricsSource) *clusterCollector {
	instanceLabels := []string{"port", "model"}
	return &clusterCollector{
		src:          src,
		up:           prometheus.NewDesc("ollama_instance_up", "1 if the worker subprocess is alive", instanceLabels, nil),
		inflight:     prometheus.NewDesc("ollama_instance_requests_inflight", "Outstanding dispatched requests", instanceLabels, nil),
		cpu:          prometheus.NewDesc("ollama_instance_cpu", "Sampled process CPU usage percent", instanceLabels, nil),
		memoryMB:     prometheus.NewDesc("ollama_instance_memory_mb", "Sampled resident memory in MB", instanceLabels, nil),
		load:         prometheus.NewDesc("ollama_instance_load", "Smoothed inflight saturation", instanceLabels, nil),
		composite:    prometheus.NewDesc("ollama_instance_composite_load", "Blend of inflight saturation and CPU usage", instanceLabels, nil),
		rps:          prometheus.NewDesc("ollama_instance_rps", "Requests per second over the current window", instanceLabels, nil),
		userRequests: prometheus.NewDesc("ollama_user_requests", "Requests dispatched per user", []string{"user"}, nil),
	}
}

func (c *clusterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.inflight
	ch <- c.cpu
	ch <- c.memoryMB
	ch <- c.load
	ch <- c.composite
	ch <- c.rps
	ch <- c.userRequests
}

func (c *clusterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, inst := range c.src.Instances() {
		port := strconv.Itoa(inst.Port)
		up := 0.0
		if inst.Alive {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(inst.Inflight), port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, inst.CPUPercent, port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.memoryMB, prometheus.GaugeValue, inst.MemoryMB, port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.load, prometheus.GaugeValue, inst.Load, port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.composite, prometheus.GaugeValue, inst.CompositeLoad, port, inst.Model)
		ch <- prometheus.MustNewConstMetric(c.rps, prometheus.GaugeValue, inst.Rps, port, inst.Model)
	}
	for user, n := range c.src.UserCounts() {
		ch <- prometheus.MustNewConstMetric(c.userRequests, prometheus.CounterValue, float64(n), user)
	}
}
