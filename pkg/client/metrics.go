package client

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const callsMetric = "mender_client_api_calls_total"

// callMetrics keeps per-endpoint call counts on a registry private to one
// Client, so several clients in one process never collide.
type callMetrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newCallMetrics() *callMetrics {
	m := &callMetrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: callsMetric,
			Help: "Mender API calls by method, path, and response status.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mender_client_api_call_duration_seconds",
			Help:    "Mender API call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(m.calls, m.duration)
	return m
}

func (m *callMetrics) observe(method, path, status string, d time.Duration) {
	m.calls.WithLabelValues(method, path, status).Inc()
	if d > 0 {
		m.duration.WithLabelValues(method, path).Observe(d.Seconds())
	}
}

// EndpointStat is the number of calls made to one endpoint with one outcome.
// Status is the HTTP status code, or "error" when no response arrived.
type EndpointStat struct {
	Method string
	Path   string
	Status string
	Calls  int
}

// Gatherer exposes the client's call metrics.
func (c *Client) Gatherer() prometheus.Gatherer { return c.metrics.registry }

// Stats returns per-endpoint call counts sorted by path, method, and status.
func (c *Client) Stats() ([]EndpointStat, error) {
	families, err := c.metrics.registry.Gather()
	if err != nil {
		return nil, err
	}

	var stats []EndpointStat
	for _, mf := range families {
		if mf.GetName() != callsMetric {
			continue
		}
		for _, metric := range mf.GetMetric() {
			st := EndpointStat{Calls: int(metric.GetCounter().GetValue())}
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "method":
					st.Method = lp.GetValue()
				case "path":
					st.Path = lp.GetValue()
				case "status":
					st.Status = lp.GetValue()
				}
			}
			stats = append(stats, st)
		}
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Status < b.Status
	})
	return stats, nil
}
