package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "thermiagenesis"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Collector holds the bridge's Prometheus metrics.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	fetchDuration prometheus.Histogram
	fetches       *prometheus.CounterVec
	writes        *prometheus.CounterVec
	available     prometheus.Gauge
	lastSuccess   prometheus.Gauge
	interest      prometheus.Gauge
	registers     *prometheus.GaugeVec
}

// New creates a Collector with a private registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time taken to read the register interest set",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Register fetches by result",
		}, []string{"result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "writes_total",
			Help:      "Register writes by register and result",
		}, []string{"register", "result"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "available",
			Help:      "1 when the last fetch succeeded",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch",
		}),
		interest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "interest_registers",
			Help:      "Number of registers polled each cycle",
		}),
		registers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "register_value",
			Help:      "Last decoded value of each numeric or boolean register",
		}, []string{"register"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.fetchDuration,
		c.fetches,
		c.writes,
		c.available,
		c.lastSuccess,
		c.interest,
		c.registers,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFetch implements coordinator.Observer.
func (c *Collector) ObserveFetch(elapsed time.Duration, _ int, err error) {
	c.fetchDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.fetches.WithLabelValues(resultError).Inc()
		c.available.Set(0)
		return
	}
	c.fetches.WithLabelValues(resultOK).Inc()
	c.available.Set(1)
	c.lastSuccess.SetToCurrentTime()
}

// ObserveWrite implements coordinator.Observer.
func (c *Collector) ObserveWrite(register string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	c.writes.WithLabelValues(register, result).Inc()
}

// Update copies a register snapshot into the register gauge vector.
// Registers absent from values are removed so stale readings do not linger.
//
// Parameters:
//   - values: Latest coordinator snapshot
//   - interest: Size of the interest set
func (c *Collector) Update(values map[string]any, interest int) {
	c.interest.Set(float64(interest))
	c.registers.Reset()
	for name, v := range values {
		if f, ok := Numeric(v); ok {
			c.registers.WithLabelValues(name).Set(f)
		}
	}
}

// Numeric converts a decoded register value to a float. Booleans map to 0
// and 1. Strings and other types report false.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
