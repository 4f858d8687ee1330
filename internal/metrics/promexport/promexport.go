// Package promexport adapts a *metrics.Sink into a prometheus.Collector,
// translating its snapshot into gauges and counters on every scrape.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TakumaLee/dispatch/internal/metrics"
)

// Collector exposes a metrics.Sink's snapshot as Prometheus series. It holds
// no state of its own beyond the wrapped sink, and never mutates it.
type Collector struct {
	sink *metrics.Sink

	attempts  *prometheus.Desc
	successes *prometheus.Desc
	failures  *prometheus.Desc
	switches  *prometheus.Desc
	errors    *prometheus.Desc
}

// New wraps sink as a prometheus.Collector.
func New(sink *metrics.Sink) *Collector {
	return &Collector{
		sink: sink,
		attempts: prometheus.NewDesc(
			"dispatch_provider_attempts_total", "Total dispatch attempts by provider", []string{"provider"}, nil),
		successes: prometheus.NewDesc(
			"dispatch_provider_successes_total", "Total dispatch successes by provider", []string{"provider"}, nil),
		failures: prometheus.NewDesc(
			"dispatch_provider_failures_total", "Total dispatch failures by provider", []string{"provider"}, nil),
		switches: prometheus.NewDesc(
			"dispatch_provider_switches_total", "Total provider switches", nil, nil),
		errors: prometheus.NewDesc(
			"dispatch_error_class_total", "Total failures by classified error category", []string{"category"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.successes
	ch <- c.failures
	ch <- c.switches
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.sink.Snapshot()

	for provider, pc := range snap.PerProvider {
		ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(pc.Attempts), provider)
		ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(pc.Successes), provider)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(pc.Failures), provider)
	}
	ch <- prometheus.MustNewConstMetric(c.switches, prometheus.CounterValue, float64(snap.TotalSwitches))
	for category, count := range snap.ErrorCounts {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(count), category)
	}
}
