package lagshed

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lagshed"

// Collector exports a Monitor's state as Prometheus metrics. Register it
// with any prometheus.Registerer:
//
//	prometheus.MustRegister(lagshed.NewCollector(lagshed.Default()))
type Collector struct {
	m *Monitor

	lag       *prometheus.Desc
	threshold *prometheus.Desc
	interval  *prometheus.Desc
	running   *prometheus.Desc
	listeners *prometheus.Desc
	samples   *prometheus.Desc
	decisions *prometheus.Desc
	events    *prometheus.Desc
	dropped   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading from m on every scrape.
func NewCollector(m *Monitor) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		m:         m,
		lag:       desc("lag_milliseconds", "Smoothed scheduling lag estimate."),
		threshold: desc("threshold_milliseconds", "Lag above which work starts being shed."),
		interval:  desc("interval_milliseconds", "Sampling period of the lag timer."),
		running:   desc("running", "1 when the lag sampler is armed."),
		listeners: desc("listeners", "Registered lag event listeners."),
		samples:   desc("samples_total", "Lag samples taken."),
		decisions: desc("decisions_total", "Admission decisions by result.", "result"),
		events:    desc("lag_events_total", "Lag events queued for listeners."),
		dropped:   desc("lag_events_dropped_total", "Lag events dropped because delivery was behind."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lag
	ch <- c.threshold
	ch <- c.interval
	ch <- c.running
	ch <- c.listeners
	ch <- c.samples
	ch <- c.decisions
	ch <- c.events
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Stats()

	running := 0.0
	if s.Running {
		running = 1
	}

	ch <- prometheus.MustNewConstMetric(c.lag, prometheus.GaugeValue, s.Lag)
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, s.ThresholdMs)
	ch <- prometheus.MustNewConstMetric(c.interval, prometheus.GaugeValue, float64(s.IntervalMs))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners))
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.CounterValue, float64(s.Samples))
	ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(s.Accepted), "accepted")
	ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(s.Rejected), "rejected")
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.LagEvents))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedEvents))
}
