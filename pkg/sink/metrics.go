// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"sync"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "jfy"

// Metrics exposes readings and exchange counters to Prometheus
type Metrics struct {
	registry   *prometheus.Registry
	readings   *prometheus.GaugeVec
	lastSample *prometheus.GaugeVec
	registered prometheus.Gauge
	exchanges  *exchangeCollector
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "reading",
			Help:      "Latest scaled reading of an inverter quantity.",
		}, []string{"serial", "quantity"}),
		lastSample: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the latest non-zero reading.",
		}, []string{"serial"}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registered_inverters",
			Help:      "Number of inverters that completed registration.",
		}),
		exchanges: newExchangeCollector(),
	}
	m.registry.MustRegister(m.readings, m.lastSample, m.registered, m.exchanges)
	return m
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetRegistered sets the registered inverter count
func (m *Metrics) SetRegistered(n int) {
	m.registered.Set(float64(n))
}

// AddDevice exports the exchange counters of a device
func (m *Metrics) AddDevice(device string, stats *jfy.Statistics) {
	m.exchanges.add(device, stats)
}

// Write updates the reading gauges unless the readings are zero
func (m *Metrics) Write(_ context.Context, s Sample) error {
	if s.Readings.IsZero() {
		return nil
	}
	for q := jfy.Quantity(0); q < jfy.NumQuantities; q++ {
		m.readings.WithLabelValues(s.Serial, q.Stat()).Set(s.Readings.Scaled(q))
	}
	m.lastSample.WithLabelValues(s.Serial).Set(float64(s.Time.Unix()))
	return nil
}

// Close does nothing
func (m *Metrics) Close() error {
	return nil
}

// exchangeCollector reads jfy.Statistics at scrape time
type exchangeCollector struct {
	mu      sync.Mutex
	devices map[string]*jfy.Statistics

	exchanges      *prometheus.Desc
	noResponses    *prometheus.Desc
	checksumErrors *prometheus.Desc
	decodeErrors   *prometheus.Desc
	violations     *prometheus.Desc
}

func newExchangeCollector() *exchangeCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, []string{"device"}, nil)
	}
	return &exchangeCollector{
		devices:        map[string]*jfy.Statistics{},
		exchanges:      desc("exchanges_total", "Request/response exchanges attempted."),
		noResponses:    desc("no_response_total", "Exchanges that read nothing back."),
		checksumErrors: desc("checksum_errors_total", "Replies failing the checksum."),
		decodeErrors:   desc("decode_errors_total", "Replies too short or without a header."),
		violations:     desc("protocol_violations_total", "Handshake replies from the wrong sender or without ack."),
	}
}

func (c *exchangeCollector) add(device string, stats *jfy.Statistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[device] = stats
}

func (c *exchangeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.exchanges
	ch <- c.noResponses
	ch <- c.checksumErrors
	ch <- c.decodeErrors
	ch <- c.violations
}

func (c *exchangeCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for device, stats := range c.devices {
		snap := stats.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.exchanges, prometheus.CounterValue, float64(snap.Exchanges), device)
		ch <- prometheus.MustNewConstMetric(c.noResponses, prometheus.CounterValue, float64(snap.NoResponses), device)
		ch <- prometheus.MustNewConstMetric(c.checksumErrors, prometheus.CounterValue, float64(snap.ChecksumErrors), device)
		ch <- prometheus.MustNewConstMetric(c.decodeErrors, prometheus.CounterValue, float64(snap.DecodeErrors), device)
		ch <- prometheus.MustNewConstMetric(c.violations, prometheus.CounterValue, float64(snap.Violations), device)
	}
}
