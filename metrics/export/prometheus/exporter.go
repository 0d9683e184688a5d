package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatekit "github.com/0xlenz/gatekit"
	"github.com/0xlenz/gatekit/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() gatekit.MetricsSnapshot
	AuditDropped() uint64
}

// Collector implements prometheus.Collector over an engine's counter
// table. Values are read from a fresh snapshot on every scrape; the
// collector itself holds no state beyond descriptors.
type Collector struct {
	source       metricsSource
	descs        map[gatekit.MetricID]*prometheus.Desc
	auditDropped *prometheus.Desc
}

// NewCollector creates a Collector reading from the given engine.
func NewCollector(engine *gatekit.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a Collector from a custom source.
func NewCollectorFromSource(source metricsSource) *Collector {
	descs := make(map[gatekit.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		descs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}

	return &Collector{
		source:       source,
		descs:        descs,
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- c.descs[def.ID]
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			c.descs[def.ID],
			prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}
	ch <- prometheus.MustNewConstMetric(
		c.auditDropped,
		prometheus.CounterValue,
		float64(c.source.AuditDropped()),
	)
}

// Handler mounts the engine's collector in a private registry and
// returns an http.Handler serving the standard exposition format.
func Handler(engine *gatekit.Engine) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(engine)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
