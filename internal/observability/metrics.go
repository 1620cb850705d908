package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/stats"
)

var (
	requestsDesc = prometheus.NewDesc(
		"search_gateway_requests_total",
		"Total resolved search requests",
		nil, nil,
	)
	degradedDesc = prometheus.NewDesc(
		"search_gateway_degraded_total",
		"Search requests that ended without results",
		nil, nil,
	)
	attemptsDesc = prometheus.NewDesc(
		"search_gateway_engine_attempts_total",
		"Provider attempts by engine",
		[]string{"engine"}, nil,
	)
	successesDesc = prometheus.NewDesc(
		"search_gateway_engine_successes_total",
		"Successful provider attempts by engine",
		[]string{"engine"}, nil,
	)
	emptyDesc = prometheus.NewDesc(
		"search_gateway_engine_empty_results_total",
		"Successful provider attempts that returned no results",
		[]string{"engine"}, nil,
	)
	failuresDesc = prometheus.NewDesc(
		"search_gateway_engine_failures_total",
		"Failed provider attempts by engine and error kind",
		[]string{"engine", "kind"}, nil,
	)
	stateDesc = prometheus.NewDesc(
		"search_gateway_engine_state",
		"Engine health state, 1 for the current state",
		[]string{"engine", "state"}, nil,
	)
	configuredDesc = prometheus.NewDesc(
		"search_gateway_engine_configured",
		"Whether the engine has credentials",
		[]string{"engine"}, nil,
	)
)

// Source is what the collector reads on each scrape
type Source interface {
	GetStats() stats.Snapshot
	Health() []health.Profile
}

// Collector is a Prometheus collector that snapshots search counters and
// engine health on each scrape
type Collector struct {
	source Source
}

// NewCollector creates a collector over source
func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

// Describe sends the metric descriptors to the channel
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- degradedDesc
	ch <- attemptsDesc
	ch <- successesDesc
	ch <- emptyDesc
	ch <- failuresDesc
	ch <- stateDesc
	ch <- configuredDesc
}

// Collect emits the current counters and one state series per engine and state
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.GetStats()

	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(snap.Requests))
	ch <- prometheus.MustNewConstMetric(degradedDesc, prometheus.CounterValue, float64(snap.Degraded))

	for _, engine := range providers.AllEngines() {
		s := snap.PerEngine[engine]
		name := string(engine)
		ch <- prometheus.MustNewConstMetric(attemptsDesc, prometheus.CounterValue, float64(s.Attempts), name)
		ch <- prometheus.MustNewConstMetric(successesDesc, prometheus.CounterValue, float64(s.Successes), name)
		ch <- prometheus.MustNewConstMetric(emptyDesc, prometheus.CounterValue, float64(s.EmptyResults), name)
		for _, kind := range providers.AllErrorKinds() {
			ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.CounterValue,
				float64(s.FailuresByKind[kind]), name, string(kind))
		}
	}

	for _, p := range c.source.Health() {
		name := string(p.Engine)
		for _, state := range health.AllStates() {
			value := 0.0
			if p.State == state {
				value = 1
			}
			ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, value, name, string(state))
		}
		configured := 0.0
		if p.Configured {
			configured = 1
		}
		ch <- prometheus.MustNewConstMetric(configuredDesc, prometheus.GaugeValue, configured, name)
	}
}
