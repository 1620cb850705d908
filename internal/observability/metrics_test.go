package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/stats"
)

type staticSource struct {
	snap     stats.Snapshot
	profiles []health.Profile
}

func (s staticSource) GetStats() stats.Snapshot { return s.snap }
func (s staticSource) Health() []health.Profile { return s.profiles }

func TestCollector(t *testing.T) {
	agg := stats.NewAggregator()
	agg.RecordSuccess(providers.EngineSerper, 4)
	agg.RecordFailure(providers.EngineBing, providers.KindRateLimited)
	agg.RecordRequest(false)
	agg.RecordRequest(true)

	source := staticSource{
		snap: agg.Snapshot(),
		profiles: []health.Profile{
			{Engine: providers.EngineSerper, Configured: true, State: health.StateHealthy},
			{Engine: providers.EngineBing, Configured: true, State: health.StateCoolingDown},
		},
	}

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(NewCollector(source)))

	expected := `
# HELP search_gateway_requests_total Total resolved search requests
# TYPE search_gateway_requests_total counter
search_gateway_requests_total 2
# HELP search_gateway_degraded_total Search requests that ended without results
# TYPE search_gateway_degraded_total counter
search_gateway_degraded_total 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"search_gateway_requests_total", "search_gateway_degraded_total")
	assert.NoError(t, err)

	// one series per engine and kind
	assert.Equal(t, len(providers.AllEngines())*len(providers.AllErrorKinds()),
		testutil.CollectAndCount(NewCollector(source), "search_gateway_engine_failures_total"))

	// one series per profile and state
	assert.Equal(t, 2*len(health.AllStates()),
		testutil.CollectAndCount(NewCollector(source), "search_gateway_engine_state"))

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "search_gateway_engine_state" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			want := 0.0
			if (labels["engine"] == "bing" && labels["state"] == "cooling_down") ||
				(labels["engine"] == "serper" && labels["state"] == "healthy") {
				want = 1
			}
			assert.Equal(t, want, m.GetGauge().GetValue(), "%v", labels)
		}
	}
}
