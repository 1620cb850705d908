package routing

import (
	"github.com/upb/search-gateway/services/providers"
)

// Matrix maps an intent type to the engines best suited for it, most
// preferred first. It is read-only after construction.
type Matrix struct {
	orders   map[providers.IntentType][]providers.Engine
	fallback providers.IntentType
}

// DefaultMatrix returns the built-in capability matrix
func DefaultMatrix() *Matrix {
	return NewMatrix(map[providers.IntentType][]providers.Engine{
		providers.IntentGeneral: {
			providers.EngineSerper, providers.EngineTavily, providers.EngineGoogle, providers.EngineBing,
		},
		providers.IntentAIContext: {
			providers.EngineTavily, providers.EngineSerper, providers.EngineGoogle, providers.EngineBing,
		},
		providers.IntentNews: {
			providers.EngineBing, providers.EngineTavily, providers.EngineSerper, providers.EngineGoogle,
		},
		providers.IntentAcademic: {
			providers.EngineTavily, providers.EngineSerper, providers.EngineGoogle, providers.EngineBing,
		},
	})
}

// NewMatrix builds a matrix from explicit orders. Intent types missing from
// orders resolve to the general row.
func NewMatrix(orders map[providers.IntentType][]providers.Engine) *Matrix {
	m := &Matrix{
		orders:   make(map[providers.IntentType][]providers.Engine, len(orders)),
		fallback: providers.IntentGeneral,
	}
	for intent, engines := range orders {
		m.orders[intent] = dedupe(engines)
	}
	return m
}

// PreferenceOrder returns a copy of the ordered engines for an intent type
func (m *Matrix) PreferenceOrder(intent providers.IntentType) []providers.Engine {
	order, ok := m.orders[intent]
	if !ok {
		order = m.orders[m.fallback]
	}

	out := make([]providers.Engine, len(order))
	copy(out, order)
	return out
}

// DefaultEngine is the head of the general row
func (m *Matrix) DefaultEngine() providers.Engine {
	order := m.orders[m.fallback]
	if len(order) == 0 {
		return providers.EngineSerper
	}
	return order[0]
}

// appendMissing returns order followed by the engines of extra it lacks
func appendMissing(order, extra []providers.Engine) []providers.Engine {
	return dedupe(append(append([]providers.Engine{}, order...), extra...))
}

func dedupe(engines []providers.Engine) []providers.Engine {
	seen := make(map[providers.Engine]bool, len(engines))
	out := make([]providers.Engine, 0, len(engines))
	for _, e := range engines {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
