package health

import (
	"time"

	"github.com/upb/search-gateway/services/providers"
)

// State is the externally visible health of an engine
type State string

const (
	StateHealthy     State = "healthy"
	StateCoolingDown State = "cooling_down"
	StateHalfOpen    State = "half_open"
	StateUnhealthy   State = "unhealthy"
	StateDisabled    State = "disabled"
)

// AllStates lists every state
func AllStates() []State {
	return []State{StateHealthy, StateCoolingDown, StateHalfOpen, StateUnhealthy, StateDisabled}
}

// Policy holds the tunables of the state machine
type Policy struct {
	// FailureThreshold is the number of consecutive transient failures
	// that marks an engine unhealthy
	FailureThreshold int

	// UnhealthyCooldown is how long an unhealthy engine sits out
	UnhealthyCooldown time.Duration

	// RateLimitBackoffBase is the cool-down after the first rate limit
	RateLimitBackoffBase time.Duration

	// RateLimitBackoffMax caps the geometric backoff
	RateLimitBackoffMax time.Duration

	// ProbeLease bounds how long a half-open probe may stay unresolved
	ProbeLease time.Duration
}

// DefaultPolicy returns the default tunables
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold:     3,
		UnhealthyCooldown:    60 * time.Second,
		RateLimitBackoffBase: 30 * time.Second,
		RateLimitBackoffMax:  120 * time.Second,
		ProbeLease:           30 * time.Second,
	}
}

// Backoff returns the cool-down for the n-th consecutive rate limit:
// base, 2*base, 4*base, ... capped at max.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.RateLimitBackoffBase
	for i := 1; i < n && d < p.RateLimitBackoffMax; i++ {
		d *= 2
	}
	if p.RateLimitBackoffMax > 0 && d > p.RateLimitBackoffMax {
		d = p.RateLimitBackoffMax
	}
	return d
}

// Outcome is the result of one attempt as seen by the tracker
type Outcome struct {
	Success    bool
	Kind       providers.ErrorKind
	RetryAfter time.Duration
}

// Succeeded is the outcome of an attempt that returned a valid payload,
// empty or not
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed classifies an adapter error into an outcome
func Failed(err error) Outcome {
	return Outcome{
		Kind:       providers.KindOf(err),
		RetryAfter: providers.RetryAfterOf(err),
	}
}

// status is the mutable record behind one engine. HalfOpen is never stored;
// it is derived from an expired cooling or unhealthy window.
type status struct {
	state               State
	consecutiveFailures int
	rateLimitHits       int
	rateLimitResetAt    time.Time
	unhealthyUntil      time.Time
	lastFailure         providers.ErrorKind
	lastTransitionAt    time.Time
}

// effective resolves the stored state against the clock
func (s status) effective(now time.Time) State {
	switch s.state {
	case StateCoolingDown:
		if now.Before(s.rateLimitResetAt) {
			return StateCoolingDown
		}
		return StateHalfOpen
	case StateUnhealthy:
		if now.Before(s.unhealthyUntil) {
			return StateUnhealthy
		}
		// a rate-limit window that outlives the unhealthy one still holds
		if now.Before(s.rateLimitResetAt) {
			return StateCoolingDown
		}
		return StateHalfOpen
	default:
		return s.state
	}
}

// transition applies one outcome. Disabled is absorbing.
func transition(s status, o Outcome, now time.Time, p Policy) status {
	if s.state == StateDisabled {
		return s
	}

	next := s
	if o.Success {
		next.state = StateHealthy
		next.consecutiveFailures = 0
		next.rateLimitHits = 0
		next.rateLimitResetAt = time.Time{}
		next.unhealthyUntil = time.Time{}
	} else {
		next.lastFailure = o.Kind

		switch o.Kind {
		case providers.KindAuth:
			next.state = StateDisabled

		case providers.KindRateLimited:
			next.rateLimitHits++
			wait := p.Backoff(next.rateLimitHits)
			if o.RetryAfter > wait {
				wait = o.RetryAfter
			}
			next.state = StateCoolingDown
			next.rateLimitResetAt = now.Add(wait)

		default:
			next.consecutiveFailures++
			switch {
			case next.consecutiveFailures >= p.FailureThreshold:
				next.state = StateUnhealthy
				next.unhealthyUntil = now.Add(p.UnhealthyCooldown)
			case s.effective(now) == StateCoolingDown:
				// a forced attempt during a rate-limit window leaves it in place
			default:
				next.state = StateHealthy
			}
		}
	}

	if next.state != s.state {
		next.lastTransitionAt = now
	}
	return next
}
