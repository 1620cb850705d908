package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/search-gateway/services/providers"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Profile is a point-in-time copy of one engine's health
type Profile struct {
	Engine              providers.Engine    `json:"engine"`
	Configured          bool                `json:"configured"`
	State               State               `json:"state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	RateLimitHits       int                 `json:"rate_limit_hits"`
	RateLimitResetAt    *time.Time          `json:"rate_limit_reset_at,omitempty"`
	UnhealthyUntil      *time.Time          `json:"unhealthy_until,omitempty"`
	PermanentlyDisabled bool                `json:"permanently_disabled"`
	LastFailure         providers.ErrorKind `json:"last_failure,omitempty"`
	LastTransitionAt    *time.Time          `json:"last_transition_at,omitempty"`
}

type record struct {
	mu         sync.Mutex
	configured bool
	status     status

	probing        bool
	probeStartedAt time.Time
}

// Tracker keeps one health record per known engine. Updates to a record are
// serialized by that record's mutex; reads used for routing may be one
// update behind.
type Tracker struct {
	policy  Policy
	clock   Clock
	logger  *zap.Logger
	records map[providers.Engine]*record
}

// NewTracker creates a tracker for every known engine. The record set is
// fixed at construction.
func NewTracker(configured map[providers.Engine]bool, policy Policy, clock Clock, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// probes always expire
	if policy.ProbeLease <= 0 {
		policy.ProbeLease = DefaultPolicy().ProbeLease
	}

	t := &Tracker{
		policy:  policy,
		clock:   clock,
		logger:  logger,
		records: make(map[providers.Engine]*record, len(providers.AllEngines())),
	}
	for _, e := range providers.AllEngines() {
		t.records[e] = &record{
			configured: configured[e],
			status:     status{state: StateHealthy},
		}
	}
	return t
}

// Policy returns the tunables in use
func (t *Tracker) Policy() Policy {
	return t.policy
}

// State returns the effective state of an engine
func (t *Tracker) State(engine providers.Engine) State {
	rec, ok := t.records[engine]
	if !ok {
		return StateDisabled
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.status.effective(t.clock.Now())
}

// Available reports whether an engine may join an automatic candidate order:
// healthy, or half-open with no probe outstanding.
func (t *Tracker) Available(engine providers.Engine) bool {
	rec, ok := t.records[engine]
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := t.clock.Now()
	switch rec.status.effective(now) {
	case StateHealthy:
		return true
	case StateHalfOpen:
		return !t.probeActive(rec, now)
	default:
		return false
	}
}

// Disabled reports whether an engine was permanently removed
func (t *Tracker) Disabled(engine providers.Engine) bool {
	rec, ok := t.records[engine]
	if !ok {
		return true
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.status.state == StateDisabled
}

// Acquire is called right before an attempt. A half-open engine admits one
// probe at a time; forced attempts skip that gate but never reach a
// disabled engine.
func (t *Tracker) Acquire(engine providers.Engine, forced bool) bool {
	rec, ok := t.records[engine]
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := t.clock.Now()
	switch rec.status.effective(now) {
	case StateDisabled:
		return false
	case StateHealthy:
		return true
	case StateHalfOpen:
		if forced {
			return true
		}
		if t.probeActive(rec, now) {
			return false
		}
		rec.probing = true
		rec.probeStartedAt = now
		return true
	default:
		return forced
	}
}

// Record applies the outcome of an attempt and returns the new profile
func (t *Tracker) Record(engine providers.Engine, outcome Outcome) Profile {
	rec, ok := t.records[engine]
	if !ok {
		return Profile{Engine: engine, State: StateDisabled}
	}

	rec.mu.Lock()
	now := t.clock.Now()
	before := rec.status.effective(now)
	rec.status = transition(rec.status, outcome, now, t.policy)
	rec.probing = false
	after := rec.status.effective(now)
	profile := t.snapshot(engine, rec, now)
	rec.mu.Unlock()

	if before != after {
		fields := []zap.Field{
			zap.String("engine", string(engine)),
			zap.String("from", string(before)),
			zap.String("to", string(after)),
			zap.Int("consecutive_failures", profile.ConsecutiveFailures),
		}
		if !outcome.Success {
			fields = append(fields, zap.String("error_kind", string(outcome.Kind)))
		}
		if after == StateDisabled {
			t.logger.Error("Search engine disabled after credential rejection", fields...)
		} else {
			t.logger.Info("Search engine health changed", fields...)
		}
	}

	return profile
}

// Profile returns a copy of one engine's health
func (t *Tracker) Profile(engine providers.Engine) Profile {
	rec, ok := t.records[engine]
	if !ok {
		return Profile{Engine: engine, State: StateDisabled}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return t.snapshot(engine, rec, t.clock.Now())
}

// Profiles returns copies of every engine's health in canonical order
func (t *Tracker) Profiles() []Profile {
	out := make([]Profile, 0, len(t.records))
	for _, e := range providers.AllEngines() {
		out = append(out, t.Profile(e))
	}
	return out
}

func (t *Tracker) probeActive(rec *record, now time.Time) bool {
	if !rec.probing {
		return false
	}
	if !now.Before(rec.probeStartedAt.Add(t.policy.ProbeLease)) {
		// the probe never reported back
		rec.probing = false
		return false
	}
	return true
}

func (t *Tracker) snapshot(engine providers.Engine, rec *record, now time.Time) Profile {
	s := rec.status
	p := Profile{
		Engine:              engine,
		Configured:          rec.configured,
		State:               s.effective(now),
		ConsecutiveFailures: s.consecutiveFailures,
		RateLimitHits:       s.rateLimitHits,
		PermanentlyDisabled: s.state == StateDisabled,
		LastFailure:         s.lastFailure,
	}
	if !s.rateLimitResetAt.IsZero() {
		at := s.rateLimitResetAt
		p.RateLimitResetAt = &at
	}
	if !s.unhealthyUntil.IsZero() {
		until := s.unhealthyUntil
		p.UnhealthyUntil = &until
	}
	if !s.lastTransitionAt.IsZero() {
		at := s.lastTransitionAt
		p.LastTransitionAt = &at
	}
	return p
}
