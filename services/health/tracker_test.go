package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/search-gateway/services/providers"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func allConfigured() map[providers.Engine]bool {
	m := make(map[providers.Engine]bool)
	for _, e := range providers.AllEngines() {
		m[e] = true
	}
	return m
}

func newTestTracker(clock Clock) *Tracker {
	return NewTracker(allConfigured(), DefaultPolicy(), clock, zap.NewNop())
}

func rateLimited(retryAfter time.Duration) Outcome {
	return Outcome{Kind: providers.KindRateLimited, RetryAfter: retryAfter}
}

func failure(kind providers.ErrorKind) Outcome {
	return Outcome{Kind: kind}
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 30*time.Second, p.Backoff(1))
	assert.Equal(t, 60*time.Second, p.Backoff(2))
	assert.Equal(t, 120*time.Second, p.Backoff(3))
	assert.Equal(t, 120*time.Second, p.Backoff(4))
	assert.Equal(t, 120*time.Second, p.Backoff(50))
	assert.Equal(t, 30*time.Second, p.Backoff(0))
}

func TestFailed_ClassifiesErrors(t *testing.T) {
	o := Failed(providers.NewRateLimitedError(providers.EngineBing, 429, 9*time.Second))
	assert.False(t, o.Success)
	assert.Equal(t, providers.KindRateLimited, o.Kind)
	assert.Equal(t, 9*time.Second, o.RetryAfter)

	assert.True(t, Succeeded().Success)
}

func TestTracker_NewEnginesAreHealthy(t *testing.T) {
	tracker := NewTracker(map[providers.Engine]bool{providers.EngineSerper: true}, DefaultPolicy(), newFakeClock(), nil)

	for _, p := range tracker.Profiles() {
		assert.Equal(t, StateHealthy, p.State)
		assert.Equal(t, p.Engine == providers.EngineSerper, p.Configured)
	}
	assert.True(t, tracker.Available(providers.EngineSerper))
}

func TestTracker_RateLimitBackoff(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineSerper

	// first hit: 30s
	tracker.Record(e, rateLimited(0))
	assert.Equal(t, StateCoolingDown, tracker.State(e))
	assert.False(t, tracker.Available(e))
	assert.False(t, tracker.Acquire(e, false))

	clock.Advance(29 * time.Second)
	assert.Equal(t, StateCoolingDown, tracker.State(e))

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, tracker.State(e))
	assert.True(t, tracker.Available(e))

	// the probe is rate limited again: 60s
	require.True(t, tracker.Acquire(e, false))
	p := tracker.Record(e, rateLimited(0))
	assert.Equal(t, 2, p.RateLimitHits)
	require.NotNil(t, p.RateLimitResetAt)
	assert.Equal(t, clock.Now().Add(60*time.Second), *p.RateLimitResetAt)

	clock.Advance(60 * time.Second)
	require.True(t, tracker.Acquire(e, false))
	p = tracker.Record(e, rateLimited(0))
	assert.Equal(t, clock.Now().Add(120*time.Second), *p.RateLimitResetAt)

	clock.Advance(120 * time.Second)
	require.True(t, tracker.Acquire(e, false))
	p = tracker.Record(e, rateLimited(0))
	assert.Equal(t, clock.Now().Add(120*time.Second), *p.RateLimitResetAt, "backoff is capped")

	// success clears the counter, the next rate limit starts over
	clock.Advance(120 * time.Second)
	require.True(t, tracker.Acquire(e, false))
	p = tracker.Record(e, Succeeded())
	assert.Equal(t, StateHealthy, p.State)
	assert.Equal(t, 0, p.RateLimitHits)
	assert.Nil(t, p.RateLimitResetAt)

	p = tracker.Record(e, rateLimited(0))
	assert.Equal(t, clock.Now().Add(30*time.Second), *p.RateLimitResetAt)
}

func TestTracker_RetryAfterExtendsCooldown(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	p := tracker.Record(providers.EngineTavily, rateLimited(5*time.Minute))
	assert.Equal(t, clock.Now().Add(5*time.Minute), *p.RateLimitResetAt)

	p = tracker.Record(providers.EngineBing, rateLimited(time.Second))
	assert.Equal(t, clock.Now().Add(30*time.Second), *p.RateLimitResetAt)
}

func TestTracker_RateLimitDoesNotCountAsFailure(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	p := tracker.Record(providers.EngineGoogle, rateLimited(0))
	assert.Equal(t, 0, p.ConsecutiveFailures)
}

func TestTracker_TransientFailuresOpenAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineGoogle

	tracker.Record(e, failure(providers.KindTimeout))
	tracker.Record(e, failure(providers.KindUnreachable))
	assert.Equal(t, StateHealthy, tracker.State(e))
	assert.True(t, tracker.Available(e))

	p := tracker.Record(e, failure(providers.KindMalformed))
	assert.Equal(t, StateUnhealthy, p.State)
	assert.Equal(t, 3, p.ConsecutiveFailures)
	assert.False(t, tracker.Available(e))

	clock.Advance(60 * time.Second)
	assert.Equal(t, StateHalfOpen, tracker.State(e))

	// a failed probe re-opens with a fresh window
	require.True(t, tracker.Acquire(e, false))
	p = tracker.Record(e, failure(providers.KindTimeout))
	assert.Equal(t, StateUnhealthy, p.State)
	assert.Equal(t, clock.Now().Add(60*time.Second), *p.UnhealthyUntil)

	clock.Advance(60 * time.Second)
	require.True(t, tracker.Acquire(e, false))
	p = tracker.Record(e, Succeeded())
	assert.Equal(t, StateHealthy, p.State)
	assert.Equal(t, 0, p.ConsecutiveFailures)
}

func TestTracker_SuccessResetsFailures(t *testing.T) {
	tracker := newTestTracker(newFakeClock())
	e := providers.EngineBing

	tracker.Record(e, failure(providers.KindTimeout))
	tracker.Record(e, failure(providers.KindTimeout))
	tracker.Record(e, Succeeded())
	tracker.Record(e, failure(providers.KindTimeout))
	p := tracker.Record(e, failure(providers.KindTimeout))

	assert.Equal(t, 2, p.ConsecutiveFailures)
	assert.Equal(t, StateHealthy, p.State)
}

func TestTracker_AuthErrorDisablesPermanently(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineSerper

	p := tracker.Record(e, failure(providers.KindAuth))
	assert.Equal(t, StateDisabled, p.State)
	assert.True(t, p.PermanentlyDisabled)

	// a late success from a concurrent request does not revive it
	p = tracker.Record(e, Succeeded())
	assert.Equal(t, StateDisabled, p.State)

	clock.Advance(24 * time.Hour)
	assert.True(t, tracker.Disabled(e))
	assert.False(t, tracker.Available(e))
	assert.False(t, tracker.Acquire(e, true))
}

func TestTracker_HalfOpenAdmitsOneProbe(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineTavily

	tracker.Record(e, rateLimited(0))
	clock.Advance(30 * time.Second)

	assert.True(t, tracker.Acquire(e, false))
	assert.False(t, tracker.Acquire(e, false), "second probe must wait")
	assert.False(t, tracker.Available(e))
	assert.True(t, tracker.Acquire(e, true), "forced attempts bypass the probe gate")

	// an abandoned probe frees the slot once its lease runs out
	clock.Advance(DefaultPolicy().ProbeLease)
	assert.True(t, tracker.Available(e))
	assert.True(t, tracker.Acquire(e, false))
}

func TestTracker_ZeroProbeLeaseFallsBackToDefault(t *testing.T) {
	clock := newFakeClock()
	policy := DefaultPolicy()
	policy.ProbeLease = 0
	tracker := NewTracker(allConfigured(), policy, clock, nil)
	e := providers.EngineGoogle

	assert.Equal(t, DefaultPolicy().ProbeLease, tracker.Policy().ProbeLease)

	tracker.Record(e, rateLimited(0))
	clock.Advance(30 * time.Second)

	// the probe is abandoned without a Record call
	require.True(t, tracker.Acquire(e, false))
	assert.False(t, tracker.Available(e))

	clock.Advance(DefaultPolicy().ProbeLease)
	assert.True(t, tracker.Available(e))
}

func TestTracker_ForcedAttempts(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	tracker.Record(providers.EngineBing, rateLimited(0))
	assert.False(t, tracker.Acquire(providers.EngineBing, false))
	assert.True(t, tracker.Acquire(providers.EngineBing, true))

	for i := 0; i < 3; i++ {
		tracker.Record(providers.EngineGoogle, failure(providers.KindUnreachable))
	}
	assert.False(t, tracker.Acquire(providers.EngineGoogle, false))
	assert.True(t, tracker.Acquire(providers.EngineGoogle, true))
}

func TestTracker_TransientFailureDuringCooldownKeepsWindow(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineBing

	tracker.Record(e, rateLimited(0))
	clock.Advance(10 * time.Second)

	p := tracker.Record(e, failure(providers.KindTimeout))
	assert.Equal(t, StateCoolingDown, p.State)
	assert.Equal(t, 1, p.ConsecutiveFailures)
}

func TestTracker_UnhealthyWindowDoesNotShortenRateLimit(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)
	e := providers.EngineSerper

	// backoff grows to 120s
	for i := 0; i < 3; i++ {
		tracker.Record(e, rateLimited(0))
		clock.Advance(time.Second)
	}
	resetAt := *tracker.Profile(e).RateLimitResetAt

	// forced attempts time out during the cool-down
	for i := 0; i < 3; i++ {
		tracker.Record(e, failure(providers.KindTimeout))
	}
	assert.Equal(t, StateUnhealthy, tracker.State(e))

	clock.Advance(61 * time.Second)
	require.True(t, clock.Now().Before(resetAt))
	assert.Equal(t, StateCoolingDown, tracker.State(e))
	assert.False(t, tracker.Available(e))
	assert.False(t, tracker.Acquire(e, false))

	clock.Advance(resetAt.Sub(clock.Now()))
	assert.Equal(t, StateHalfOpen, tracker.State(e))
	assert.True(t, tracker.Available(e))
}

func TestTracker_UnknownEngine(t *testing.T) {
	tracker := newTestTracker(newFakeClock())
	unknown := providers.Engine("altavista")

	assert.False(t, tracker.Available(unknown))
	assert.False(t, tracker.Acquire(unknown, true))
	assert.True(t, tracker.Disabled(unknown))
	assert.Equal(t, StateDisabled, tracker.Record(unknown, Succeeded()).State)
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	policy := DefaultPolicy()
	policy.FailureThreshold = 1000
	tracker := NewTracker(allConfigured(), policy, newFakeClock(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(providers.EngineSerper, failure(providers.KindTimeout))
			tracker.Available(providers.EngineSerper)
			tracker.Profiles()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, tracker.Profile(providers.EngineSerper).ConsecutiveFailures)
}
