package flags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/chaosguard/internal/authority"
	"github.com/aonescu/chaosguard/internal/state"
	"github.com/aonescu/chaosguard/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func newRegistry(t *testing.T, clock *fakeClock) *Registry {
	t.Helper()
	r, err := NewRegistry(state.NewMemoryStore(),
		WithClock(clock.Now),
		WithComponentValidator(authority.NewComponentAuthorityMap()))
	require.NoError(t, err)
	return r
}

func TestRegistry_EnableAndExpiry(t *testing.T) {
	clock := newFakeClock()
	r := newRegistry(t, clock)

	flag, err := r.Enable("chaos.sender.reject", EnableOptions{
		Type:            types.FlagInjectFailure,
		TargetComponent: "message_sender",
		Config:          map[string]interface{}{"error_rate": 40},
		Duration:        300 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, flag.ExpiresAt)
	assert.Equal(t, clock.now.Add(300*time.Second), *flag.ExpiresAt)

	clock.Advance(299 * time.Second)
	assert.True(t, r.IsEnabled("chaos.sender.reject"))
	assert.Equal(t, 40.0, r.GetConfig("chaos.sender.reject")["error_rate"])

	clock.Advance(2 * time.Second)
	assert.False(t, r.IsEnabled("chaos.sender.reject"))
	assert.Empty(t, r.GetConfig("chaos.sender.reject"))
}

func TestRegistry_EnableIndefinite(t *testing.T) {
	clock := newFakeClock()
	r := newRegistry(t, clock)

	flag, err := r.Enable("chaos.cache.down", EnableOptions{Type: types.FlagCacheUnavailable})
	require.NoError(t, err)
	assert.Nil(t, flag.ExpiresAt)

	clock.Advance(365 * 24 * time.Hour)
	assert.True(t, r.IsEnabled("chaos.cache.down"))
}

func TestRegistry_ReEnableResetsExpiry(t *testing.T) {
	clock := newFakeClock()
	r := newRegistry(t, clock)

	opts := EnableOptions{Type: types.FlagDelay, Config: map[string]interface{}{"delay_ms": 100}, Duration: time.Minute}
	_, err := r.Enable("chaos.webhook.delay", opts)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	_, err = r.Enable("chaos.webhook.delay", opts)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	assert.True(t, r.IsEnabled("chaos.webhook.delay"), "re-enable should reset the expiry window")

	all, err := r.All()
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-enabling must overwrite, not duplicate")
}

func TestRegistry_EnableValidation(t *testing.T) {
	r := newRegistry(t, newFakeClock())

	tests := []struct {
		name string
		key  string
		opts EnableOptions
	}{
		{"empty key", " ", EnableOptions{Type: types.FlagCacheUnavailable}},
		{"unknown type", "k", EnableOptions{Type: "meteor_strike"}},
		{"negative duration", "k", EnableOptions{Type: types.FlagCacheUnavailable, Duration: -time.Second}},
		{"unknown component", "k", EnableOptions{Type: types.FlagCacheUnavailable, TargetComponent: "mainframe"}},
		{"missing required field", "k", EnableOptions{Type: types.FlagDelay, Config: map[string]interface{}{}}},
		{"out of range", "k", EnableOptions{Type: types.FlagInjectFailure, Config: map[string]interface{}{"error_rate": 150}}},
		{"non-integer", "k", EnableOptions{Type: types.FlagTimeout, Config: map[string]interface{}{"timeout_ms": 2.5}}},
		{"unexpected field", "k", EnableOptions{Type: types.FlagKillWorker, Config: map[string]interface{}{"queue": "q", "count": 1, "signal": "KILL"}}},
		{"bad enum", "k", EnableOptions{Type: types.FlagCacheUnavailable, Config: map[string]interface{}{"mode": "sometimes"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Enable(tt.key, tt.opts)
			require.Error(t, err)
			assert.True(t, types.IsValidation(err), "expected validation error, got %v", err)
			assert.False(t, r.IsEnabled(tt.key))
		})
	}
}

func TestRegistry_DisableIsNoOpWhenAbsent(t *testing.T) {
	r := newRegistry(t, newFakeClock())

	assert.NoError(t, r.Disable("never.enabled"))

	_, err := r.Enable("chaos.webhook.replay", EnableOptions{Type: types.FlagReplayWebhook, Config: map[string]interface{}{"replay_count": 2}})
	require.NoError(t, err)

	require.NoError(t, r.DisableWithReason("chaos.webhook.replay", "done"))
	assert.False(t, r.IsEnabled("chaos.webhook.replay"))

	// Second disable keeps the original reason
	require.NoError(t, r.DisableWithReason("chaos.webhook.replay", "again"))
	flag, exists, err := r.Get("chaos.webhook.replay")
	require.NoError(t, err)
	require.True(t, exists, "disabled flags are kept for audit")
	assert.Equal(t, "done", flag.DisabledReason)
}

func TestRegistry_DisableAll(t *testing.T) {
	r := newRegistry(t, newFakeClock())

	count, err := r.DisableAll("nothing to do")
	require.NoError(t, err)
	assert.Zero(t, count)

	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		_, err := r.Enable(k, EnableOptions{Type: types.FlagCacheUnavailable})
		require.NoError(t, err)
	}

	count, err = r.DisableAll("emergency stop")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, k := range keys {
		assert.False(t, r.IsEnabled(k), "flag %s still enabled", k)
		flag, _, _ := r.Get(k)
		assert.Equal(t, "emergency stop", flag.DisabledReason)
	}

	active, err := r.Active()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRegistry_Decode(t *testing.T) {
	r := newRegistry(t, newFakeClock())

	_, err := r.Enable("chaos.worker.kill", EnableOptions{
		Type:   types.FlagKillWorker,
		Config: map[string]interface{}{"queue": "outbound", "count": 2},
	})
	require.NoError(t, err)

	var cfg KillWorkerConfig
	active, err := r.Decode("chaos.worker.kill", &cfg)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, KillWorkerConfig{Queue: "outbound", Count: 2}, cfg)

	var none DelayConfig
	active, err = r.Decode("missing", &none)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfigJSON(`{"delay_ms": 300}`)
	require.NoError(t, err)
	assert.Equal(t, 300.0, cfg["delay_ms"])

	cfg, err = ParseConfigJSON("")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	for _, raw := range []string{`{"delay_ms": `, `null`, `[1,2]`} {
		_, err = ParseConfigJSON(raw)
		assert.True(t, types.IsValidation(err), "expected validation error for %q", raw)
	}
}
