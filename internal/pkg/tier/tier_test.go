package tier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
)

type fakeUsageSource struct {
	state homeassistant.EntityState
	err   error
}

func (f *fakeUsageSource) State(ctx context.Context, entityID string) (homeassistant.EntityState, error) {
	return f.state, f.err
}

type fakeUsageStore struct {
	readings []postgres.Reading
}

func (f *fakeUsageStore) WriteReading(r postgres.Reading) error {
	f.readings = append(f.readings, r)
	return nil
}

func newTestTracker(usage string) (*Tracker, *fakeUsageStore) {
	source := &fakeUsageSource{state: homeassistant.EntityState{State: usage}}
	store := &fakeUsageStore{}
	tracker := New(source, store, Config{ElectricitySensorID: "sensor.electricity"}, zap.NewNop().Sugar())
	return tracker, store
}

func Test_CycleDates(t *testing.T) {
	tracker, _ := newTestTracker("0")

	// on or after the 21st the cycle started this month
	start, end := tracker.cycleDates(time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), end)

	// before the 21st the cycle started last month
	start, end = tracker.cycleDates(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), end)

	// exactly the start day
	start, end = tracker.cycleDates(time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC), end)

	// year boundary
	start, end = tracker.cycleDates(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), end)
}

func Test_CalculateTier(t *testing.T) {
	tier, name := calculateTier(0)
	assert.Equal(t, 1, tier)
	assert.Equal(t, "Tier 1 (0-120kWh)", name)

	tier, _ = calculateTier(119.9)
	assert.Equal(t, 1, tier)

	tier, name = calculateTier(120)
	assert.Equal(t, 2, tier)
	assert.Equal(t, "Tier 2 (120-300kWh)", name)

	tier, _ = calculateTier(299.9)
	assert.Equal(t, 2, tier)

	tier, name = calculateTier(300)
	assert.Equal(t, 3, tier)
	assert.Equal(t, "Tier 3 (300+ kWh)", name)
}

func Test_CurrentTierProjection(t *testing.T) {
	tracker, _ := newTestTracker("100")
	// 10 days into the cycle, 20 remaining: 10 kWh/day projects to 300
	tracker.now = func() time.Time { return time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC) }

	info, err := tracker.CurrentTier(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, info.Tier)
	assert.Equal(t, 100.0, info.UsageKWH)
	assert.Equal(t, 20, info.DaysRemaining)
	assert.Equal(t, 300.0, info.PredictedUsageKWH)
	assert.Equal(t, 3, info.PredictedTierEnd)
}

func Test_CurrentTierFirstDayOfCycle(t *testing.T) {
	tracker, _ := newTestTracker("5")
	tracker.now = func() time.Time { return time.Date(2026, 1, 21, 6, 0, 0, 0, time.UTC) }

	info, err := tracker.CurrentTier(context.Background())
	assert.NoError(t, err)
	// daysElapsed is floored to 1 to avoid dividing by zero
	assert.Equal(t, 5.0+5.0*30, info.PredictedUsageKWH)
}

func Test_CurrentTierUnparseableUsage(t *testing.T) {
	tracker, _ := newTestTracker("unavailable")

	_, err := tracker.CurrentTier(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `parsing electricity usage "unavailable"`)
}

func Test_RecordDailyUsage(t *testing.T) {
	tracker, store := newTestTracker("234.5")
	tracker.now = func() time.Time { return time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC) }

	assert.NoError(t, tracker.RecordDailyUsage(context.Background()))
	assert.Len(t, store.readings, 1)
	assert.Equal(t, "electricity", store.readings[0].Measurement)
	assert.Equal(t, "cumulative", store.readings[0].Tag)
	assert.Equal(t, 234.5, store.readings[0].Value)
	assert.Equal(t, "2026-01-31T00:00:00Z", store.readings[0].Timestamp)
}

func Test_CheckBoundary(t *testing.T) {
	source := &fakeUsageSource{state: homeassistant.EntityState{State: "100"}}
	tracker := New(source, &fakeUsageStore{}, Config{ElectricitySensorID: "sensor.electricity"}, zap.NewNop().Sugar())
	tracker.now = func() time.Time { return time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC) }

	// first check seeds lastTier, never reports a crossing
	info, crossed, err := tracker.CheckBoundary(context.Background())
	assert.NoError(t, err)
	assert.False(t, crossed)
	assert.Equal(t, 1, info.Tier)

	// same tier: no crossing
	_, crossed, _ = tracker.CheckBoundary(context.Background())
	assert.False(t, crossed)

	// usage crosses into tier 2
	source.state.State = "150"
	info, crossed, _ = tracker.CheckBoundary(context.Background())
	assert.True(t, crossed)
	assert.Equal(t, 2, info.Tier)

	// staying in tier 2: no repeat
	source.state.State = "180"
	_, crossed, _ = tracker.CheckBoundary(context.Background())
	assert.False(t, crossed)
}

func Test_EstimateContribution(t *testing.T) {
	assert.Equal(t, 6.0, EstimateContribution(4, 1.5))
	assert.Equal(t, 0.0, EstimateContribution(0, 1.5))
}
