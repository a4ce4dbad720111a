package tier

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
	"go.uber.org/zap"
)

// Billing cycle runs from the 21st of a month to the 20th of the next.
const defaultCycleStartDay = 21

var (
	tierBoundaries = []float64{120.0, 300.0}
	tierNames      = []string{
		"Tier 1 (0-120kWh)",
		"Tier 2 (120-300kWh)",
		"Tier 3 (300+ kWh)",
	}
)

// Info describes the current electricity tier and the projection for the
// rest of the billing cycle.
type Info struct {
	Tier              int     `json:"tier"`
	TierName          string  `json:"tier_name"`
	UsageKWH          float64 `json:"usage_kwh"`
	DaysRemaining     int     `json:"days_remaining"`
	PredictedTierEnd  int     `json:"predicted_tier_end"`
	PredictedUsageKWH float64 `json:"predicted_usage_kwh"`
}

// UsageSource reads the cumulative electricity sensor.
type UsageSource interface {
	State(ctx context.Context, entityID string) (homeassistant.EntityState, error)
}

// Store persists daily usage snapshots.
type Store interface {
	WriteReading(r postgres.Reading) error
}

type Config struct {
	ElectricitySensorID string
	CycleStartDay       int
}

// Tracker tracks cumulative electricity usage against billing tiers.
type Tracker struct {
	source UsageSource
	store  Store
	cfg    Config
	logger *zap.SugaredLogger

	mu       sync.Mutex
	lastTier int

	now func() time.Time
}

func New(source UsageSource, store Store, cfg Config, logger *zap.SugaredLogger) *Tracker {
	if cfg.CycleStartDay == 0 {
		cfg.CycleStartDay = defaultCycleStartDay
	}
	return &Tracker{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (t *Tracker) cycleDates(now time.Time) (time.Time, time.Time) {
	day := t.cfg.CycleStartDay
	var start time.Time
	if now.Day() >= day {
		start = time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
	} else {
		start = time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	}
	end := start.AddDate(0, 1, -1)
	return start, end
}

func calculateTier(usageKWH float64) (int, string) {
	switch {
	case usageKWH < tierBoundaries[0]:
		return 1, tierNames[0]
	case usageKWH < tierBoundaries[1]:
		return 2, tierNames[1]
	default:
		return 3, tierNames[2]
	}
}

// CumulativeUsage reads the cumulative kWh for the current billing cycle.
func (t *Tracker) CumulativeUsage(ctx context.Context) (float64, error) {
	state, err := t.source.State(ctx, t.cfg.ElectricitySensorID)
	if err != nil {
		return 0, err
	}
	usage, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing electricity usage %q: %w", state.State, err)
	}
	return usage, nil
}

// CurrentTier returns tier information with an end-of-cycle projection
// based on the average daily usage rate so far.
func (t *Tracker) CurrentTier(ctx context.Context) (Info, error) {
	usage, err := t.CumulativeUsage(ctx)
	if err != nil {
		return Info{}, err
	}
	tier, name := calculateTier(usage)

	now := t.now().UTC()
	cycleStart, cycleEnd := t.cycleDates(now)

	daysElapsed := int(now.Sub(cycleStart).Hours() / 24)
	if daysElapsed == 0 {
		daysElapsed = 1
	}
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysRemaining := int(cycleEnd.Sub(nowDate).Hours() / 24)

	dailyRate := usage / float64(daysElapsed)
	predictedUsage := usage + dailyRate*float64(daysRemaining)
	predictedTier, _ := calculateTier(predictedUsage)

	return Info{
		Tier:              tier,
		TierName:          name,
		UsageKWH:          usage,
		DaysRemaining:     daysRemaining,
		PredictedTierEnd:  predictedTier,
		PredictedUsageKWH: predictedUsage,
	}, nil
}

// RecordDailyUsage persists the cumulative usage snapshot.
func (t *Tracker) RecordDailyUsage(ctx context.Context) error {
	usage, err := t.CumulativeUsage(ctx)
	if err != nil {
		return err
	}
	return t.store.WriteReading(postgres.Reading{
		Measurement: "electricity",
		Tag:         "cumulative",
		Value:       usage,
		Timestamp:   t.now().UTC().Format(time.RFC3339),
	})
}

// CheckBoundary reports whether the tier increased since the last check.
func (t *Tracker) CheckBoundary(ctx context.Context) (Info, bool, error) {
	info, err := t.CurrentTier(ctx)
	if err != nil {
		return Info{}, false, err
	}

	t.mu.Lock()
	crossed := t.lastTier != 0 && info.Tier > t.lastTier
	t.lastTier = info.Tier
	t.mu.Unlock()

	return info, crossed, nil
}

// EstimateContribution estimates the heater's share of usage from its
// cumulative on-time.
func EstimateContribution(onHours, heaterPowerKW float64) float64 {
	return onHours * heaterPowerKW
}
