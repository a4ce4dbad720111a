package collector

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
	"go.uber.org/zap"
)

const (
	MinValidTemp     = -40.0
	MaxValidTemp     = 60.0
	MinValidHumidity = 0.0
	MaxValidHumidity = 100.0

	maxBufferSize = 1000
	flushInterval = 60 * time.Second
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func ValidateTemperature(value float64) error {
	if value < MinValidTemp || value > MaxValidTemp {
		return &ValidationError{fmt.Sprintf("temperature %.1f out of valid range [%.1f, %.1f]", value, MinValidTemp, MaxValidTemp)}
	}
	return nil
}

func ValidateHumidity(value float64) error {
	if value < MinValidHumidity || value > MaxValidHumidity {
		return &ValidationError{fmt.Sprintf("humidity %.1f out of valid range [%.1f, %.1f]", value, MinValidHumidity, MaxValidHumidity)}
	}
	return nil
}

// Source is the subset of the Home Assistant client the collector reads from.
type Source interface {
	Temperature(ctx context.Context, entityID string) (float64, error)
	Humidity(ctx context.Context, entityID string) (float64, error)
	HeaterState(ctx context.Context, entityID string) (homeassistant.EntityState, error)
	Weather(ctx context.Context, entityID string) (homeassistant.EntityState, error)
	State(ctx context.Context, entityID string) (homeassistant.EntityState, error)
}

// Store persists readings and state changes.
type Store interface {
	WriteReading(r postgres.Reading) error
	WriteStateChange(s postgres.StateChange) error
}

// Collector polls Home Assistant entities and persists time-series
// readings. Failed writes land in a bounded buffer that a flush loop
// retries; when the buffer is full the oldest point is dropped.
type Collector struct {
	source Source
	store  Store
	cfg    config.CollectorConfig
	logger *zap.SugaredLogger

	mu              sync.Mutex
	buffer          []postgres.Reading
	lastHeaterState string
	heaterOnSince   time.Time
	heaterOnTotal   time.Duration

	now func() time.Time
}

func New(source Source, store Store, cfg config.CollectorConfig, logger *zap.SugaredLogger) *Collector {
	if cfg.TempPollInterval == 0 {
		cfg.TempPollInterval = config.DefaultTempPollInterval
	}
	if cfg.WeatherPollInterval == 0 {
		cfg.WeatherPollInterval = config.DefaultWeatherPollInterval
	}
	if cfg.ElectricityInterval == 0 {
		cfg.ElectricityInterval = config.DefaultElectricityInterval
	}

	return &Collector{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Collector) writeReading(r postgres.Reading) {
	if err := c.store.WriteReading(r); err != nil {
		c.logger.Warnw("reading write failed, buffering point", "measurement", r.Measurement, "error", err)
		c.bufferReading(r)
		return
	}
	c.logger.Infow("wrote reading", "measurement", r.Measurement, "tag", r.Tag, "value", r.Value)
}

func (c *Collector) bufferReading(r postgres.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) >= maxBufferSize {
		c.buffer = c.buffer[1:]
	}
	c.buffer = append(c.buffer, r)
}

// BufferedPoints returns the number of readings awaiting a flush.
func (c *Collector) BufferedPoints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// FlushBuffer retries every buffered reading; points that still fail are
// re-buffered.
func (c *Collector) FlushBuffer() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	points := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	c.logger.Infow("flushing buffered points", "count", len(points))
	for _, r := range points {
		if err := c.store.WriteReading(r); err != nil {
			c.logger.Warnw("failed to flush buffered point", "error", err)
			c.bufferReading(r)
		}
	}
}

func (c *Collector) WriteTemperature(value float64, location string) error {
	if err := ValidateTemperature(value); err != nil {
		return err
	}
	c.writeReading(postgres.Reading{
		Measurement: "temperature",
		Tag:         location,
		Value:       value,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (c *Collector) WriteHumidity(value float64, location string) error {
	if err := ValidateHumidity(value); err != nil {
		return err
	}
	c.writeReading(postgres.Reading{
		Measurement: "humidity",
		Tag:         location,
		Value:       value,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (c *Collector) WriteHeaterState(state, hvacAction string, currentTemp float64) {
	c.writeReading(postgres.Reading{
		Measurement: "heater_state",
		Tag:         state,
		Value:       currentTemp,
		Metadata:    hvacAction,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
}

func (c *Collector) WriteWeather(temperature float64, humidity float64, condition string) {
	c.writeReading(postgres.Reading{
		Measurement: "weather",
		Tag:         condition,
		Value:       temperature,
		Metadata:    fmt.Sprintf("humidity=%.0f", humidity),
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
}

func (c *Collector) WriteElectricity(usage float64) {
	c.writeReading(postgres.Reading{
		Measurement: "electricity",
		Value:       usage,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
}

func (c *Collector) CollectTemperatureHumidity(ctx context.Context) {
	temp, err := c.source.Temperature(ctx, c.cfg.TempSensorID)
	if err != nil {
		c.logger.Errorw("failed to collect temperature", "error", err)
	} else if err := c.WriteTemperature(temp, "home"); err != nil {
		c.logger.Warnw("invalid temperature reading", "error", err)
	}

	humidity, err := c.source.Humidity(ctx, c.cfg.HumiditySensorID)
	if err != nil {
		c.logger.Errorw("failed to collect humidity", "error", err)
	} else if err := c.WriteHumidity(humidity, "home"); err != nil {
		c.logger.Warnw("invalid humidity reading", "error", err)
	}
}

func (c *Collector) CollectHeaterState(ctx context.Context) {
	state, err := c.source.HeaterState(ctx, c.cfg.HeaterEntityID)
	if err != nil {
		c.logger.Errorw("failed to collect heater state", "error", err)
		return
	}

	hvacAction, _ := state.Attributes["hvac_action"].(string)
	currentTemp, _ := state.Attributes["current_temperature"].(float64)
	c.WriteHeaterState(state.State, hvacAction, currentTemp)

	now := c.now()
	c.mu.Lock()
	last := c.lastHeaterState
	c.lastHeaterState = state.State
	if state.State == "heat" {
		if c.heaterOnSince.IsZero() {
			c.heaterOnSince = now
		}
	} else if !c.heaterOnSince.IsZero() {
		c.heaterOnTotal += now.Sub(c.heaterOnSince)
		c.heaterOnSince = time.Time{}
	}
	c.mu.Unlock()

	if last != "" && last != state.State {
		change := postgres.StateChange{
			OldState:  last,
			NewState:  state.State,
			Timestamp: c.now().UTC().Format(time.RFC3339),
		}
		if err := c.store.WriteStateChange(change); err != nil {
			c.logger.Errorw("failed to record heater state change", "error", err)
		}
	}
}

func (c *Collector) CollectWeather(ctx context.Context) {
	weather, err := c.source.Weather(ctx, c.cfg.WeatherEntityID)
	if err != nil {
		c.logger.Errorw("failed to collect weather", "error", err)
		return
	}

	temp, _ := weather.Attributes["temperature"].(float64)
	humidity, _ := weather.Attributes["humidity"].(float64)
	c.WriteWeather(temp, humidity, weather.State)
}

func (c *Collector) CollectElectricity(ctx context.Context) {
	state, err := c.source.State(ctx, c.cfg.ElectricitySensorID)
	if err != nil {
		c.logger.Errorw("failed to collect electricity", "error", err)
		return
	}

	usage, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		c.logger.Errorw("parsing electricity usage", "state", state.State, "error", err)
		return
	}
	c.WriteElectricity(usage)
}

// HeaterOnHours returns the cumulative observed heater on-time in hours,
// including any in-progress on interval.
func (c *Collector) HeaterOnHours() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.heaterOnTotal
	if !c.heaterOnSince.IsZero() {
		total += c.now().Sub(c.heaterOnSince)
	}
	return total.Hours()
}

// Run starts the collection loops and blocks until ctx is cancelled.
// Each loop collects immediately, then on its interval.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("starting data collector loops")

	go c.loop(ctx, c.cfg.TempPollInterval, func() {
		c.CollectTemperatureHumidity(ctx)
		c.CollectHeaterState(ctx)
	})
	go c.loop(ctx, c.cfg.WeatherPollInterval, func() {
		c.CollectWeather(ctx)
	})
	go c.loop(ctx, c.cfg.ElectricityInterval, func() {
		c.CollectElectricity(ctx)
	})
	go c.loop(ctx, flushInterval, func() {
		c.FlushBuffer()
	})

	<-ctx.Done()
	c.logger.Info("stopping data collector loops")
}

func (c *Collector) loop(ctx context.Context, interval time.Duration, collect func()) {
	collect()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collect()
		}
	}
}
