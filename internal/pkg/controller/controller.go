package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hearthlab/heater-control/internal/pkg/alerting"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle           State = "IDLE"
	StateHeating        State = "HEATING"
	StateCooldown       State = "COOLDOWN"
	StateManualOverride State = "MANUAL_OVERRIDE"
	StateFailure        State = "FAILURE"
)

// HeaterStatus is the heater state plus its freshness timestamp as reported
// by the device gateway. A zero LastUpdated means the gateway could not
// provide a usable timestamp and the data must be treated as stale.
type HeaterStatus struct {
	State       string
	LastUpdated time.Time
}

// Gateway mediates all sensor and actuator I/O. TurnOn/TurnOff perform the
// command plus the gateway's own post-command verification and report
// whether the verified state matched.
type Gateway interface {
	Temperature(ctx context.Context, sensorID string) (float64, error)
	HeaterStatus(ctx context.Context, entityID string) (HeaterStatus, error)
	TurnOn(ctx context.Context, entityID string) (bool, error)
	TurnOff(ctx context.Context, entityID string) (bool, error)
}

// Notifier delivers alerts. Delivery failures are the notifier's concern
// and never surface here.
type Notifier interface {
	SendAlert(ctx context.Context, alert alerting.Alert) alerting.Result
}

type Config struct {
	HeaterEntityID        string
	TempSensorID          string
	OnTemp                float64
	OffTemp               float64
	MinCycleTime          time.Duration
	SensorStaleTimeout    time.Duration
	ManualOverrideTimeout time.Duration

	// MaxVerificationRetries bounds attempts to confirm a command took
	// effect. RetryBackoff is the pause between attempts.
	MaxVerificationRetries int
	RetryBackoff           time.Duration
}

const (
	defaultMaxVerificationRetries = 3
	defaultRetryBackoff           = 2 * time.Second
)

// Health is a read-only snapshot of the controller for the ops surface.
type Health struct {
	State                   State      `json:"state"`
	LastStateChange         time.Time  `json:"last_state_change"`
	SecondsSinceStateChange float64    `json:"seconds_since_state_change"`
	LastTemperature         *float64   `json:"last_temperature,omitempty"`
	LastTemperatureAt       *time.Time `json:"last_temperature_at,omitempty"`
	LastDecision            string     `json:"last_decision,omitempty"`
	LastDecisionAt          *time.Time `json:"last_decision_at,omitempty"`
}

// Controller decides once per control cycle whether to command the heater
// on, off, or do nothing. Cycles must not overlap; the scheduler runs one
// cycle to completion before starting the next. Health may be read
// concurrently with a cycle.
type Controller struct {
	gateway  Gateway
	notifier Notifier
	cfg      Config
	logger   *zap.SugaredLogger

	mu                sync.RWMutex
	state             State
	lastStateChange   time.Time
	lastTemperature   *float64
	lastTemperatureAt *time.Time
	lastDecision      string
	lastDecisionAt    *time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func New(gateway Gateway, notifier Notifier, cfg Config, logger *zap.SugaredLogger) (*Controller, error) {
	if gateway == nil || notifier == nil {
		return nil, errors.New("gateway and notifier are required")
	}
	if cfg.HeaterEntityID == "" || cfg.TempSensorID == "" {
		return nil, errors.New("heater entity id and temp sensor id are required")
	}
	if cfg.OnTemp >= cfg.OffTemp {
		return nil, fmt.Errorf("on temp %.1f must be below off temp %.1f", cfg.OnTemp, cfg.OffTemp)
	}
	if cfg.MinCycleTime <= 0 || cfg.SensorStaleTimeout <= 0 || cfg.ManualOverrideTimeout <= 0 {
		return nil, errors.New("min cycle time, stale timeout, and override timeout must be positive")
	}
	if cfg.MaxVerificationRetries == 0 {
		cfg.MaxVerificationRetries = defaultMaxVerificationRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	c := &Controller{
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	c.lastStateChange = c.now()
	return c, nil
}

// RunControlCycle executes exactly one control cycle: read temperature,
// read heater status, check staleness, evaluate the state machine. Any
// gateway error or stale data forces the FAILURE state; errors never
// propagate past this method.
func (c *Controller) RunControlCycle(ctx context.Context) {
	temp, err := c.gateway.Temperature(ctx, c.cfg.TempSensorID)
	if err != nil {
		c.enterFailure(ctx, fmt.Sprintf("Device gateway error: %s", err))
		return
	}
	c.recordTemperature(temp)

	status, err := c.gateway.HeaterStatus(ctx, c.cfg.HeaterEntityID)
	if err != nil {
		c.enterFailure(ctx, fmt.Sprintf("Device gateway error: %s", err))
		return
	}

	if c.isStale(status) {
		c.enterFailure(ctx, "Sensor data is stale")
		return
	}

	c.evaluate(ctx, temp)
}

func (c *Controller) isStale(status HeaterStatus) bool {
	if status.LastUpdated.IsZero() {
		return true
	}
	return c.now().Sub(status.LastUpdated) > c.cfg.SensorStaleTimeout
}

func (c *Controller) evaluate(ctx context.Context, temp float64) {
	c.mu.RLock()
	state := c.state
	dwell := c.now().Sub(c.lastStateChange)
	c.mu.RUnlock()

	switch state {
	case StateIdle:
		c.handleIdle(ctx, temp)
	case StateHeating:
		c.handleHeating(ctx, temp)
	case StateCooldown:
		c.handleCooldown(ctx, temp, dwell)
	case StateManualOverride:
		c.handleManualOverride(dwell)
	case StateFailure:
		// Terminal. The FAILURE decision stays visible on the health
		// surface, so no per-cycle decision is recorded here.
	}
}

func (c *Controller) handleIdle(ctx context.Context, temp float64) {
	if temp >= c.cfg.OnTemp {
		c.recordDecision(fmt.Sprintf("Temperature %.1fC >= %.1fC threshold -> no action", temp, c.cfg.OnTemp))
		return
	}

	c.recordDecision(fmt.Sprintf("Temperature %.1fC < %.1fC threshold -> turn ON", temp, c.cfg.OnTemp))
	if c.turnOnWithRetry(ctx) {
		c.transitionTo(StateHeating)
	} else {
		c.enterFailure(ctx, "Failed to turn on heater after retries")
	}
}

func (c *Controller) handleHeating(ctx context.Context, temp float64) {
	if temp < c.cfg.OffTemp {
		c.recordDecision(fmt.Sprintf("Temperature %.1fC < %.1fC threshold -> keep heating", temp, c.cfg.OffTemp))
		return
	}

	c.recordDecision(fmt.Sprintf("Temperature %.1fC >= %.1fC threshold -> turn OFF", temp, c.cfg.OffTemp))
	if c.turnOffWithRetry(ctx) {
		c.transitionTo(StateCooldown)
	} else {
		c.enterFailure(ctx, "Failed to turn off heater after retries")
	}
}

func (c *Controller) handleCooldown(ctx context.Context, temp float64, dwell time.Duration) {
	if dwell < c.cfg.MinCycleTime {
		remaining := c.cfg.MinCycleTime - dwell
		c.recordDecision(fmt.Sprintf("COOLDOWN in progress (%.0fs remaining), temp %.1fC -> wait", remaining.Seconds(), temp))
		return
	}

	if temp < c.cfg.OnTemp {
		c.recordDecision(fmt.Sprintf("COOLDOWN complete (%.0fs), temp %.1fC < %.1fC -> turn ON", dwell.Seconds(), temp, c.cfg.OnTemp))
		if c.turnOnWithRetry(ctx) {
			c.transitionTo(StateHeating)
		} else {
			c.enterFailure(ctx, "Failed to turn on heater after retries")
		}
		return
	}

	c.recordDecision(fmt.Sprintf("COOLDOWN complete (%.0fs), temp %.1fC >= %.1fC -> IDLE", dwell.Seconds(), temp, c.cfg.OnTemp))
	c.transitionTo(StateIdle)
}

func (c *Controller) handleManualOverride(dwell time.Duration) {
	if dwell >= c.cfg.ManualOverrideTimeout {
		c.recordDecision(fmt.Sprintf("Manual override timeout (%.0fs) -> resume automatic control", dwell.Seconds()))
		c.transitionTo(StateIdle)
		return
	}

	remaining := c.cfg.ManualOverrideTimeout - dwell
	c.recordDecision(fmt.Sprintf("Manual override active (%.0fs remaining) -> no action", remaining.Seconds()))
}

func (c *Controller) turnOnWithRetry(ctx context.Context) bool {
	return c.commandWithRetry(ctx, "ON", c.gateway.TurnOn)
}

func (c *Controller) turnOffWithRetry(ctx context.Context) bool {
	return c.commandWithRetry(ctx, "OFF", c.gateway.TurnOff)
}

func (c *Controller) commandWithRetry(ctx context.Context, direction string, command func(context.Context, string) (bool, error)) bool {
	for attempt := 1; attempt <= c.cfg.MaxVerificationRetries; attempt++ {
		ok, err := command(ctx, c.cfg.HeaterEntityID)
		switch {
		case err != nil:
			c.logger.Errorw("heater command failed", "direction", direction, "attempt", attempt, "error", err)
		case ok:
			c.logger.Infow("heater command verified", "direction", direction, "attempt", attempt)
			return true
		default:
			c.logger.Warnw("heater command verification failed", "direction", direction, "attempt", attempt)
		}

		if attempt < c.cfg.MaxVerificationRetries {
			c.sleep(c.cfg.RetryBackoff)
		}
	}
	return false
}

func (c *Controller) transitionTo(newState State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == newState {
		return
	}
	c.logger.Infow("state transition", "from", c.state, "to", newState)
	c.state = newState
	c.lastStateChange = c.now()
}

func (c *Controller) enterFailure(ctx context.Context, reason string) {
	c.logger.Errorw("entering FAILURE state", "reason", reason)
	c.transitionTo(StateFailure)

	result := c.notifier.SendAlert(ctx, alerting.Alert{
		Severity: alerting.SeverityCritical,
		Kind:     alerting.KindSensorFailure,
		Message:  "Heater controller entered FAILURE state: " + reason,
	})
	c.logger.Infow("failure alert dispatched", "status", result.Status, "alert_id", result.AlertID)

	c.recordDecision("FAILURE: " + reason)
}

// EnterManualOverride latches the MANUAL_OVERRIDE state. Entry is driven by
// an external detector, never by the polled control path; automatic control
// resumes once the configured override timeout elapses.
func (c *Controller) EnterManualOverride(reason string) {
	c.transitionTo(StateManualOverride)
	c.recordDecision("Manual override engaged: " + reason)
}

func (c *Controller) recordTemperature(temp float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	c.lastTemperature = &temp
	c.lastTemperatureAt = &t
}

func (c *Controller) recordDecision(decision string) {
	c.logger.Info(decision)

	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	c.lastDecision = decision
	c.lastDecisionAt = &t
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Health returns a consistent snapshot of the controller. Safe to call
// concurrently with an in-flight cycle.
func (c *Controller) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{
		State:                   c.state,
		LastStateChange:         c.lastStateChange,
		SecondsSinceStateChange: c.now().Sub(c.lastStateChange).Seconds(),
		LastDecision:            c.lastDecision,
	}
	if c.lastTemperature != nil {
		v := *c.lastTemperature
		h.LastTemperature = &v
	}
	if c.lastTemperatureAt != nil {
		t := *c.lastTemperatureAt
		h.LastTemperatureAt = &t
	}
	if c.lastDecisionAt != nil {
		t := *c.lastDecisionAt
		h.LastDecisionAt = &t
	}
	return h
}
