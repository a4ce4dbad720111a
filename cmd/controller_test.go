package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hearthlab/heater-control/internal/pkg/controller"
)

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()
	logger = zap.NewNop().Sugar()

	ctrl, err := controller.New(stubGateway{}, stubNotifier{}, controller.Config{
		HeaterEntityID:        "climate.heater",
		TempSensorID:          "sensor.temp",
		OnTemp:                18,
		OffTemp:               21,
		MinCycleTime:          3 * time.Minute,
		SensorStaleTimeout:    5 * time.Minute,
		ManualOverrideTimeout: 30 * time.Minute,
	}, logger)
	assert.NoError(t, err)
	return ctrl
}

func Test_OverrideMessageHandler(t *testing.T) {
	ctrl := newTestController(t)
	handler := overrideMessageHandler(ctrl)

	handler("operator servicing the heater")

	assert.Equal(t, controller.StateManualOverride, ctrl.State())
	assert.Equal(t, "Manual override engaged: operator servicing the heater", ctrl.Health().LastDecision)
}

func Test_OverrideMessageHandlerEmptyPayload(t *testing.T) {
	ctrl := newTestController(t)
	handler := overrideMessageHandler(ctrl)

	handler("  \n")

	assert.Equal(t, controller.StateManualOverride, ctrl.State())
	assert.Equal(t, "Manual override engaged: requested via broker", ctrl.Health().LastDecision)
}

func Test_RegisteredSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "controller")
	assert.Contains(t, names, "collector")
	assert.Contains(t, names, "backup")
}
