package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthlab/heater-control/internal/pkg/tier"
)

func Test_TierAlertMessage(t *testing.T) {
	info := tier.Info{
		Tier:              2,
		TierName:          "Tier 2 (120-300kWh)",
		UsageKWH:          135.0,
		PredictedUsageKWH: 310.5,
	}

	msg := tierAlertMessage(info, 40, 1.5)
	assert.Equal(t, "Electricity usage crossed into tier 2 (Tier 2 (120-300kWh)): 135.0 kWh this cycle, projected 310.5 kWh, heater contribution ~60.0 kWh", msg)

	// without a configured heater power rating the estimate is omitted
	msg = tierAlertMessage(info, 40, 0)
	assert.Equal(t, "Electricity usage crossed into tier 2 (Tier 2 (120-300kWh)): 135.0 kWh this cycle, projected 310.5 kWh", msg)
}
