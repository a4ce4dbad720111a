package homeassistant

import (
	"context"

	"github.com/hearthlab/heater-control/internal/pkg/controller"
)

// Gateway adapts the Home Assistant client to the controller's device
// gateway contract.
type Gateway struct {
	client *Client
}

func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) Temperature(ctx context.Context, sensorID string) (float64, error) {
	return g.client.Temperature(ctx, sensorID)
}

func (g *Gateway) HeaterStatus(ctx context.Context, entityID string) (controller.HeaterStatus, error) {
	state, err := g.client.HeaterState(ctx, entityID)
	if err != nil {
		return controller.HeaterStatus{}, err
	}

	// A missing or malformed last_updated leaves the timestamp zero,
	// which the controller treats as stale.
	last, _ := state.LastUpdatedTime()
	return controller.HeaterStatus{State: state.State, LastUpdated: last}, nil
}

func (g *Gateway) TurnOn(ctx context.Context, entityID string) (bool, error) {
	return g.client.TurnOn(ctx, entityID)
}

func (g *Gateway) TurnOff(ctx context.Context, entityID string) (bool, error) {
	return g.client.TurnOff(ctx, entityID)
}
