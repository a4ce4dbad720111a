package datadog

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

type Client struct {
	api    *datadogV2.MetricsApi
	apiKey string
	appKey string
}

func NewDatadogClient(apiKey, appKey string) Client {
	configuration := datadog.NewConfiguration()
	apiClient := datadog.NewAPIClient(configuration)
	api := datadogV2.NewMetricsApi(apiClient)

	return Client{
		api:    api,
		apiKey: apiKey,
		appKey: appKey,
	}
}

func (c *Client) keysContext(ctx context.Context) context.Context {
	return context.WithValue(
		ctx,
		datadog.ContextAPIKeys,
		map[string]datadog.APIKey{
			"apiKeyAuth": {
				Key: c.apiKey,
			},
			"appKeyAuth": {
				Key: c.appKey,
			},
		},
	)
}

func (c *Client) submit(ctx context.Context, series datadogV2.MetricSeries) error {
	body := datadogV2.MetricPayload{
		Series: []datadogV2.MetricSeries{series},
	}

	_, _, err := c.api.SubmitMetrics(c.keysContext(ctx), body, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("submitting metrics: %s", err)
	}
	return nil
}

// PublishControllerState publishes a gauge tagged with the current state.
func (c *Client) PublishControllerState(ctx context.Context, appName, state string) error {
	return c.submit(ctx, datadogV2.MetricSeries{
		Metric: "heater.controller.state",
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{
				Timestamp: datadog.PtrInt64(time.Now().Unix()),
				Value:     datadog.PtrFloat64(1),
			},
		},
		Resources: []datadogV2.MetricResource{
			{
				Type: datadog.PtrString("state"),
				Name: datadog.PtrString(state),
			},
			{
				Type: datadog.PtrString("app"),
				Name: datadog.PtrString(appName),
			},
		},
	})
}

// PublishCycleHeartbeat counts completed control cycles.
func (c *Client) PublishCycleHeartbeat(ctx context.Context, appName string) error {
	return c.submit(ctx, datadogV2.MetricSeries{
		Metric: "heater.controller.cycle",
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{
				Timestamp: datadog.PtrInt64(time.Now().Unix()),
				Value:     datadog.PtrFloat64(1),
			},
		},
		Resources: []datadogV2.MetricResource{
			{
				Type: datadog.PtrString("app"),
				Name: datadog.PtrString(appName),
			},
		},
	})
}
