package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is returned for non-2xx responses from Home Assistant.
// Transport failures are retried; API errors are not.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// EntityState is the state object returned by /api/states/<entity_id>.
// LastUpdated is kept as the raw string; a missing or unparseable value
// is treated as stale by callers rather than failing the read.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	LastUpdated string                 `json:"last_updated"`
	Attributes  map[string]interface{} `json:"attributes"`
}

// LastUpdatedTime parses the freshness timestamp. ok is false when the
// timestamp is missing or malformed.
func (s EntityState) LastUpdatedTime() (time.Time, bool) {
	if s.LastUpdated == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.LastUpdated)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.SugaredLogger

	retryDelays        []time.Duration
	verifyTimeout      time.Duration
	verifyPollInterval time.Duration
	sleep              func(time.Duration)
}

func NewClient(baseURL, token string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:            strings.TrimRight(baseURL, "/"),
		token:              token,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		logger:             logger,
		retryDelays:        []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		verifyTimeout:      5 * time.Second,
		verifyPollInterval: 500 * time.Millisecond,
		sleep:              time.Sleep,
	}
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	url := c.baseURL + endpoint
	maxRetries := len(c.retryDelays)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		c.logger.Infow("home assistant request", "method", method, "url", url, "attempt", attempt+1)

		data, err := c.doRequest(ctx, method, url, body)
		if err == nil {
			return data, nil
		}
		if apiErr, ok := err.(*APIError); ok {
			return nil, apiErr
		}
		lastErr = err
		if attempt < maxRetries-1 {
			delay := c.retryDelays[attempt]
			c.logger.Warnw("request failed, retrying", "delay", delay, "error", err)
			c.sleep(delay)
		}
	}

	return nil, &APIError{Message: fmt.Sprintf("request failed after %d attempts: %s", maxRetries, lastErr)}
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(j)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unauthorized: %s", data)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "entity not found"}
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("api error: %s", data)}
	}

	return data, nil
}

// State returns the current state of an entity.
func (c *Client) State(ctx context.Context, entityID string) (EntityState, error) {
	data, err := c.makeRequest(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return EntityState{}, err
	}

	var state EntityState
	if err := json.Unmarshal(data, &state); err != nil {
		return EntityState{}, fmt.Errorf("unmarshalling entity state: %w", err)
	}
	return state, nil
}

// Temperature reads a sensor entity state as a float.
func (c *Client) Temperature(ctx context.Context, entityID string) (float64, error) {
	state, err := c.State(ctx, entityID)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing temperature %q: %w", state.State, err)
	}
	return value, nil
}

// Humidity reads a humidity sensor entity state as a float.
func (c *Client) Humidity(ctx context.Context, entityID string) (float64, error) {
	state, err := c.State(ctx, entityID)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing humidity %q: %w", state.State, err)
	}
	return value, nil
}

// HeaterState returns the full state of a climate entity.
func (c *Client) HeaterState(ctx context.Context, entityID string) (EntityState, error) {
	return c.State(ctx, entityID)
}

// Weather returns the state of a weather entity.
func (c *Client) Weather(ctx context.Context, entityID string) (EntityState, error) {
	return c.State(ctx, entityID)
}

func (c *Client) callService(ctx context.Context, domain, service string, serviceData map[string]interface{}) error {
	endpoint := fmt.Sprintf("/api/services/%s/%s", domain, service)
	_, err := c.makeRequest(ctx, http.MethodPost, endpoint, serviceData)
	return err
}

// verifyState polls the entity until it reports the expected state or the
// verification window elapses.
func (c *Client) verifyState(ctx context.Context, entityID, expected string) (bool, error) {
	deadline := time.Now().Add(c.verifyTimeout)
	for time.Now().Before(deadline) {
		state, err := c.State(ctx, entityID)
		if err != nil {
			return false, err
		}
		if state.State == expected {
			return true, nil
		}
		c.sleep(c.verifyPollInterval)
	}
	return false, nil
}

// TurnOn turns on a climate entity and verifies it reached the "heat" state.
func (c *Client) TurnOn(ctx context.Context, entityID string) (bool, error) {
	if err := c.callService(ctx, "climate", "turn_on", map[string]interface{}{"entity_id": entityID}); err != nil {
		return false, err
	}
	return c.verifyState(ctx, entityID, "heat")
}

// TurnOff turns off a climate entity and verifies it reached the "off" state.
func (c *Client) TurnOff(ctx context.Context, entityID string) (bool, error) {
	if err := c.callService(ctx, "climate", "turn_off", map[string]interface{}{"entity_id": entityID}); err != nil {
		return false, err
	}
	return c.verifyState(ctx, entityID, "off")
}

// SetHVACMode sets the hvac mode of a climate entity and verifies it.
func (c *Client) SetHVACMode(ctx context.Context, entityID, mode string) (bool, error) {
	data := map[string]interface{}{"entity_id": entityID, "hvac_mode": mode}
	if err := c.callService(ctx, "climate", "set_hvac_mode", data); err != nil {
		return false, err
	}
	return c.verifyState(ctx, entityID, mode)
}
