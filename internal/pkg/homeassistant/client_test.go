package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newFastClient(url string) *Client {
	c := NewClient(url, "test-token", zap.NewNop().Sugar())
	c.sleep = func(time.Duration) {}
	c.verifyTimeout = 50 * time.Millisecond
	c.verifyPollInterval = time.Millisecond
	return c
}

func stateResponse(entityID, state string) string {
	return fmt.Sprintf(`{"entity_id":%q,"state":%q,"last_updated":"2026-01-15T08:00:00Z","attributes":{"friendly_name":"Living Room"}}`, entityID, state)
}

func Test_Temperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states/sensor.living_room_temp", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, stateResponse("sensor.living_room_temp", "19.4"))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	temp, err := c.Temperature(context.Background(), "sensor.living_room_temp")
	assert.NoError(t, err)
	assert.Equal(t, 19.4, temp)
}

func Test_TemperatureUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stateResponse("sensor.living_room_temp", "unavailable"))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.Temperature(context.Background(), "sensor.living_room_temp")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `parsing temperature "unavailable"`)
}

func Test_Unauthorized(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.State(context.Background(), "sensor.temp")
	assert.Error(t, err)

	apiErr, ok := err.(*APIError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	// API errors are not retried
	assert.Equal(t, 1, requests)
}

func Test_EntityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.State(context.Background(), "sensor.missing")
	apiErr, ok := err.(*APIError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "entity not found (HTTP 404)", apiErr.Error())
}

func Test_TransportErrorRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stateResponse("sensor.temp", "18.0"))
	}))
	addr := server.URL
	server.Close()

	delays := []time.Duration{}
	c := newFastClient(addr)
	c.sleep = func(d time.Duration) { delays = append(delays, d) }

	_, err := c.State(context.Background(), "sensor.temp")
	assert.Error(t, err)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func Test_TransportErrorRecovers(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			// drop the connection to force a transport error
			hj, ok := w.(http.Hijacker)
			assert.True(t, ok)
			conn, _, err := hj.Hijack()
			assert.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, stateResponse("sensor.temp", "18.0"))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	state, err := c.State(context.Background(), "sensor.temp")
	assert.NoError(t, err)
	assert.Equal(t, "18.0", state.State)
	assert.Equal(t, 2, requests)
}

func Test_TurnOnVerifies(t *testing.T) {
	var serviceCalls []string
	heaterState := "off"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			serviceCalls = append(serviceCalls, r.URL.Path)
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "climate.heater", body["entity_id"])
			heaterState = "heat"
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprint(w, stateResponse("climate.heater", heaterState))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	ok, err := c.TurnOn(context.Background(), "climate.heater")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/api/services/climate/turn_on"}, serviceCalls)
}

func Test_TurnOffVerificationTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, "[]")
			return
		}
		// the heater never actually turns off
		fmt.Fprint(w, stateResponse("climate.heater", "heat"))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	ok, err := c.TurnOff(context.Background(), "climate.heater")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func Test_LastUpdatedTime(t *testing.T) {
	s := EntityState{LastUpdated: "2026-01-15T08:00:00Z"}
	parsed, ok := s.LastUpdatedTime()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC), parsed)

	_, ok = EntityState{}.LastUpdatedTime()
	assert.False(t, ok)

	_, ok = EntityState{LastUpdated: "yesterday"}.LastUpdatedTime()
	assert.False(t, ok)
}
