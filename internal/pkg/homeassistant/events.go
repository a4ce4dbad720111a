package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// StateChange is an external state transition observed for an entity.
type StateChange struct {
	EntityID string
	OldState string
	NewState string
}

type wsMessage struct {
	ID      int    `json:"id,omitempty"`
	Type    string `json:"type"`
	Success *bool  `json:"success,omitempty"`
	Event   struct {
		Data struct {
			EntityID string `json:"entity_id"`
			OldState *struct {
				State string `json:"state"`
			} `json:"old_state"`
			NewState *struct {
				State string `json:"state"`
			} `json:"new_state"`
		} `json:"data"`
	} `json:"event"`
}

// SubscribeStateChanges opens the Home Assistant websocket API, performs the
// auth handshake, subscribes to state_changed events, and delivers changes
// for entityID on the returned channel until ctx is cancelled.
func (c *Client) SubscribeStateChanges(ctx context.Context, entityID string) (<-chan StateChange, error) {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = wsURL + "/api/websocket"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading auth challenge: %w", err)
	}
	if msg.Type != "auth_required" {
		conn.Close()
		return nil, &APIError{Message: "unexpected websocket response during auth"}
	}

	auth := map[string]string{"type": "auth", "access_token": c.token}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending auth: %w", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading auth result: %w", err)
	}
	if msg.Type == "auth_invalid" {
		conn.Close()
		return nil, &APIError{Message: "websocket authentication failed"}
	}

	subscribe := map[string]interface{}{
		"id":         1,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending subscription: %w", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading subscription result: %w", err)
	}
	if msg.Success == nil || !*msg.Success {
		conn.Close()
		return nil, &APIError{Message: "failed to subscribe to state changes"}
	}

	events := make(chan StateChange)
	go func() {
		defer conn.Close()
		defer close(events)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warnw("websocket read failed", "error", err)
				}
				return
			}

			var m wsMessage
			if err := json.Unmarshal(data, &m); err != nil {
				c.logger.Warnw("unmarshalling websocket message", "error", err)
				continue
			}
			if m.Type != "event" || m.Event.Data.EntityID != entityID {
				continue
			}

			change := StateChange{EntityID: entityID}
			if m.Event.Data.OldState != nil {
				change.OldState = m.Event.Data.OldState.State
			}
			if m.Event.Data.NewState != nil {
				change.NewState = m.Event.Data.NewState.State
			}

			select {
			case events <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return events, nil
}
