package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hearthlab/heater-control/internal/pkg/config"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Kind string

const (
	KindTempOutOfBounds Kind = "temp_out_of_bounds"
	KindSensorFailure   Kind = "sensor_failure"
	KindAPIUnreachable  Kind = "api_unreachable"
	KindTierBoundary    Kind = "tier_boundary"
	KindStateChange     Kind = "state_change"
)

type Alert struct {
	Severity   Severity
	Kind       Kind
	Message    string
	CustomData map[string]interface{}
	Timestamp  time.Time
}

type Result struct {
	Status   string
	AlertID  string
	Channels []string
}

// Record is a delivered alert as kept in the in-memory history.
type Record struct {
	AlertID      string    `json:"alert_id"`
	Severity     string    `json:"severity"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	Channels     []string  `json:"channels"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// Deduper suppresses repeats of the same alert key within a window.
type Deduper interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
}

// Publisher fans an alert out to a broker topic. Optional.
type Publisher interface {
	PublishAlert(msg config.AlertMessage) error
}

const maxHistory = 500

// Service delivers severity-tagged alerts to the configured channels.
// Channel failures are logged and never returned to callers.
type Service struct {
	haURL             string
	haToken           string
	discordWebhookURL string
	ntfyTopic         string
	dedupWindow       time.Duration
	dedup             Deduper
	publisher         Publisher
	httpClient        *http.Client
	logger            *zap.SugaredLogger

	mu      sync.Mutex
	history []Record

	now func() time.Time
}

func New(haURL, haToken string, cfg config.AlertingConfig, dedup Deduper, publisher Publisher, logger *zap.SugaredLogger) *Service {
	window := cfg.DedupWindow
	if window == 0 {
		window = config.DefaultDedupWindow
	}
	return &Service{
		haURL:             haURL,
		haToken:           haToken,
		discordWebhookURL: cfg.DiscordWebhookURL,
		ntfyTopic:         cfg.NTFYTopic,
		dedupWindow:       window,
		dedup:             dedup,
		publisher:         publisher,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		logger:            logger,
		now:               time.Now,
	}
}

// SendAlert delivers the alert to every applicable channel. Critical alerts
// additionally go to Discord and ntfy. Repeats of the same (kind, message)
// within the dedup window are suppressed.
func (s *Service) SendAlert(ctx context.Context, alert Alert) Result {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now()
	}

	key := fmt.Sprintf("%s_%s", alert.Kind, alert.Message)
	seen, err := s.dedup.Seen(ctx, key, s.dedupWindow)
	if err != nil {
		s.logger.Warnw("alert dedup check failed, delivering anyway", "error", err)
	} else if seen {
		s.logger.Infow("alert deduplicated", "key", key)
		return Result{Status: "deduplicated"}
	}

	u, _ := uuid.NewV4()
	alertID := u.String()

	var channels []string
	if err := s.sendHAPush(ctx, alert); err != nil {
		s.logger.Errorw("sending push notification", "error", err)
	} else {
		channels = append(channels, "push")
	}

	if alert.Severity == SeverityCritical {
		if s.discordWebhookURL != "" {
			if err := s.sendDiscord(ctx, alert); err != nil {
				s.logger.Errorw("sending discord notification", "error", err)
			} else {
				channels = append(channels, "discord")
			}
		}
		if s.ntfyTopic != "" {
			if err := s.sendNTFY(ctx, alert); err != nil {
				s.logger.Errorw("sending ntfy notification", "error", err)
			} else {
				channels = append(channels, "ntfy")
			}
		}
	}

	if s.publisher != nil {
		msg := config.AlertMessage{
			ID:        alertID,
			Severity:  string(alert.Severity),
			Kind:      string(alert.Kind),
			Message:   alert.Message,
			Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := s.publisher.PublishAlert(msg); err != nil {
			s.logger.Errorw("publishing alert to broker", "error", err)
		} else {
			channels = append(channels, "mqtt")
		}
	}

	s.logAlert(alert, alertID, channels)

	status := "sent"
	if len(channels) == 0 {
		status = "failed"
	}
	return Result{Status: status, AlertID: alertID, Channels: channels}
}

func (s *Service) sendHAPush(ctx context.Context, alert Alert) error {
	url := s.haURL + "/api/services/notify/mobile_app_notification"
	payload := map[string]interface{}{
		"title":   fmt.Sprintf("[%s] %s", alert.Severity, alert.Kind),
		"message": alert.Message,
		"data": map[string]interface{}{
			"alert_type": string(alert.Kind),
			"severity":   string(alert.Severity),
			"timestamp":  alert.Timestamp.UTC().Format(time.RFC3339),
		},
	}

	return s.postJSON(ctx, url, payload, map[string]string{"Authorization": "Bearer " + s.haToken})
}

func (s *Service) sendDiscord(ctx context.Context, alert Alert) error {
	colors := map[Severity]int{
		SeverityCritical: 0xFF0000,
		SeverityWarning:  0xFFA500,
		SeverityInfo:     0x0000FF,
	}

	var fields []map[string]interface{}
	for k, v := range alert.CustomData {
		fields = append(fields, map[string]interface{}{"name": k, "value": fmt.Sprintf("%v", v), "inline": true})
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("%s: %s", alert.Severity, alert.Kind),
				"description": alert.Message,
				"color":       colors[alert.Severity],
				"timestamp":   alert.Timestamp.UTC().Format(time.RFC3339),
				"fields":      fields,
			},
		},
	}

	return s.postJSON(ctx, s.discordWebhookURL, payload, nil)
}

func (s *Service) sendNTFY(ctx context.Context, alert Alert) error {
	url := fmt.Sprintf("https://ntfy.sh/%s", s.ntfyTopic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(alert.Message))
	if err != nil {
		return err
	}
	req.Header.Set("Title", fmt.Sprintf("[%s] %s", alert.Severity, alert.Kind))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to ntfy: %w", err)
	}
	defer resp.Body.Close()

	var r config.NTFYResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decoding ntfy response: %w", err)
	}
	return nil
}

func (s *Service) postJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) error {
	j, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(j))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}
	return nil
}

func (s *Service) logAlert(alert Alert, alertID string, channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Record{
		AlertID:   alertID,
		Severity:  string(alert.Severity),
		Kind:      string(alert.Kind),
		Message:   alert.Message,
		Channels:  channels,
		Timestamp: alert.Timestamp,
	})
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}

	s.logger.Infow("alert logged", "alert_id", alertID, "severity", alert.Severity, "kind", alert.Kind, "channels", channels)
}

// History returns up to limit most recent alerts, optionally filtered by severity.
func (s *Service) History(limit int, severity Severity) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.history
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if severity != "" && r.Severity != string(severity) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Acknowledge marks an alert as acknowledged. Returns false if the id is
// not in the history.
func (s *Service) Acknowledge(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.history {
		if s.history[i].AlertID == alertID {
			s.history[i].Acknowledged = true
			s.logger.Infow("alert acknowledged", "alert_id", alertID)
			return true
		}
	}
	return false
}
