package config

import "time"

const (
	HAHeaterStateTopic    = "ha/heater/state"
	HAHeaterAlertTopic    = "ha/heater/alert"
	HAHeaterOverrideTopic = "ha/heater/override"

	DefaultControlInterval       = 30 * time.Second
	DefaultMinCycleTime          = 180 * time.Second
	DefaultSensorStaleTimeout    = 5 * time.Minute
	DefaultManualOverrideTimeout = 30 * time.Minute
	DefaultDedupWindow           = 30 * time.Minute

	DefaultTempPollInterval    = 60 * time.Second
	DefaultWeatherPollInterval = 5 * time.Minute
	DefaultElectricityInterval = 24 * time.Hour
)

type HeaterStateMessage struct {
	State     string `json:"state"`
	Decision  string `json:"decision"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type AlertMessage struct {
	ID        string `json:"id"`
	Severity  string `json:"severity"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type NTFYResponse struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Time  int64  `json:"time"`
}
