package config

import "time"

type ControllerConfig struct {
	HeaterEntityID        string
	TempSensorID          string
	OnTemp                float64
	OffTemp               float64
	MinCycleTime          time.Duration
	SensorStaleTimeout    time.Duration
	ManualOverrideTimeout time.Duration
	ControlInterval       time.Duration
}

type HomeAssistantConfig struct {
	URL   string
	Token string
}

type AlertingConfig struct {
	DiscordWebhookURL string
	NTFYTopic         string
	DedupWindow       time.Duration
}

type CollectorConfig struct {
	TempSensorID         string
	HumiditySensorID     string
	HeaterEntityID       string
	WeatherEntityID      string
	ElectricitySensorID  string
	TempPollInterval     time.Duration
	WeatherPollInterval  time.Duration
	ElectricityInterval  time.Duration
	HeaterPowerKW        float64
}

type DatadogConfig struct {
	APIKey string
	APPKey string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	URL             string
	Bucket          string
}

type ServerConfig struct {
	AppName        string
	HomeAssistant  HomeAssistantConfig
	Controller     ControllerConfig
	Alerting       AlertingConfig
	Collector      CollectorConfig
	DatadogConfig  DatadogConfig
	S3Config       S3Config
	MqttBrokerURL  string
	RedisURL       string
	RedisTLSURL    string
	PostgresURL    string
	Port           string
	MockMode       bool
	Version        string
	AllowedAPIKeys []string
}
