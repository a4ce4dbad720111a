package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hearthlab/heater-control/internal/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "heater-control",
	Short: "Heater control service driven by the Home Assistant API",
	Long:  `Heater control service driven by the Home Assistant API`,
	Run: func(cmd *cobra.Command, args []string) {
		runController()
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
	viper.SetConfigFile(".env")
}

func initConfig() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func buildServerConfig() config.ServerConfig {
	return config.ServerConfig{
		AppName: viper.GetString("APP_NAME"),
		HomeAssistant: config.HomeAssistantConfig{
			URL:   viper.GetString("HA_URL"),
			Token: viper.GetString("HA_TOKEN"),
		},
		Controller: config.ControllerConfig{
			HeaterEntityID:        viper.GetString("HA_HEATER_CLIMATE_ID"),
			TempSensorID:          viper.GetString("HA_TEMP_SENSOR_ID"),
			OnTemp:                viper.GetFloat64("ON_TEMP"),
			OffTemp:               viper.GetFloat64("OFF_TEMP"),
			MinCycleTime:          durationFromEnv("MIN_CYCLE_TIME_SECONDS", config.DefaultMinCycleTime),
			SensorStaleTimeout:    durationFromEnv("SENSOR_STALE_TIMEOUT_SECONDS", config.DefaultSensorStaleTimeout),
			ManualOverrideTimeout: durationFromEnv("MANUAL_OVERRIDE_TIMEOUT_SECONDS", config.DefaultManualOverrideTimeout),
			ControlInterval:       durationFromEnv("CONTROL_INTERVAL_SECONDS", config.DefaultControlInterval),
		},
		Alerting: config.AlertingConfig{
			DiscordWebhookURL: viper.GetString("DISCORD_WEBHOOK_URL"),
			NTFYTopic:         viper.GetString("NTFY_TOPIC"),
			DedupWindow:       durationFromEnv("ALERT_DEDUP_WINDOW_SECONDS", config.DefaultDedupWindow),
		},
		Collector: config.CollectorConfig{
			TempSensorID:        viper.GetString("HA_TEMP_SENSOR_ID"),
			HumiditySensorID:    viper.GetString("HA_HUMIDITY_SENSOR_ID"),
			HeaterEntityID:      viper.GetString("HA_HEATER_CLIMATE_ID"),
			WeatherEntityID:     viper.GetString("HA_WEATHER_ENTITY_ID"),
			ElectricitySensorID: viper.GetString("HA_ELECTRICITY_SENSOR_ID"),
			TempPollInterval:    durationFromEnv("TEMP_POLL_INTERVAL_SECONDS", config.DefaultTempPollInterval),
			WeatherPollInterval: durationFromEnv("WEATHER_POLL_INTERVAL_SECONDS", config.DefaultWeatherPollInterval),
			ElectricityInterval: durationFromEnv("ELECTRICITY_POLL_INTERVAL_SECONDS", config.DefaultElectricityInterval),
			HeaterPowerKW:       viper.GetFloat64("HEATER_POWER_KW"),
		},
		DatadogConfig: config.DatadogConfig{
			APIKey: viper.GetString("DD_API_KEY"),
			APPKey: viper.GetString("DD_APP_KEY"),
		},
		S3Config: config.S3Config{
			AccessKeyID:     viper.GetString("SPACES_AWS_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("SPACES_AWS_SECRET_ACCESS_KEY"),
			Region:          viper.GetString("SPACES_AWS_REGION"),
			URL:             viper.GetString("SPACES_URL"),
			Bucket:          viper.GetString("SPACES_BUCKET_NAME"),
		},
		MqttBrokerURL:  viper.GetString("MQTT_BROKER_URL"),
		RedisURL:       viper.GetString("REDIS_URL"),
		RedisTLSURL:    viper.GetString("REDIS_TLS_URL"),
		PostgresURL:    viper.GetString("DATABASE_URL"),
		Port:           viper.GetString("PORT"),
		MockMode:       viper.GetBool("MOCK_MODE"),
		Version:        version,
		AllowedAPIKeys: viper.GetStringSlice("ALLOWED_API_KEYS"),
	}
}

// durationFromEnv reads a seconds value. Viper returns 0 for unset vars,
// which must fall back to the default rather than disable the timeout.
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	seconds := viper.GetInt(key)
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
