package clients

import (
	"github.com/hearthlab/heater-control/internal/pkg/aws"
	"github.com/hearthlab/heater-control/internal/pkg/datadog"
	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/mqtt"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
	"github.com/hearthlab/heater-control/internal/pkg/redis"
)

type ServerClients struct {
	HomeAssistant *homeassistant.Client
	Postgres      postgres.Client
	Redis         redis.Client
	Mqtt          mqtt.MqttClient
	AWS           aws.Client
	DDClient      datadog.Client
}
