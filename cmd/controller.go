package cmd

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqttC "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hearthlab/heater-control/internal/pkg/alerting"
	"github.com/hearthlab/heater-control/internal/pkg/clients"
	"github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/controller"
	"github.com/hearthlab/heater-control/internal/pkg/datadog"
	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/mqtt"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
	"github.com/hearthlab/heater-control/internal/pkg/redis"
)

var (
	logger  *zap.SugaredLogger
	version = "unknown"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the heater control loop and ops API",
	Long:  `Runs the control cycle against the Home Assistant API and serves the health and alert endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		runController()
	},
}

func init() {
	rootCmd.AddCommand(controllerCmd)
}

func runController() {
	l, _ := zap.NewProduction()
	logger = l.Sugar().Named("heater_controller")
	defer logger.Sync()
	logger.Infof("Running heater controller version: %s", version)

	serverConfig := buildServerConfig()

	serverClients, alertService, err := createControllerClients(serverConfig)
	if err != nil {
		logger.Fatalf("Error creating clients: %s", err)
	}

	gateway := homeassistant.NewGateway(serverClients.HomeAssistant)
	ctrl, err := controller.New(gateway, alertService, controller.Config{
		HeaterEntityID:        serverConfig.Controller.HeaterEntityID,
		TempSensorID:          serverConfig.Controller.TempSensorID,
		OnTemp:                serverConfig.Controller.OnTemp,
		OffTemp:               serverConfig.Controller.OffTemp,
		MinCycleTime:          serverConfig.Controller.MinCycleTime,
		SensorStaleTimeout:    serverConfig.Controller.SensorStaleTimeout,
		ManualOverrideTimeout: serverConfig.Controller.ManualOverrideTimeout,
	}, logger)
	if err != nil {
		logger.Fatalf("Error creating controller: %s", err)
	}

	if serverConfig.MqttBrokerURL != "" {
		if err := serverClients.Mqtt.Subscribe(config.HAHeaterOverrideTopic, overrideMessageHandler(ctrl)); err != nil {
			logger.Errorf("subscribing to override topic: %s", err)
		}
	}

	webServer := newWebServer(serverConfig, ctrl, alertService, serverClients)
	go func() {
		logger.Infof("Starting web server on port %s", serverConfig.Port)
		if err := webServer.httpServer.ListenAndServe(); err != nil {
			logger.Errorf("web server stopped: %s", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !serverConfig.MockMode {
		go watchExternalChanges(ctx, serverClients.HomeAssistant, serverConfig.Controller.HeaterEntityID)
	}

	runControlLoop(ctx, ctrl, serverConfig, serverClients)

	logger.Info("Shutting down controller service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := webServer.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutting down web server: %s", err)
	}
}

func createControllerClients(serverConfig config.ServerConfig) (clients.ServerClients, *alerting.Service, error) {
	serverClients := clients.ServerClients{
		HomeAssistant: homeassistant.NewClient(serverConfig.HomeAssistant.URL, serverConfig.HomeAssistant.Token, logger),
	}

	var deduper alerting.Deduper = alerting.NewMemoryDeduper()
	if serverConfig.RedisURL != "" {
		redisClient, err := redis.NewRedisClient(serverConfig.RedisURL, serverConfig.RedisTLSURL != "")
		if err != nil {
			return serverClients, nil, err
		}
		serverClients.Redis = redisClient
		deduper = &redisClient
	}

	var publisher alerting.Publisher
	if serverConfig.MqttBrokerURL != "" {
		mqttClient := mqtt.NewMQTTClient(serverConfig.MqttBrokerURL, true,
			func(client mqttC.Client) {
				logger.Info("Connected to MQTT broker")
			},
			func(client mqttC.Client, err error) {
				logger.Errorf("Connection to MQTT broker lost: %s", err)
			})
		if err := mqttClient.Connect(); err != nil {
			return serverClients, nil, err
		}
		serverClients.Mqtt = mqttClient
		publisher = mqttClient
	}

	if serverConfig.PostgresURL != "" {
		postgresClient, err := postgres.NewPostgresClient(serverConfig.PostgresURL)
		if err != nil {
			return serverClients, nil, err
		}
		serverClients.Postgres = postgresClient
	}

	if serverConfig.DatadogConfig.APIKey != "" {
		serverClients.DDClient = datadog.NewDatadogClient(serverConfig.DatadogConfig.APIKey, serverConfig.DatadogConfig.APPKey)
	}

	alertService := alerting.New(serverConfig.HomeAssistant.URL, serverConfig.HomeAssistant.Token, serverConfig.Alerting, deduper, publisher, logger)

	return serverClients, alertService, nil
}

// runControlLoop drives one control cycle per tick. Cycles are strictly
// serialized: the loop body runs a cycle to completion, including retries
// and alert dispatch, before the next tick is consumed. Shutdown stops
// scheduling; an in-flight cycle is never cancelled, so cycles get a
// background context rather than the signal context.
func runControlLoop(ctx context.Context, ctrl *controller.Controller, serverConfig config.ServerConfig, serverClients clients.ServerClients) {
	interval := serverConfig.Controller.ControlInterval
	logger.Infof("Starting control loop, interval %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastPublished := ctrl.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ctrl.RunControlCycle(context.Background())
			lastPublished = publishCycleTelemetry(ctrl, serverConfig, serverClients, lastPublished)
		}
	}
}

func publishCycleTelemetry(ctrl *controller.Controller, serverConfig config.ServerConfig, serverClients clients.ServerClients, lastPublished controller.State) controller.State {
	ctx := context.Background()
	health := ctrl.Health()

	if serverConfig.DatadogConfig.APIKey != "" {
		if err := serverClients.DDClient.PublishCycleHeartbeat(ctx, serverConfig.AppName); err != nil {
			logger.Errorf("publishing cycle heartbeat: %s", err)
		}
		if err := serverClients.DDClient.PublishControllerState(ctx, serverConfig.AppName, string(health.State)); err != nil {
			logger.Errorf("publishing controller state metric: %s", err)
		}
	}

	if serverConfig.RedisURL != "" {
		if err := serverClients.Redis.WriteControllerState(ctx, string(health.State)); err != nil {
			logger.Errorf("writing controller state to redis: %s", err)
		}
	}

	if serverConfig.MqttBrokerURL != "" && health.State != lastPublished {
		msg := config.HeaterStateMessage{
			State:     string(health.State),
			Decision:  health.LastDecision,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   serverConfig.Version,
		}
		if err := serverClients.Mqtt.PublishHeaterState(msg); err != nil {
			logger.Errorf("publishing heater state: %s", err)
		}
	}

	return health.State
}

// overrideMessageHandler latches manual override when an operator publishes
// to the override topic. The payload is the operator's reason.
func overrideMessageHandler(ctrl *controller.Controller) func(string) {
	return func(payload string) {
		reason := strings.TrimSpace(payload)
		if reason == "" {
			reason = "requested via broker"
		}
		logger.Infow("manual override requested", "reason", reason)
		ctrl.EnterManualOverride(reason)
	}
}

// watchExternalChanges logs heater state transitions observed outside the
// control loop. Detection of manual intervention is observe-only for now;
// nothing here flips the controller into manual override.
func watchExternalChanges(ctx context.Context, haClient *homeassistant.Client, entityID string) {
	events, err := haClient.SubscribeStateChanges(ctx, entityID)
	if err != nil {
		logger.Errorf("subscribing to state changes: %s", err)
		return
	}

	for event := range events {
		logger.Infow("external heater state change", "entity_id", event.EntityID, "old_state", event.OldState, "new_state", event.NewState)
	}
}
