package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hearthlab/heater-control/internal/pkg/alerting"
	"github.com/hearthlab/heater-control/internal/pkg/collector"
	"github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/homeassistant"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
	"github.com/hearthlab/heater-control/internal/pkg/tier"
)

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Collect sensor readings and electricity usage",
	Long:  `Polls Home Assistant sensors on fixed intervals, persists readings to postgres, and tracks electricity billing tier usage.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCollector()
	},
}

func init() {
	rootCmd.AddCommand(collectorCmd)
}

func runCollector() {
	l, _ := zap.NewProduction()
	logger = l.Sugar().Named("heater_collector")
	defer logger.Sync()
	logger.Infof("Running heater collector version: %s", version)

	serverConfig := buildServerConfig()

	if serverConfig.PostgresURL == "" {
		logger.Fatal("DATABASE_URL is required for the collector")
	}

	haClient := homeassistant.NewClient(serverConfig.HomeAssistant.URL, serverConfig.HomeAssistant.Token, logger)
	postgresClient, err := postgres.NewPostgresClient(serverConfig.PostgresURL)
	if err != nil {
		logger.Fatalf("Error creating postgres client: %s", err)
	}

	alertService := alerting.New(serverConfig.HomeAssistant.URL, serverConfig.HomeAssistant.Token, serverConfig.Alerting, alerting.NewMemoryDeduper(), nil, logger)

	dataCollector := collector.New(haClient, &postgresClient, serverConfig.Collector, logger)

	tierTracker := tier.New(haClient, &postgresClient, tier.Config{
		ElectricitySensorID: serverConfig.Collector.ElectricitySensorID,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serverConfig.Collector.ElectricitySensorID != "" {
		go runTierLoop(ctx, tierTracker, alertService, dataCollector, serverConfig.Collector)
	}

	dataCollector.Run(ctx)
	logger.Info("Shutting down collector service")
}

func runTierLoop(ctx context.Context, tracker *tier.Tracker, alerts *alerting.Service, dataCollector *collector.Collector, cfg config.CollectorConfig) {
	ticker := time.NewTicker(cfg.ElectricityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tracker.RecordDailyUsage(ctx); err != nil {
				logger.Errorf("recording daily usage: %s", err)
				continue
			}
			info, crossed, err := tracker.CheckBoundary(ctx)
			if err != nil {
				logger.Errorf("checking tier boundary: %s", err)
				continue
			}
			if crossed {
				alerts.SendAlert(ctx, alerting.Alert{
					Severity: alerting.SeverityWarning,
					Kind:     alerting.KindTierBoundary,
					Message:  tierAlertMessage(info, dataCollector.HeaterOnHours(), cfg.HeaterPowerKW),
				})
			}
		}
	}
}

func tierAlertMessage(info tier.Info, heaterOnHours, heaterPowerKW float64) string {
	msg := fmt.Sprintf("Electricity usage crossed into tier %d (%s): %.1f kWh this cycle, projected %.1f kWh", info.Tier, info.TierName, info.UsageKWH, info.PredictedUsageKWH)
	if heaterPowerKW > 0 {
		msg += fmt.Sprintf(", heater contribution ~%.1f kWh", tier.EstimateContribution(heaterOnHours, heaterPowerKW))
	}
	return msg
}
