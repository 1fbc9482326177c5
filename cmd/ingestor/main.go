package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/database"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/influx"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/logging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/messaging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logging.Setup(cfg.IsLocal(), cfg.LogLevel)
	if cfg.WeakTokenSecret() {
		log.Warn().Str("environment", cfg.Environment).Msg("DEVICE_TOKEN_SECRET is the legacy default; device tokens can be forged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("schema setup failed")
		}
	}

	var sinks []service.ReadingSink
	if cfg.Influx.Enabled() {
		mirror, err := influx.NewMirror(ctx, cfg.Influx)
		if err != nil {
			log.Fatal().Err(err).Msg("influx connect failed")
		}
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}

	svcs := service.New(service.Deps{
		Repos:  repository.New(db),
		Tokens: token.NewCodec(cfg.Token.Secret, cfg.Token.Verify),
		Sinks:  sinks,
	})

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID += "-ingestor"
	client, err := messaging.Connect(ctx, mqttCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect failed")
	}

	log.Info().Str("topic", cfg.MQTT.MeasureTopic).Msg("ingestor running; Ctrl+C to stop")
	if err := messaging.Subscribe(ctx, client, cfg.MQTT.MeasureTopic, 1, messaging.MeasureDataHandler(svcs.MeasureData)); err != nil {
		log.Fatal().Err(err).Msg("subscribe failed")
	}
	log.Info().Msg("ingestor stopped")
}
