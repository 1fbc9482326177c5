package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/cloud"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/http"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/influx"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/logging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/messaging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
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

	client, err := messaging.Connect(ctx, cfg.MQTT)
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect failed")
	}
	publisher := messaging.NewPublisher(client, cfg.MQTT)
	defer publisher.Close()

	var sinks []service.ReadingSink
	if cfg.Influx.Enabled() {
		mirror, err := influx.NewMirror(ctx, cfg.Influx)
		if err != nil {
			log.Fatal().Err(err).Msg("influx connect failed")
		}
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}

	m := metrics.New()
	deps := service.Deps{
		Repos:          repository.New(db),
		Tokens:         token.NewCodec(cfg.Token.Secret, cfg.Token.Verify),
		Publisher:      publisher,
		LightbulbTopic: cfg.MQTT.LightbulbTopic,
		Sinks:          sinks,
		Metrics:        m,
	}
	if cfg.AWS.ExportBucket != "" {
		exporter, err := cloud.NewExporter(ctx, cfg.AWS.Region, cfg.AWS.ExportBucket, cfg.AWS.ExportURLTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 exporter setup failed")
		}
		deps.Exporter = exporter
		log.Info().Str("bucket", cfg.AWS.ExportBucket).Msg("history export enabled")
	}
	if cfg.AWS.AlertsTopicARN != "" {
		alerter, err := cloud.NewAlerter(ctx, cfg.AWS.Region, cfg.AWS.AlertsTopicARN)
		if err != nil {
			log.Fatal().Err(err).Msg("sns alerter setup failed")
		}
		deps.Alerter = alerter
	}
	svcs := service.New(deps)

	app := httpHandlers.NewApp(svcs, httpHandlers.Options{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", cfg.APIAddr).Msg("api listening")
	if err := app.Listen(cfg.APIAddr); err != nil {
		log.Fatal().Err(err).Msg("server exit")
	}
}
