package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/logging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/messaging"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/simulator"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

func main() {
	deviceID := flag.Int64("device-id", 1, "device to send readings for")
	count := flag.Int("count", 100, "number of readings, 0 for unlimited")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between readings")
	transport := flag.String("transport", "mqtt", "mqtt or http")
	apiURL := flag.String("api", "http://localhost:8080", "API base URL for the http transport")
	minValue := flag.Float64("min", 18, "lowest generated value")
	maxValue := flag.Float64("max", 32, "highest generated value")
	flag.Parse()

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

	accessToken, err := token.NewCodec(cfg.Token.Secret, true).Issue(*deviceID)
	if err != nil {
		log.Fatal().Err(err).Msg("issue token failed")
	}

	var sender simulator.Sender
	switch *transport {
	case "http":
		sender = simulator.NewHTTPSender(*apiURL, 5*time.Second)
	case "mqtt":
		mqttCfg := cfg.MQTT
		mqttCfg.ClientID += "-simulator"
		client, err := messaging.Connect(ctx, mqttCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect failed")
		}
		publisher := messaging.NewPublisher(client, mqttCfg)
		defer publisher.Close()
		sender = simulator.NewMQTTSender(publisher, cfg.MQTT.MeasureTopic)
	default:
		log.Fatal().Str("transport", *transport).Msg("unknown transport")
	}

	gen := simulator.NewGenerator(time.Now().UnixNano(), *minValue, *maxValue)
	sent, err := simulator.Run(ctx, accessToken, gen, sender, *count, *interval)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Int("sent", sent).Msg("simulation failed")
		return
	}
	log.Info().Int64("device_id", *deviceID).Int("sent", sent).Msg("simulation done")
}
