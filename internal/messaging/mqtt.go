// Package messaging owns the process-wide MQTT connection used to notify
// field devices and to receive their measure data.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
)

const disconnectQuiesceMs = 250

// Connect dials the broker, retrying with exponential backoff. The client
// reconnects on its own after a successful first connection and is
// disconnected when ctx ends.
func Connect(ctx context.Context, cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.PublishTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		})

	client := mqtt.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	err := backoff.Retry(func() error {
		token := client.Connect()
		if !token.WaitTimeout(cfg.PublishTimeout) {
			return fmt.Errorf("connect to %s timed out", cfg.Broker)
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connect failed")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect after %d attempts: %w", retries, err)
	}

	go func() {
		<-ctx.Done()
		Close(client)
	}()

	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client.IsConnected() {
		client.Disconnect(disconnectQuiesceMs)
		log.Info().Msg("mqtt disconnected")
	}
}

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// Subscribe delivers messages on topic to h until ctx is cancelled, then
// unsubscribes. Handler errors are logged and do not stop the subscription.
func Subscribe(ctx context.Context, client mqtt.Client, topic string, qos byte, h Handler) error {
	token := client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := h(ctx, msg.Payload()); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("message handling failed")
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Info().Str("topic", topic).Msg("subscribed")

	<-ctx.Done()

	client.Unsubscribe(topic).WaitTimeout(time.Second)
	return nil
}
