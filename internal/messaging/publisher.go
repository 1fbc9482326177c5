package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
)

var ErrPublish = errors.New("publish to broker failed")

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher sends messages over a shared connection. Each publish is
// retried with exponential backoff; consecutive failures open a circuit
// breaker so callers fail fast while the broker is down.
type Publisher struct {
	client     publishClient
	qos        byte
	timeout    time.Duration
	retries    int
	newBackOff func() backoff.BackOff
	breaker    *gobreaker.CircuitBreaker
}

func NewPublisher(client publishClient, cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		client:  client,
		qos:     1,
		timeout: cfg.PublishTimeout,
		retries: cfg.PublishRetries,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mqtt-publish",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		}),
	}
}

// Publish sends payload to topic and waits for the broker to accept it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publishWithRetry(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrPublish, topic, err)
	}
	log.Debug().Str("topic", topic).Bytes("payload", payload).Msg("published")
	return nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, topic string, payload []byte) error {
	retries := p.retries
	if retries < 1 {
		retries = 1
	}
	attempt := 0
	op := func() error {
		attempt++
		token := p.client.Publish(topic, p.qos, false, payload)
		if !token.WaitTimeout(p.timeout) {
			return fmt.Errorf("attempt %d timed out after %s", attempt, p.timeout)
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("topic", topic).Msg("publish failed")
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(retries-1)), ctx)
	return backoff.Retry(op, bo)
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
	}
}
