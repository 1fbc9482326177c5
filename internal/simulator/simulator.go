// Package simulator generates fake sensor readings and sends them to the
// backend the same way a field device would.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
)

// Generator produces a bounded random walk, e.g. a soil temperature that
// drifts a little between samples.
type Generator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	min   float64
	max   float64
	step  float64
	value float64
}

func NewGenerator(seed int64, min, max float64) *Generator {
	if max < min {
		min, max = max, min
	}
	rnd := rand.New(rand.NewSource(seed))
	return &Generator{
		rnd:   rnd,
		min:   min,
		max:   max,
		step:  (max - min) / 20,
		value: min + rnd.Float64()*(max-min),
	}
}

// Next returns the next sample with one decimal.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.value += (g.rnd.Float64()*2 - 1) * g.step
	g.value = math.Max(g.min, math.Min(g.max, g.value))
	return strconv.FormatFloat(g.value, 'f', 1, 64)
}

// Sender delivers one reading to the backend.
type Sender interface {
	Send(ctx context.Context, in service.MeasureDataInput) error
}

type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTSender publishes readings as JSON on the measure data topic.
type MQTTSender struct {
	pub   publisher
	topic string
}

func NewMQTTSender(pub publisher, topic string) *MQTTSender {
	return &MQTTSender{pub: pub, topic: topic}
}

func (s *MQTTSender) Send(ctx context.Context, in service.MeasureDataInput) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, s.topic, payload)
}

// HTTPSender posts readings to the API's /measure-data endpoint.
type HTTPSender struct {
	client *resty.Client
}

func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &HTTPSender{client: client}
}

func (s *HTTPSender) Send(ctx context.Context, in service.MeasureDataInput) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(in).
		Post("/measure-data")
	if err != nil {
		return fmt.Errorf("post measure data: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post measure data: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

// Run sends count readings (or until ctx ends when count is 0), waiting
// interval between them. It returns how many readings were accepted.
func Run(ctx context.Context, accessToken string, gen *Generator, s Sender, count int, interval time.Duration) (int, error) {
	sent := 0
	for count == 0 || sent < count {
		in := service.MeasureDataInput{AccessToken: accessToken, Value: gen.Next()}
		if err := s.Send(ctx, in); err != nil {
			return sent, err
		}
		sent++
		log.Debug().Str("value", in.Value).Int("sent", sent).Msg("reading sent")

		if count != 0 && sent == count {
			break
		}
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-time.After(interval):
		}
	}
	return sent, nil
}
