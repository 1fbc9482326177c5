package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/history"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

// Transports a reading can arrive on.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

type MeasureDataService struct {
	repos   *repository.Repos
	tokens  *token.Codec
	sinks   []ReadingSink
	metrics *metrics.Metrics
	now     func() time.Time
}

// MeasureDataInput is the payload a device submits, over HTTP or MQTT.
type MeasureDataInput struct {
	AccessToken string `json:"access_token"`
	Value       string `json:"value"`
}

// Receive stores a reading for the device identified by the access token
// and forwards it to the configured sinks. Sink failures are logged only.
func (s *MeasureDataService) Receive(ctx context.Context, in MeasureDataInput, transport string) (domain.Reading, error) {
	if in.Value == "" {
		return domain.Reading{}, fmt.Errorf("%w: value is required", ErrValidation)
	}
	if err := checkValue(in.Value); err != nil {
		return domain.Reading{}, err
	}
	id, err := s.tokens.DeviceID(in.AccessToken)
	if err != nil {
		return domain.Reading{}, err
	}
	if _, err := s.repos.GetDevice(ctx, id); err != nil {
		return domain.Reading{}, notFound(err, ErrDeviceNotFound)
	}

	rd := domain.Reading{DeviceID: id, Timestamp: s.now(), Value: in.Value}
	if err := s.repos.InsertReading(ctx, &rd); err != nil {
		return domain.Reading{}, err
	}
	s.metrics.ReadingsReceived.WithLabelValues(transport).Inc()

	for _, sink := range s.sinks {
		if err := sink.Record(ctx, rd); err != nil {
			log.Warn().Err(err).Int64("device_id", id).Msg("reading sink failed")
		}
	}

	log.Debug().
		Int64("device_id", id).
		Str("value", rd.Value).
		Str("transport", transport).
		Msg("measure data stored")
	return rd, nil
}

// checkValue accepts finite numbers that history can aggregate.
func checkValue(raw string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%w: value %q is not a finite number", ErrValidation, raw)
	}
	if _, err := history.ParseValue(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
