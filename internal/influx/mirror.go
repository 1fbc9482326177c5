// Package influx mirrors stored measure data into InfluxDB for dashboards.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
)

const measurement = "measure_data"

type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewMirror connects to InfluxDB and checks its health.
func NewMirror(ctx context.Context, cfg config.InfluxConfig) (*Mirror, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb health: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("influxdb unhealthy: %s", msg)
	}

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("influxdb mirror enabled")
	return &Mirror{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

// Record writes one reading as a float field. Non-numeric readings are
// skipped.
func (m *Mirror) Record(ctx context.Context, rd domain.Reading) error {
	p, ok := Point(rd)
	if !ok {
		log.Warn().Int64("device_id", rd.DeviceID).Str("value", rd.Value).Msg("influxdb mirror skipped non-numeric reading")
		return nil
	}
	if err := m.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	return nil
}

func (m *Mirror) Close() { m.client.Close() }

// Point converts a reading to a line-protocol point. It reports false when
// the value is not a number.
func Point(rd domain.Reading) (*write.Point, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(rd.Value), 64)
	if err != nil {
		return nil, false
	}
	ts := rd.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(
		measurement,
		map[string]string{"device_id": strconv.FormatInt(rd.DeviceID, 10)},
		map[string]interface{}{"value": f},
		ts,
	), true
}
