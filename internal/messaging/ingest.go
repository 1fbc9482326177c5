package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
)

// Receiver stores one measure data sample.
type Receiver interface {
	Receive(ctx context.Context, in service.MeasureDataInput, transport string) (domain.Reading, error)
}

// MeasureDataHandler decodes {"access_token": ..., "value": ...} payloads
// and hands them to r. Numeric values are accepted and kept as text.
func MeasureDataHandler(r Receiver) Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg struct {
			AccessToken string          `json:"access_token"`
			Value       json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode measure data: %w", err)
		}

		in := service.MeasureDataInput{AccessToken: msg.AccessToken}
		if len(msg.Value) > 0 {
			var s string
			if err := json.Unmarshal(msg.Value, &s); err == nil {
				in.Value = s
			} else {
				in.Value = string(msg.Value)
			}
		}

		_, err := r.Receive(ctx, in, service.TransportMQTT)
		return err
	}
}
