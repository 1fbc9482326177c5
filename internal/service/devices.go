package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/history"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

type DeviceService struct {
	repos          *repository.Repos
	tokens         *token.Codec
	publisher      Publisher
	lightbulbTopic string
	exporter       HistoryExporter
	alerter        Alerter
	metrics        *metrics.Metrics
	now            func() time.Time
}

type CreateDeviceInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DeviceTypeID int64  `json:"device_type_id"`
	GardenID     int64  `json:"garden_id"`
}

// UpdateDeviceInput fields left nil or empty keep their stored value.
type UpdateDeviceInput struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	DeviceTypeID *int64               `json:"device_type_id"`
	Status       *domain.DeviceStatus `json:"status"`
}

// ListSensors returns sensor devices, optionally filtered by garden, each
// with its latest reading.
func (s *DeviceService) ListSensors(ctx context.Context, gardenID *int64) ([]DeviceView, error) {
	devices, err := s.repos.ListDevices(ctx, gardenID)
	if err != nil {
		return nil, err
	}
	out := []DeviceView{}
	for _, d := range devices {
		if !d.IsSensor() {
			continue
		}
		v, err := s.view(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *DeviceService) ListLightbulbs(ctx context.Context, gardenID *int64) ([]LightbulbView, error) {
	devices, err := s.repos.ListDevices(ctx, gardenID)
	if err != nil {
		return nil, err
	}
	out := []LightbulbView{}
	for _, d := range devices {
		if !d.IsLightbulb() {
			continue
		}
		tok, err := s.tokens.Issue(d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, NewLightbulbView(d, tok))
	}
	return out, nil
}

func (s *DeviceService) Get(ctx context.Context, id int64) (DeviceView, error) {
	d, err := s.repos.GetDevice(ctx, id)
	if err != nil {
		return DeviceView{}, notFound(err, ErrDeviceNotFound)
	}
	return s.view(ctx, d)
}

func (s *DeviceService) Create(ctx context.Context, in CreateDeviceInput) (DeviceView, error) {
	if strings.TrimSpace(in.Title) == "" {
		return DeviceView{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if _, err := s.repos.GetGarden(ctx, in.GardenID); err != nil {
		return DeviceView{}, notFound(err, ErrGardenNotFound)
	}
	if _, err := s.repos.GetDeviceType(ctx, in.DeviceTypeID); err != nil {
		return DeviceView{}, notFound(err, ErrDeviceTypeNotFound)
	}

	d := domain.Device{
		DeviceTypeID: in.DeviceTypeID,
		GardenID:     in.GardenID,
		Title:        in.Title,
		Description:  in.Description,
	}
	if err := s.repos.CreateDevice(ctx, &d); err != nil {
		return DeviceView{}, err
	}
	log.Info().Int64("device_id", d.ID).Int64("garden_id", d.GardenID).Msg("device created")
	return s.Get(ctx, d.ID)
}

func (s *DeviceService) Update(ctx context.Context, id int64, in UpdateDeviceInput) (DeviceView, error) {
	if in.Status != nil && *in.Status != "" && !in.Status.Valid() {
		return DeviceView{}, fmt.Errorf("%w: unknown device status %q", ErrValidation, *in.Status)
	}

	d, err := s.repos.GetDevice(ctx, id)
	if err != nil {
		return DeviceView{}, notFound(err, ErrDeviceNotFound)
	}

	if in.Title != nil && *in.Title != "" {
		d.Title = *in.Title
	}
	if in.Description != nil && *in.Description != "" {
		d.Description = *in.Description
	}
	if in.DeviceTypeID != nil && *in.DeviceTypeID != 0 {
		if _, err := s.repos.GetDeviceType(ctx, *in.DeviceTypeID); err != nil {
			return DeviceView{}, notFound(err, ErrDeviceTypeNotFound)
		}
		d.DeviceTypeID = *in.DeviceTypeID
	}
	if in.Status != nil && *in.Status != "" {
		d.Status = *in.Status
	}

	if err := s.repos.UpdateDevice(ctx, &d); err != nil {
		return DeviceView{}, notFound(err, ErrDeviceNotFound)
	}
	return s.Get(ctx, id)
}

// Delete removes the device and returns its last state.
func (s *DeviceService) Delete(ctx context.Context, id int64) (DeviceView, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return DeviceView{}, err
	}
	if err := s.repos.DeleteDevice(ctx, id); err != nil {
		return DeviceView{}, notFound(err, ErrDeviceNotFound)
	}
	log.Info().Int64("device_id", id).Msg("device deleted")
	return v, nil
}

// Ping records a liveness signal for the device owning accessToken.
func (s *DeviceService) Ping(ctx context.Context, accessToken string) error {
	id, err := s.tokens.DeviceID(accessToken)
	if err != nil {
		return err
	}
	if err := s.repos.TouchDevicePing(ctx, id, s.now()); err != nil {
		return notFound(err, ErrDeviceNotFound)
	}
	log.Debug().Int64("device_id", id).Msg("device ping")
	return nil
}

// Trigger stores the requested light state and then notifies the bulbs
// over the broker with "1" or "0". A publish failure is returned after
// the state has been stored.
func (s *DeviceService) Trigger(ctx context.Context, id int64, action domain.TriggerAction) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	d, err := s.repos.GetDevice(ctx, id)
	if err != nil {
		return notFound(err, ErrDeviceNotFound)
	}

	on := action == domain.TurnOn
	d.SetLightTurnedOn(on)
	if err := s.repos.SetDeviceMetadata(ctx, id, d.MetaData); err != nil {
		return notFound(err, ErrDeviceNotFound)
	}

	payload := []byte("0")
	if on {
		payload = []byte("1")
	}
	if err := s.publisher.Publish(ctx, s.lightbulbTopic, payload); err != nil {
		s.metrics.LightbulbPublish.WithLabelValues("error").Inc()
		log.Error().Err(err).Int64("device_id", id).Str("action", string(action)).Msg("lightbulb notification failed")
		s.alertTriggerFailure(ctx, d, action, err)
		return fmt.Errorf("notify lightbulb %d: %w", id, err)
	}
	s.metrics.LightbulbPublish.WithLabelValues("ok").Inc()
	log.Info().Int64("device_id", id).Str("action", string(action)).Msg("lightbulb triggered")
	return nil
}

// History aggregates the device readings around ref at the requested
// granularity ("hour", "day" or "month").
func (s *DeviceService) History(ctx context.Context, id int64, groupBy string, ref time.Time) (history.Result, error) {
	d, err := s.repos.GetDevice(ctx, id)
	if err != nil {
		return history.Result{}, notFound(err, ErrDeviceNotFound)
	}

	g, err := history.ParseGranularity(groupBy)
	if err != nil {
		return history.Result{}, err
	}
	rng, err := history.SelectRange(g, ref)
	if err != nil {
		return history.Result{}, err
	}

	readings, err := s.repos.ReadingsInRange(ctx, d.ID, rng.Start, rng.End)
	if err != nil {
		return history.Result{}, err
	}
	res, err := history.Build(g, ref, d.Unit(), readings)
	if err != nil {
		return history.Result{}, fmt.Errorf("history of device %d: %w", d.ID, err)
	}
	return res, nil
}

func (s *DeviceService) alertTriggerFailure(ctx context.Context, d domain.Device, action domain.TriggerAction, cause error) {
	if s.alerter == nil {
		return
	}
	subject := fmt.Sprintf("Lightbulb %q not notified", d.Title)
	msg := fmt.Sprintf("Device %d (%s) was set to %s but the broker notification failed: %v\n"+
		"The stored state and the physical light may now differ.", d.ID, d.Title, action, cause)
	if err := s.alerter.Alert(ctx, subject, msg); err != nil {
		log.Warn().Err(err).Int64("device_id", d.ID).Msg("alert failed")
	}
}

// ExportView describes an uploaded history document.
type ExportView struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func exportPrefix(deviceID int64) string {
	return fmt.Sprintf("history/device-%d/", deviceID)
}

// ExportHistory renders the same document as History and uploads it.
func (s *DeviceService) ExportHistory(ctx context.Context, id int64, groupBy string, ref time.Time) (ExportView, error) {
	if s.exporter == nil {
		return ExportView{}, ErrExportDisabled
	}
	res, err := s.History(ctx, id, groupBy, ref)
	if err != nil {
		return ExportView{}, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return ExportView{}, err
	}

	key := fmt.Sprintf("%s%s-%s-%d.json", exportPrefix(id), res.TimeUnit, ref.UTC().Format("20060102T150405Z"), s.now().Unix())
	url, err := s.exporter.Export(ctx, key, data, "application/json")
	if err != nil {
		return ExportView{}, err
	}
	log.Info().Int64("device_id", id).Str("key", key).Msg("history exported")
	return ExportView{Key: key, URL: url}, nil
}

// ListHistoryExports returns the keys of earlier exports of a device.
func (s *DeviceService) ListHistoryExports(ctx context.Context, id int64) ([]string, error) {
	if s.exporter == nil {
		return nil, ErrExportDisabled
	}
	if _, err := s.repos.GetDevice(ctx, id); err != nil {
		return nil, notFound(err, ErrDeviceNotFound)
	}
	return s.exporter.List(ctx, exportPrefix(id))
}

func (s *DeviceService) view(ctx context.Context, d domain.Device) (DeviceView, error) {
	tok, err := s.tokens.Issue(d.ID)
	if err != nil {
		return DeviceView{}, err
	}
	var latest *domain.Reading
	rd, err := s.repos.LatestReading(ctx, d.ID)
	switch {
	case err == nil:
		latest = &rd
	case !errors.Is(err, repository.ErrNotFound):
		return DeviceView{}, err
	}
	return NewDeviceView(d, tok, latestLabel(d, latest)), nil
}
