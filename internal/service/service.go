package service

import (
	"context"
	"errors"
	"time"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

var (
	ErrGardenNotFound     = errors.New("Garden not found")
	ErrDeviceNotFound     = errors.New("Device not found")
	ErrDeviceTypeNotFound = errors.New("Device type not found")
	ErrValidation         = errors.New("validation failed")
	ErrExportDisabled     = errors.New("history export is not configured")
)

// Publisher delivers a payload to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ReadingSink receives every stored reading, e.g. a time-series mirror.
type ReadingSink interface {
	Record(ctx context.Context, rd domain.Reading) error
}

// HistoryExporter stores a rendered history document and returns a
// download URL for it.
type HistoryExporter interface {
	Export(ctx context.Context, key string, data []byte, contentType string) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Alerter notifies operators about failures devices cannot report.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

type Deps struct {
	Repos          *repository.Repos
	Tokens         *token.Codec
	Publisher      Publisher
	LightbulbTopic string
	Sinks          []ReadingSink
	Exporter       HistoryExporter
	Alerter        Alerter
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

type Services struct {
	Repos       *repository.Repos
	Gardens     *GardenService
	DeviceTypes *DeviceTypeService
	Devices     *DeviceService
	MeasureData *MeasureDataService
}

func New(d Deps) *Services {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Services{
		Repos:       d.Repos,
		Gardens:     &GardenService{repos: d.Repos},
		DeviceTypes: &DeviceTypeService{repos: d.Repos},
		Devices: &DeviceService{
			repos:          d.Repos,
			tokens:         d.Tokens,
			publisher:      d.Publisher,
			lightbulbTopic: d.LightbulbTopic,
			exporter:       d.Exporter,
			alerter:        d.Alerter,
			metrics:        d.Metrics,
			now:            d.Now,
		},
		MeasureData: &MeasureDataService{
			repos:   d.Repos,
			tokens:  d.Tokens,
			sinks:   d.Sinks,
			metrics: d.Metrics,
			now:     d.Now,
		},
	}
}

// notFound maps repository.ErrNotFound to the given domain error.
func notFound(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
