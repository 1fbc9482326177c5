package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
)

type DeviceTypeService struct {
	repos *repository.Repos
}

// DeviceTypeInput creates or updates a type. Kind selects the name prefix
// ("sensor", the default, or "lightbulb").
type DeviceTypeInput struct {
	Name string  `json:"name"`
	Unit *string `json:"unit"`
	Kind string  `json:"kind"`
}

func (in DeviceTypeInput) prefixedName() (string, error) {
	switch in.Kind {
	case "", "sensor":
		return domain.SensorTypePrefix + in.Name, nil
	case "lightbulb":
		return domain.LightbulbTypePrefix + "_" + in.Name, nil
	}
	return "", fmt.Errorf("%w: unknown device kind %q", ErrValidation, in.Kind)
}

// List returns all types with the sensor prefix removed from their names.
func (s *DeviceTypeService) List(ctx context.Context) ([]DeviceTypeView, error) {
	types, err := s.repos.ListDeviceTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceTypeView, 0, len(types))
	for _, t := range types {
		t.Name = strings.ReplaceAll(t.Name, domain.SensorTypePrefix, "")
		out = append(out, NewDeviceTypeView(t))
	}
	return out, nil
}

func (s *DeviceTypeService) Create(ctx context.Context, in DeviceTypeInput) (DeviceTypeView, error) {
	if strings.TrimSpace(in.Name) == "" {
		return DeviceTypeView{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	name, err := in.prefixedName()
	if err != nil {
		return DeviceTypeView{}, err
	}
	t := domain.DeviceType{Name: name, Unit: in.Unit}
	if err := s.repos.CreateDeviceType(ctx, &t); err != nil {
		return DeviceTypeView{}, err
	}
	return NewDeviceTypeView(t), nil
}

func (s *DeviceTypeService) Update(ctx context.Context, id int64, in DeviceTypeInput) (DeviceTypeView, error) {
	t, err := s.repos.GetDeviceType(ctx, id)
	if err != nil {
		return DeviceTypeView{}, notFound(err, ErrDeviceTypeNotFound)
	}

	if in.Name != "" {
		if t.Name, err = in.prefixedName(); err != nil {
			return DeviceTypeView{}, err
		}
	}
	if in.Unit != nil && *in.Unit != "" {
		t.Unit = in.Unit
	}

	if err := s.repos.UpdateDeviceType(ctx, &t); err != nil {
		return DeviceTypeView{}, notFound(err, ErrDeviceTypeNotFound)
	}
	return NewDeviceTypeView(t), nil
}
