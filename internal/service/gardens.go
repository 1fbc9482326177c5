package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
)

type GardenService struct {
	repos *repository.Repos
}

type CreateGardenInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

// UpdateGardenInput fields left nil or empty keep their stored value.
type UpdateGardenInput struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Address     *string              `json:"address"`
	Status      *domain.GardenStatus `json:"status"`
}

func (s *GardenService) List(ctx context.Context) ([]GardenView, error) {
	gardens, err := s.repos.ListGardens(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GardenView, 0, len(gardens))
	for _, g := range gardens {
		out = append(out, NewGardenView(g))
	}
	return out, nil
}

func (s *GardenService) Get(ctx context.Context, id int64) (GardenView, error) {
	g, err := s.repos.GetGarden(ctx, id)
	if err != nil {
		return GardenView{}, notFound(err, ErrGardenNotFound)
	}
	return NewGardenView(g), nil
}

func (s *GardenService) Create(ctx context.Context, in CreateGardenInput) (GardenView, error) {
	if strings.TrimSpace(in.Title) == "" {
		return GardenView{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	g := domain.Garden{Title: in.Title, Description: in.Description, Address: in.Address}
	if err := s.repos.CreateGarden(ctx, &g); err != nil {
		return GardenView{}, err
	}
	return NewGardenView(g), nil
}

func (s *GardenService) Update(ctx context.Context, id int64, in UpdateGardenInput) (GardenView, error) {
	if in.Status != nil && *in.Status != "" && !in.Status.Valid() {
		return GardenView{}, fmt.Errorf("%w: unknown garden status %q", ErrValidation, *in.Status)
	}

	g, err := s.repos.GetGarden(ctx, id)
	if err != nil {
		return GardenView{}, notFound(err, ErrGardenNotFound)
	}

	if in.Title != nil && *in.Title != "" {
		g.Title = *in.Title
	}
	if in.Description != nil && *in.Description != "" {
		g.Description = *in.Description
	}
	if in.Address != nil && *in.Address != "" {
		g.Address = *in.Address
	}
	if in.Status != nil && *in.Status != "" {
		g.Status = *in.Status
	}

	if err := s.repos.UpdateGarden(ctx, &g); err != nil {
		return GardenView{}, notFound(err, ErrGardenNotFound)
	}
	return NewGardenView(g), nil
}
