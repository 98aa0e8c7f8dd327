package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/repository"
)

// StationService orchestrates station CRUD and enforces per-record ownership.
type StationService struct {
	repo *repository.StationRepository
}

// NewStationService creates a new StationService.
func NewStationService(repo *repository.StationRepository) *StationService {
	return &StationService{repo: repo}
}

// Create validates in and stores a station owned by ownerID.
func (s *StationService) Create(ctx context.Context, ownerID string, in model.StationInput) (*model.Station, error) {
	station, err := model.NewStation(in)
	if err != nil {
		return nil, invalid(err)
	}
	station.CreatedBy = model.OwnerRef{ID: ownerID}

	if err := s.repo.Create(ctx, station); err != nil {
		return nil, fmt.Errorf("create station: %w", err)
	}
	return station, nil
}

// List returns the station directory narrowed by f.
func (s *StationService) List(ctx context.Context, f model.ListFilter) ([]model.Station, error) {
	stations, err := s.repo.List(ctx, f.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	if f.Near == nil {
		return stations, nil
	}

	lng, lat := f.Near[0], f.Near[1]
	nearby := stations[:0]
	for _, st := range stations {
		if model.DistanceKM(lng, lat, st.Location.Longitude(), st.Location.Latitude()) <= f.MaxDistanceKM {
			nearby = append(nearby, st)
		}
	}
	return nearby, nil
}

// Get returns the station if userID owns it.
func (s *StationService) Get(ctx context.Context, userID, id string) (*model.Station, error) {
	return s.owned(ctx, userID, id, "access")
}

// Update merges in onto the caller's station. Ownership and the location type
// tag cannot change.
func (s *StationService) Update(ctx context.Context, userID, id string, in model.StationInput) (*model.Station, error) {
	station, err := s.owned(ctx, userID, id, "update")
	if err != nil {
		return nil, err
	}

	if in.Location != nil && in.Location.Type != nil && *in.Location.Type != model.PointType {
		return nil, apperror.InvalidInput("Location type cannot be changed from 'Point'")
	}
	if err := station.Apply(in); err != nil {
		return nil, invalid(err)
	}

	if err := s.repo.Update(ctx, station); err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("update station: %w", err)
	}
	return station, nil
}

// Delete removes the caller's station.
func (s *StationService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id, "delete"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return notFound(id)
		}
		return fmt.Errorf("delete station: %w", err)
	}
	return nil
}

func (s *StationService) owned(ctx context.Context, userID, id, action string) (*model.Station, error) {
	station, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get station: %w", err)
	}
	if station.CreatedBy.ID != userID {
		return nil, apperror.Forbidden(fmt.Sprintf("User not authorized to %s this station", action))
	}
	return station, nil
}

func notFound(id string) error {
	return apperror.NotFound("Station not found with id of " + id)
}

func invalid(err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return apperror.Wrap(apperror.KindInvalidInput, verr.Error(), err)
	}
	return err
}
