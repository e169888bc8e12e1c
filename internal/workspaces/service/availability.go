package service

import (
	"context"
	"errors"
	"time"

	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/internal/workspaces/repository"
	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
)

// ReservationIndex is the slice of the reservation store the availability
// engine reads: which workspaces are busy during an interval, and whether a
// single workspace has an overlapping active reservation.
type ReservationIndex interface {
	FindBusyWorkspaceIDs(ctx context.Context, interval model.Interval) ([]string, error)
	FindActiveOverlapping(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) ([]*model.Reservation, error)
}

type AvailabilityService interface {
	FindAvailable(ctx context.Context, interval model.Interval) ([]*model.Workspace, error)
	FindAvailableWithCapacity(ctx context.Context, interval model.Interval, minCapacity int) ([]*model.Workspace, error)
	IsAvailable(ctx context.Context, workspaceID string, interval model.Interval) (bool, error)
}

type availabilityService struct {
	workspaces   repository.WorkspaceRepository
	reservations ReservationIndex
	cfg          *config.Config

	now func() time.Time
}

func NewAvailabilityService(
	workspaces repository.WorkspaceRepository,
	reservations ReservationIndex,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		workspaces:   workspaces,
		reservations: reservations,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// FindAvailable returns active workspaces with no active reservation
// overlapping the interval, sorted by name. The busy set comes back in one
// round trip, so cost does not grow with a per-workspace probe.
func (s *availabilityService) FindAvailable(ctx context.Context, interval model.Interval) ([]*model.Workspace, error) {
	if err := interval.Validate(s.now()); err != nil {
		return nil, apperrors.InvalidInterval(err.Error())
	}

	candidates, err := s.workspaces.FindAllActive(ctx)
	if err != nil {
		return nil, s.wrapStoreError(err, "Failed to retrieve active workspaces")
	}

	return s.subtractBusy(ctx, candidates, interval)
}

// FindAvailableWithCapacity narrows availability to workspaces seating at
// least minCapacity, largest first. A capacity below one is rejected rather
// than treated as "no constraint".
func (s *availabilityService) FindAvailableWithCapacity(ctx context.Context, interval model.Interval, minCapacity int) ([]*model.Workspace, error) {
	if minCapacity < 1 {
		return nil, apperrors.InvalidCapacity("Minimum capacity must be at least 1")
	}
	if err := interval.Validate(s.now()); err != nil {
		return nil, apperrors.InvalidInterval(err.Error())
	}

	candidates, err := s.workspaces.FindActiveWithCapacity(ctx, minCapacity)
	if err != nil {
		return nil, s.wrapStoreError(err, "Failed to retrieve workspaces with capacity")
	}

	return s.subtractBusy(ctx, candidates, interval)
}

// IsAvailable answers the single-workspace question without fetching the
// full availability set.
func (s *availabilityService) IsAvailable(ctx context.Context, workspaceID string, interval model.Interval) (bool, error) {
	if workspaceID == "" {
		return false, apperrors.InvalidInput("Workspace ID cannot be empty")
	}
	if err := interval.Validate(s.now()); err != nil {
		return false, apperrors.InvalidInterval(err.Error())
	}

	workspace, err := s.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, workspaceserrors.ErrNotFound) {
			return false, apperrors.NotFoundWithID("Workspace", workspaceID)
		}
		if errors.Is(err, workspaceserrors.ErrInvalidID) {
			return false, apperrors.InvalidInput("Invalid workspace ID format")
		}
		return false, s.wrapStoreError(err, "Failed to retrieve workspace")
	}
	if !workspace.Active {
		return false, nil
	}

	overlapping, err := s.reservations.FindActiveOverlapping(ctx, workspaceID, interval, "")
	if err != nil {
		return false, s.wrapStoreError(err, "Failed to check reservations")
	}

	return len(overlapping) == 0, nil
}

// subtractBusy removes busy workspaces from the candidate list, preserving
// the candidates' sort order. Returns an empty slice, not nil, when nothing
// is free.
func (s *availabilityService) subtractBusy(ctx context.Context, candidates []*model.Workspace, interval model.Interval) ([]*model.Workspace, error) {
	busyIDs, err := s.reservations.FindBusyWorkspaceIDs(ctx, interval)
	if err != nil {
		return nil, s.wrapStoreError(err, "Failed to retrieve busy workspaces")
	}

	busy := make(map[string]struct{}, len(busyIDs))
	for _, id := range busyIDs {
		busy[id] = struct{}{}
	}

	available := make([]*model.Workspace, 0, len(candidates))
	for _, workspace := range candidates {
		if _, taken := busy[workspace.ID]; !taken {
			available = append(available, workspace)
		}
	}

	return available, nil
}

func (s *availabilityService) wrapStoreError(err error, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	s.cfg.Log.Error(message, "error", err)
	return apperrors.Internal(message, err)
}
