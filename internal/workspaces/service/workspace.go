package service

import (
	"context"
	"errors"
	"sync"

	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/internal/workspaces/repository"
	"deskly/internal/workspaces/validator"
	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
	"deskly/pkg/sanitizer"
)

type WorkspaceService interface {
	Create(ctx context.Context, workspace *model.Workspace) error
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Workspace, int64, error)
	GetAllActive(ctx context.Context) ([]*model.Workspace, error)
	Update(ctx context.Context, id string, updates *model.WorkspaceUpdate) error
	Deactivate(ctx context.Context, id string) error
}

type workspaceService struct {
	repo      repository.WorkspaceRepository
	validator *validator.WorkspaceValidator
	cfg       *config.Config
}

func NewWorkspaceService(
	repo repository.WorkspaceRepository,
	validator *validator.WorkspaceValidator,
	cfg *config.Config,
) WorkspaceService {
	return &workspaceService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

// Create registers a workspace. New workspaces always start active;
// retiring one is a separate deactivate step.
func (s *workspaceService) Create(ctx context.Context, workspace *model.Workspace) error {
	s.sanitize(workspace)
	s.applyDefaultsForNewWorkspace(workspace)

	if err := s.validator.Validate(workspace); err != nil {
		s.cfg.Log.Warn("Workspace validation failed", "name", workspace.Name, "error", err)
		return apperrors.Validation("Workspace validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, workspace); err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to create workspace", "name", workspace.Name, "error", err)
		return apperrors.Internal("Failed to create workspace", err)
	}

	s.cfg.Log.Info("Workspace created successfully",
		"id", workspace.ID,
		"name", workspace.Name,
		"capacity", workspace.Capacity,
	)
	return nil
}

func (s *workspaceService) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Workspace ID cannot be empty")
	}

	workspace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	return workspace, nil
}

func (s *workspaceService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Workspace, int64, error) {
	var count int64
	var workspaces []*model.Workspace
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil && !apperrors.IsAppError(errCount) {
			errCount = apperrors.Internal("Failed to count workspaces", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		workspaces, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil && !apperrors.IsAppError(errFind) {
			errFind = apperrors.Internal("Failed to retrieve workspaces", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count workspaces", "error", errCount)
		return nil, 0, errCount
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to list workspaces", "error", errFind)
		return nil, 0, errFind
	}

	return workspaces, count, nil
}

// GetAllActive lists bookable workspaces, name ascending.
func (s *workspaceService) GetAllActive(ctx context.Context) ([]*model.Workspace, error) {
	workspaces, err := s.repo.FindAllActive(ctx)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Failed to list active workspaces", "error", err)
		return nil, apperrors.Internal("Failed to retrieve workspaces", err)
	}
	if workspaces == nil {
		workspaces = []*model.Workspace{}
	}
	return workspaces, nil
}

func (s *workspaceService) Update(ctx context.Context, id string, updates *model.WorkspaceUpdate) error {
	if id == "" {
		return apperrors.InvalidInput("Workspace ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.mapLookupError(err, id)
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Workspace update validation failed", "id", id, "error", err)
		return apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	merged := s.mergeWorkspaceUpdates(existing, updates)
	s.sanitize(merged)
	if err := s.validator.Validate(merged); err != nil {
		s.cfg.Log.Warn("Workspace validation failed", "id", id, "error", err)
		return apperrors.Validation("Workspace validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if _, err := s.repo.Update(ctx, id, merged); err != nil {
		if errors.Is(err, workspaceserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Workspace", id)
		}
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to update workspace", "id", id, "error", err)
		return apperrors.Internal("Failed to update workspace", err)
	}

	s.cfg.Log.Info("Workspace updated successfully", "id", id, "name", merged.Name)
	return nil
}

// Deactivate retires a workspace from new bookings. Existing reservations
// are untouched; repeating the call is a no-op that still succeeds.
func (s *workspaceService) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Workspace ID cannot be empty")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, workspaceserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Workspace", id)
		}
		if errors.Is(err, workspaceserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid workspace ID format")
		}
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to deactivate workspace", "id", id, "error", err)
		return apperrors.Internal("Failed to deactivate workspace", err)
	}

	s.cfg.Log.Info("Workspace deactivated", "id", id)
	return nil
}

// --- Helpers ---

func (s *workspaceService) sanitize(workspace *model.Workspace) {
	workspace.Name = sanitizer.NormalizeName(workspace.Name)
	workspace.Description = sanitizer.NormalizeDescription(workspace.Description)
}

func (s *workspaceService) applyDefaultsForNewWorkspace(workspace *model.Workspace) {
	workspace.Active = true
}

func (s *workspaceService) mapLookupError(err error, id string) error {
	if errors.Is(err, workspaceserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Workspace", id)
	}
	if errors.Is(err, workspaceserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid workspace ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve workspace", err)
}

func (s *workspaceService) mergeWorkspaceUpdates(existing *model.Workspace, updates *model.WorkspaceUpdate) *model.Workspace {
	merged := *existing

	if updates.Name != "" {
		merged.Name = updates.Name
	}
	if updates.Description != nil {
		merged.Description = *updates.Description
	}
	if updates.Capacity != nil {
		merged.Capacity = *updates.Capacity
	}
	if updates.Active != nil {
		merged.Active = *updates.Active
	}

	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt

	return &merged
}
