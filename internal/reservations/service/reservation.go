package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"deskly/internal/reservations/conflict"
	reservationserrors "deskly/internal/reservations/errors"
	"deskly/internal/reservations/events"
	"deskly/internal/reservations/repository"
	"deskly/internal/reservations/validator"
	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/pkg/auth"
	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
)

// WorkspaceDirectory is the slice of the workspace repository the ledger
// needs: resolving a workspace before booking against it.
type WorkspaceDirectory interface {
	FindByID(ctx context.Context, id string) (*model.Workspace, error)
}

type ReservationService interface {
	Book(ctx context.Context, ownerID, workspaceID string, interval model.Interval) (*model.Reservation, error)
	Cancel(ctx context.Context, caller auth.Identity, id string) (*model.Reservation, error)
	Reschedule(ctx context.Context, caller auth.Identity, id string, interval model.Interval) (*model.Reservation, error)
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	ListByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Reservation, error)
	ListInRange(ctx context.Context, rng model.Interval, limit int, offset int64) ([]*model.Reservation, int64, error)
}

type reservationService struct {
	repo       repository.ReservationRepository
	lockRepo   repository.ReservationLockRepository
	workspaces WorkspaceDirectory
	detector   *conflict.Detector
	validator  *validator.ReservationValidator
	publisher  *events.Publisher
	cfg        *config.Config

	// now is the clock for all temporal validation. Tests inject a fixed time.
	now func() time.Time
}

func NewReservationService(
	repo repository.ReservationRepository,
	lockRepo repository.ReservationLockRepository,
	workspaces WorkspaceDirectory,
	detector *conflict.Detector,
	validator *validator.ReservationValidator,
	publisher *events.Publisher,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		repo:       repo,
		lockRepo:   lockRepo,
		workspaces: workspaces,
		detector:   detector,
		validator:  validator,
		publisher:  publisher,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Book places a new active reservation on a workspace. The conflict check
// and the insert run inside one transaction, guarded by a per-workspace
// advisory lock, so two concurrent bookings for overlapping intervals can
// never both commit.
func (s *reservationService) Book(ctx context.Context, ownerID, workspaceID string, interval model.Interval) (*model.Reservation, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("Owner ID cannot be empty")
	}
	if workspaceID == "" {
		return nil, apperrors.InvalidInput("Workspace ID cannot be empty")
	}
	if err := interval.Validate(s.now()); err != nil {
		return nil, apperrors.InvalidInterval(err.Error())
	}

	workspace, err := s.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !workspace.Active {
		return nil, apperrors.Inactive("Workspace")
	}

	reservation := &model.Reservation{
		OwnerID:     ownerID,
		WorkspaceID: workspaceID,
		Interval:    model.NewInterval(interval.Start, interval.End),
		Status:      model.StatusActive,
	}
	if err := s.validate(reservation); err != nil {
		return nil, err
	}

	lockID, err := s.acquireWorkspaceLock(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseWorkspaceLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release workspace lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoConflict(sessCtx, workspaceID, reservation.Interval, ""); err != nil {
			return err
		}
		if err := s.repo.Create(sessCtx, reservation); err != nil {
			if apperrors.IsAppError(err) {
				return err
			}
			return apperrors.Internal("Failed to create reservation", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to book reservation",
			"owner_id", ownerID,
			"workspace_id", workspaceID,
			"interval", reservation.Interval.String(),
			"error", err,
		)
		return nil, err
	}

	s.publisher.ReservationCreated(ctx, reservation)

	s.cfg.Log.Info("Reservation booked successfully",
		"id", reservation.ID,
		"owner_id", ownerID,
		"workspace_id", workspaceID,
		"interval", reservation.Interval.String(),
	)
	return reservation, nil
}

// Cancel marks an active reservation cancelled. Only the owner or an admin
// may cancel; cancelling a terminal reservation reports AlreadyTerminal
// rather than silently succeeding twice.
func (s *reservationService) Cancel(ctx context.Context, caller auth.Identity, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	if existing.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("Only the reservation owner may cancel it")
	}
	if existing.IsTerminal() {
		return nil, apperrors.AlreadyTerminal(fmt.Sprintf("Reservation is already %s", existing.Status))
	}

	result, err := s.repo.UpdateStatus(ctx, id, model.StatusCancelled, model.StatusActive)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to cancel reservation", err)
	}
	// The read above saw an active reservation. Matching nothing now means a
	// concurrent request reached a terminal state first.
	if result.MatchedCount == 0 {
		return nil, apperrors.AlreadyTerminal("Reservation was cancelled or completed concurrently")
	}

	existing.Status = model.StatusCancelled
	s.publisher.ReservationCancelled(ctx, existing)

	s.cfg.Log.Info("Reservation cancelled", "id", id, "owner_id", existing.OwnerID)
	return existing, nil
}

// Reschedule moves an active reservation to a new interval. The conflict
// check excludes the reservation itself, so shrinking or shifting within its
// own slot always succeeds on an otherwise free workspace.
func (s *reservationService) Reschedule(ctx context.Context, caller auth.Identity, id string, interval model.Interval) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	if err := interval.Validate(s.now()); err != nil {
		return nil, apperrors.InvalidInterval(err.Error())
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	if existing.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("Only the reservation owner may reschedule it")
	}
	if existing.IsTerminal() {
		return nil, apperrors.AlreadyTerminal(fmt.Sprintf("Reservation is already %s", existing.Status))
	}

	newInterval := model.NewInterval(interval.Start, interval.End)

	lockID, err := s.acquireWorkspaceLock(ctx, existing.WorkspaceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseWorkspaceLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release workspace lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoConflict(sessCtx, existing.WorkspaceID, newInterval, id); err != nil {
			return err
		}
		result, err := s.repo.UpdateInterval(sessCtx, id, newInterval, model.StatusActive)
		if err != nil {
			if apperrors.IsAppError(err) {
				return err
			}
			return apperrors.Internal("Failed to reschedule reservation", err)
		}
		if result.MatchedCount == 0 {
			return apperrors.AlreadyTerminal("Reservation was cancelled or completed concurrently")
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reschedule reservation",
			"id", id,
			"workspace_id", existing.WorkspaceID,
			"interval", newInterval.String(),
			"error", err,
		)
		return nil, err
	}

	existing.Interval = newInterval
	s.publisher.ReservationRescheduled(ctx, existing)

	s.cfg.Log.Info("Reservation rescheduled",
		"id", id,
		"workspace_id", existing.WorkspaceID,
		"interval", newInterval.String(),
	)
	return existing, nil
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	return reservation, nil
}

func (s *reservationService) ListByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if ownerID == "" {
		return nil, 0, apperrors.InvalidInput("Owner ID cannot be empty")
	}

	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByOwner(ctx, ownerID)
		if errCount != nil && !apperrors.IsAppError(errCount) {
			errCount = apperrors.Internal("Failed to count reservations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.repo.FindByOwner(ctx, ownerID, limit, offset)
		if errFind != nil && !apperrors.IsAppError(errFind) {
			errFind = apperrors.Internal("Failed to retrieve reservations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count reservations by owner", "owner_id", ownerID, "error", errCount)
		return nil, 0, errCount
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to list reservations by owner", "owner_id", ownerID, "error", errFind)
		return nil, 0, errFind
	}

	return reservations, count, nil
}

func (s *reservationService) ListActiveByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("Owner ID cannot be empty")
	}

	reservations, err := s.repo.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to retrieve active reservations", err)
	}

	return reservations, nil
}

func (s *reservationService) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Reservation, error) {
	if workspaceID == "" {
		return nil, apperrors.InvalidInput("Workspace ID cannot be empty")
	}

	if _, err := s.resolveWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}

	reservations, err := s.repo.FindActiveByWorkspace(ctx, workspaceID)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to retrieve workspace reservations", err)
	}

	return reservations, nil
}

// ListInRange returns reservations of any status fully contained in the
// range. Past and zero-width ranges are legitimate audit queries, so only a
// reversed range is rejected.
func (s *reservationService) ListInRange(ctx context.Context, rng model.Interval, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if err := rng.ValidateRange(); err != nil {
		return nil, 0, apperrors.InvalidInterval(err.Error())
	}

	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountInRange(ctx, rng)
		if errCount != nil && !apperrors.IsAppError(errCount) {
			errCount = apperrors.Internal("Failed to count reservations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.repo.FindInRange(ctx, rng, limit, offset)
		if errFind != nil && !apperrors.IsAppError(errFind) {
			errFind = apperrors.Internal("Failed to retrieve reservations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count reservations in range", "range", rng.String(), "error", errCount)
		return nil, 0, errCount
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to list reservations in range", "range", rng.String(), "error", errFind)
		return nil, 0, errFind
	}

	return reservations, count, nil
}

// --- Helpers ---

func (s *reservationService) validate(reservation *model.Reservation) error {
	if err := s.validator.Validate(reservation); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "error", err)
		return apperrors.Validation("Reservation validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *reservationService) resolveWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	workspace, err := s.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, workspaceserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Workspace", workspaceID)
		}
		if errors.Is(err, workspaceserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid workspace ID format")
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("Failed to resolve workspace", err)
	}
	return workspace, nil
}

func (s *reservationService) mapLookupError(err error, id string) error {
	if errors.Is(err, reservationserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Reservation", id)
	}
	if errors.Is(err, reservationserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid reservation ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve reservation", err)
}

func (s *reservationService) verifyNoConflict(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) error {
	var conflicting *model.Reservation
	var err error
	if excludeID == "" {
		conflicting, err = s.detector.HasConflict(ctx, workspaceID, interval)
	} else {
		conflicting, err = s.detector.HasConflictExcluding(ctx, workspaceID, interval, excludeID)
	}
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.Internal("Failed to check existing reservations", err)
	}
	if conflicting != nil {
		return apperrors.Conflict(fmt.Sprintf(
			"Requested interval overlaps an existing reservation %s", conflicting.Interval.String(),
		))
	}
	return nil
}

// acquireWorkspaceLock takes the advisory lock for a workspace, retrying a
// bounded number of times with exponential backoff when another request
// holds it. Persistent contention surfaces as a Conflict so the caller can
// retry at their own pace.
func (s *reservationService) acquireWorkspaceLock(ctx context.Context, workspaceID string) (string, error) {
	lockID := fmt.Sprintf("reservation_lock_%s", workspaceID)

	backoff := s.cfg.LockRetryBackoff
	for attempt := 0; attempt < s.cfg.LockRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", apperrors.Timeout("Timed out waiting for workspace lock")
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lock := &model.ReservationLock{
			ID:        lockID,
			ExpiresAt: s.now().Add(s.cfg.LockTTL),
		}

		_, err := s.lockRepo.Create(ctx, lock)
		if err == nil {
			return lockID, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Internal("Failed to acquire workspace lock", err)
		}
	}

	return "", apperrors.Conflict("Workspace is currently being booked by another request. Please try again.")
}

// releaseWorkspaceLock frees the advisory lock on a detached context, so a
// request whose deadline expired mid-transaction still releases the
// workspace instead of holding the lock until its TTL expires.
func (s *reservationService) releaseWorkspaceLock(ctx context.Context, lockID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	return s.lockRepo.Delete(ctx, lockID)
}
