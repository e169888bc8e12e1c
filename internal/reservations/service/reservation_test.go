package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"deskly/internal/reservations/conflict"
	"deskly/internal/reservations/events"
	reservationserrors "deskly/internal/reservations/errors"
	"deskly/internal/reservations/validator"
	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/pkg/auth"
	"deskly/pkg/config"
	mongotx "deskly/pkg/db/mongo"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/logger"
	"deskly/pkg/model"
)

var clock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func hour(h int) time.Time {
	return clock.Add(time.Duration(h) * time.Hour)
}

const (
	workspaceID         = "6512bd43d9caa6e02c990b0a"
	inactiveWorkspaceID = "6512bd43d9caa6e02c990b0b"
	ownerID             = "user-1"
	otherOwnerID        = "user-2"
)

// ────────────────────────────────────────────────
// Mocks
// ────────────────────────────────────────────────

type mockReservationRepo struct {
	store  []*model.Reservation
	nextID int

	createErr       error
	findErr         error
	updateStatusErr error
}

func (m *mockReservationRepo) Create(ctx context.Context, r *model.Reservation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	r.ID = fmt.Sprintf("65%022d", m.nextID)
	r.CreatedAt = clock
	r.UpdatedAt = clock
	stored := *r
	m.store = append(m.store, &stored)
	return nil
}

func (m *mockReservationRepo) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, r := range m.store {
		if r.ID == id {
			copied := *r
			return &copied, nil
		}
	}
	return nil, reservationserrors.ErrNotFound
}

func (m *mockReservationRepo) FindActiveOverlapping(ctx context.Context, wsID string, interval model.Interval, excludeID string) ([]*model.Reservation, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*model.Reservation
	for _, r := range m.store {
		if r.WorkspaceID != wsID || r.Status != model.StatusActive || r.ID == excludeID {
			continue
		}
		if r.Interval.Overlaps(interval) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReservationRepo) FindBusyWorkspaceIDs(ctx context.Context, interval model.Interval) ([]string, error) {
	return nil, nil
}

func (m *mockReservationRepo) FindByOwner(ctx context.Context, owner string, limit int, offset int64) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range m.store {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReservationRepo) CountByOwner(ctx context.Context, owner string) (int64, error) {
	reservations, _ := m.FindByOwner(ctx, owner, 0, 0)
	return int64(len(reservations)), nil
}

func (m *mockReservationRepo) FindActiveByOwner(ctx context.Context, owner string) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range m.store {
		if r.OwnerID == owner && r.Status == model.StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReservationRepo) FindActiveByWorkspace(ctx context.Context, wsID string) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range m.store {
		if r.WorkspaceID == wsID && r.Status == model.StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReservationRepo) FindInRange(ctx context.Context, rng model.Interval, limit int, offset int64) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range m.store {
		if !r.Interval.Start.Before(rng.Start) && !r.Interval.End.After(rng.End) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReservationRepo) CountInRange(ctx context.Context, rng model.Interval) (int64, error) {
	reservations, _ := m.FindInRange(ctx, rng, 0, 0)
	return int64(len(reservations)), nil
}

func (m *mockReservationRepo) UpdateStatus(ctx context.Context, id string, status string, expectedStatus string) (*mongo.UpdateResult, error) {
	if m.updateStatusErr != nil {
		return nil, m.updateStatusErr
	}
	for _, r := range m.store {
		if r.ID == id && r.Status == expectedStatus {
			r.Status = status
			return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}
	return &mongo.UpdateResult{MatchedCount: 0}, nil
}

func (m *mockReservationRepo) UpdateInterval(ctx context.Context, id string, interval model.Interval, expectedStatus string) (*mongo.UpdateResult, error) {
	for _, r := range m.store {
		if r.ID == id && r.Status == expectedStatus {
			r.Interval = interval
			return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}
	return &mongo.UpdateResult{MatchedCount: 0}, nil
}

func (m *mockReservationRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockLockRepo struct {
	createErr     error
	acquired      int
	released      int
	releaseCtxErr error
}

func (m *mockLockRepo) Create(ctx context.Context, lock *model.ReservationLock) (*model.ReservationLock, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.acquired++
	return lock, nil
}

func (m *mockLockRepo) Delete(ctx context.Context, lockID string) error {
	m.releaseCtxErr = ctx.Err()
	m.released++
	return nil
}

type mockWorkspaceDirectory struct {
	workspaces map[string]*model.Workspace
}

func (m *mockWorkspaceDirectory) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	if ws, ok := m.workspaces[id]; ok {
		return ws, nil
	}
	return nil, workspaceserrors.ErrNotFound
}

// ────────────────────────────────────────────────
// Fixture
// ────────────────────────────────────────────────

func newTestService(t *testing.T, repo *mockReservationRepo, lockRepo *mockLockRepo) ReservationService {
	t.Helper()

	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	cfg := &config.Config{
		Log:               log,
		WriteTimeout:      time.Second,
		LockTTL:           10 * time.Second,
		LockRetryAttempts: 3,
		LockRetryBackoff:  time.Millisecond,
	}
	directory := &mockWorkspaceDirectory{
		workspaces: map[string]*model.Workspace{
			workspaceID:         {ID: workspaceID, Name: "Quiet Room", Capacity: 4, Active: true},
			inactiveWorkspaceID: {ID: inactiveWorkspaceID, Name: "Old Annex", Capacity: 2, Active: false},
		},
	}

	svc := NewReservationService(
		repo,
		lockRepo,
		directory,
		conflict.NewDetector(repo),
		validator.NewReservationValidator(log),
		events.NewPublisher(nil, log),
		cfg,
	)
	svc.(*reservationService).now = func() time.Time { return clock }
	return svc
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if !apperrors.IsCode(err, code) {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func owner() auth.Identity {
	return auth.Identity{UserID: ownerID, Role: auth.RoleUser}
}

// ────────────────────────────────────────────────
// Book
// ────────────────────────────────────────────────

func TestBook_Success(t *testing.T) {
	repo := &mockReservationRepo{}
	lockRepo := &mockLockRepo{}
	svc := newTestService(t, repo, lockRepo)

	reservation, err := svc.Book(context.Background(), ownerID, workspaceID,
		model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reservation.ID == "" {
		t.Error("expected reservation ID to be assigned")
	}
	if reservation.Status != model.StatusActive {
		t.Errorf("expected status active, got %s", reservation.Status)
	}
	if lockRepo.acquired != 1 || lockRepo.released != 1 {
		t.Errorf("expected one lock acquire and release, got %d/%d", lockRepo.acquired, lockRepo.released)
	}
}

func TestBook_OverlapConflict(t *testing.T) {
	repo := &mockReservationRepo{}
	svc := newTestService(t, repo, &mockLockRepo{})
	ctx := context.Background()

	if _, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(3)}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := svc.Book(ctx, otherOwnerID, workspaceID, model.Interval{Start: hour(2), End: hour(4)})
	assertCode(t, err, apperrors.CodeConflict)

	if len(repo.store) != 1 {
		t.Errorf("conflicting booking must not be stored, have %d reservations", len(repo.store))
	}
}

func TestBook_AbuttingIntervalsAllowed(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	if _, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	// [2,3) starts exactly where [1,2) ends; half-open intervals do not touch.
	if _, err := svc.Book(ctx, otherOwnerID, workspaceID, model.Interval{Start: hour(2), End: hour(3)}); err != nil {
		t.Fatalf("abutting booking failed: %v", err)
	}
}

func TestBook_CancelledReservationFreesSlot(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()
	interval := model.Interval{Start: hour(1), End: hour(2)}

	first, err := svc.Book(ctx, ownerID, workspaceID, interval)
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, owner(), first.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.Book(ctx, otherOwnerID, workspaceID, interval); err != nil {
		t.Fatalf("rebooking a cancelled slot failed: %v", err)
	}
}

func TestBook_InvalidIntervals(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	tests := []struct {
		name     string
		interval model.Interval
	}{
		{"past start", model.Interval{Start: hour(-1), End: hour(1)}},
		{"zero width", model.Interval{Start: hour(1), End: hour(1)}},
		{"reversed", model.Interval{Start: hour(2), End: hour(1)}},
		{"missing bounds", model.Interval{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(ctx, ownerID, workspaceID, tt.interval)
			assertCode(t, err, apperrors.CodeInvalidInterval)
		})
	}
}

func TestBook_WorkspaceNotFound(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, err := svc.Book(context.Background(), ownerID, "6512bd43d9caa6e02c990bff",
		model.Interval{Start: hour(1), End: hour(2)})
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestBook_InactiveWorkspace(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, err := svc.Book(context.Background(), ownerID, inactiveWorkspaceID,
		model.Interval{Start: hour(1), End: hour(2)})
	assertCode(t, err, apperrors.CodeInactive)
}

func TestBook_LockContention(t *testing.T) {
	lockRepo := &mockLockRepo{
		createErr: mongo.WriteException{
			WriteErrors: mongo.WriteErrors{{Code: 11000}},
		},
	}
	svc := newTestService(t, &mockReservationRepo{}, lockRepo)

	_, err := svc.Book(context.Background(), ownerID, workspaceID,
		model.Interval{Start: hour(1), End: hour(2)})
	assertCode(t, err, apperrors.CodeConflict)
}

func TestBook_ReleasesLockOnCancelledRequest(t *testing.T) {
	repo := &mockReservationRepo{}
	lockRepo := &mockLockRepo{}
	svc := newTestService(t, repo, lockRepo)

	// The caller gives up mid-flight; the lock must still be freed rather
	// than lingering until its TTL expires.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lockRepo.released != 1 {
		t.Fatalf("expected 1 lock release, got %d", lockRepo.released)
	}
	if lockRepo.releaseCtxErr != nil {
		t.Errorf("lock release must not inherit the request cancellation, got %v", lockRepo.releaseCtxErr)
	}
}

// ────────────────────────────────────────────────
// Cancel
// ────────────────────────────────────────────────

func TestCancel_OnlyOwnerOrAdmin(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	_, err = svc.Cancel(ctx, auth.Identity{UserID: otherOwnerID, Role: auth.RoleUser}, reservation.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	if _, err := svc.Cancel(ctx, auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}, reservation.ID); err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}
}

func TestCancel_AlreadyTerminal(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, owner(), reservation.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	_, err = svc.Cancel(ctx, owner(), reservation.ID)
	assertCode(t, err, apperrors.CodeAlreadyTerminal)
}

func TestCancel_NotFound(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, err := svc.Cancel(context.Background(), owner(), "6512bd43d9caa6e02c990bff")
	assertCode(t, err, apperrors.CodeNotFound)
}

// ────────────────────────────────────────────────
// Reschedule
// ────────────────────────────────────────────────

func TestReschedule_Success(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	moved, err := svc.Reschedule(ctx, owner(), reservation.ID, model.Interval{Start: hour(3), End: hour(4)})
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if !moved.Interval.Start.Equal(hour(3)) || !moved.Interval.End.Equal(hour(4)) {
		t.Errorf("interval not updated: %s", moved.Interval)
	}
}

func TestReschedule_ExcludesItselfFromConflict(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(3)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	// Shrinking within its own slot overlaps only itself.
	if _, err := svc.Reschedule(ctx, owner(), reservation.ID, model.Interval{Start: hour(1), End: hour(2)}); err != nil {
		t.Fatalf("shrinking reschedule failed: %v", err)
	}
}

func TestReschedule_ConflictsWithOtherReservation(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	if _, err := svc.Book(ctx, otherOwnerID, workspaceID, model.Interval{Start: hour(4), End: hour(6)}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("second booking failed: %v", err)
	}

	_, err = svc.Reschedule(ctx, owner(), reservation.ID, model.Interval{Start: hour(5), End: hour(7)})
	assertCode(t, err, apperrors.CodeConflict)
}

func TestReschedule_TerminalReservation(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, owner(), reservation.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err = svc.Reschedule(ctx, owner(), reservation.ID, model.Interval{Start: hour(3), End: hour(4)})
	assertCode(t, err, apperrors.CodeAlreadyTerminal)
}

func TestReschedule_Forbidden(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	reservation, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	_, err = svc.Reschedule(ctx, auth.Identity{UserID: otherOwnerID, Role: auth.RoleUser},
		reservation.ID, model.Interval{Start: hour(3), End: hour(4)})
	assertCode(t, err, apperrors.CodeForbidden)
}

// ────────────────────────────────────────────────
// Queries
// ────────────────────────────────────────────────

func TestListInRange_RejectsReversedRange(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, _, err := svc.ListInRange(context.Background(),
		model.Interval{Start: hour(4), End: hour(1)}, 10, 0)
	assertCode(t, err, apperrors.CodeInvalidInterval)
}

func TestListInRange_AllowsPastRange(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, _, err := svc.ListInRange(context.Background(),
		model.Interval{Start: hour(-48), End: hour(-24)}, 10, 0)
	if err != nil {
		t.Fatalf("past range query failed: %v", err)
	}
}

func TestListActiveByOwner_FiltersTerminal(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})
	ctx := context.Background()

	first, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(1), End: hour(2)})
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := svc.Book(ctx, ownerID, workspaceID, model.Interval{Start: hour(3), End: hour(4)}); err != nil {
		t.Fatalf("second booking failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, owner(), first.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	active, err := svc.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active reservation, got %d", len(active))
	}
	if active[0].ID == first.ID {
		t.Error("cancelled reservation must not appear in active list")
	}

	all, total, err := svc.ListByOwner(ctx, ownerID, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("expected both reservations in full history, got %d (total %d)", len(all), total)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	svc := newTestService(t, &mockReservationRepo{}, &mockLockRepo{})

	_, err := svc.GetByID(context.Background(), "6512bd43d9caa6e02c990bff")
	assertCode(t, err, apperrors.CodeNotFound)
}
