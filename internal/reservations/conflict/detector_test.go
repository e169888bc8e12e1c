package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"deskly/pkg/model"
)

type mockOverlapFinder struct {
	reservations []*model.Reservation
	err          error
}

func (m *mockOverlapFinder) FindActiveOverlapping(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) ([]*model.Reservation, error) {
	if m.err != nil {
		return nil, m.err
	}

	var overlapping []*model.Reservation
	for _, r := range m.reservations {
		if r.WorkspaceID != workspaceID || r.Status != model.StatusActive {
			continue
		}
		if r.ID == excludeID {
			continue
		}
		if r.Interval.Overlaps(interval) {
			overlapping = append(overlapping, r)
		}
	}
	return overlapping, nil
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func hour(h int) time.Time {
	return base.Add(time.Duration(h) * time.Hour)
}

func fixtureReservations() []*model.Reservation {
	return []*model.Reservation{
		{
			ID:          "aaaaaaaaaaaaaaaaaaaaaaaa",
			WorkspaceID: "ws1",
			Status:      model.StatusActive,
			Interval:    model.Interval{Start: hour(0), End: hour(2)},
		},
		{
			ID:          "bbbbbbbbbbbbbbbbbbbbbbbb",
			WorkspaceID: "ws1",
			Status:      model.StatusCancelled,
			Interval:    model.Interval{Start: hour(3), End: hour(5)},
		},
		{
			ID:          "cccccccccccccccccccccccc",
			WorkspaceID: "ws2",
			Status:      model.StatusActive,
			Interval:    model.Interval{Start: hour(1), End: hour(4)},
		},
	}
}

func TestHasConflict(t *testing.T) {
	detector := NewDetector(&mockOverlapFinder{reservations: fixtureReservations()})
	ctx := context.Background()

	tests := []struct {
		name         string
		workspaceID  string
		interval     model.Interval
		wantConflict bool
	}{
		{"overlapping active reservation", "ws1", model.Interval{Start: hour(1), End: hour(3)}, true},
		{"abutting reservation is free", "ws1", model.Interval{Start: hour(2), End: hour(4)}, false},
		{"cancelled reservation does not block", "ws1", model.Interval{Start: hour(3), End: hour(5)}, false},
		{"other workspace does not block", "ws1", model.Interval{Start: hour(5), End: hour(6)}, false},
		{"conflict on second workspace", "ws2", model.Interval{Start: hour(3), End: hour(6)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicting, err := detector.HasConflict(ctx, tt.workspaceID, tt.interval)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (conflicting != nil) != tt.wantConflict {
				t.Errorf("HasConflict(%s, %s) conflicting = %v, want conflict %v",
					tt.workspaceID, tt.interval, conflicting, tt.wantConflict)
			}
		})
	}
}

func TestHasConflictExcluding(t *testing.T) {
	detector := NewDetector(&mockOverlapFinder{reservations: fixtureReservations()})
	ctx := context.Background()

	// The interval overlaps reservation "aaa..." only; excluding it means a
	// reschedule within its own slot finds the workspace free.
	interval := model.Interval{Start: hour(0), End: hour(1)}

	conflicting, err := detector.HasConflictExcluding(ctx, "ws1", interval, "aaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting != nil {
		t.Errorf("expected no conflict when excluding the overlapping reservation itself, got %v", conflicting.ID)
	}

	conflicting, err = detector.HasConflict(ctx, "ws1", interval)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting == nil {
		t.Error("expected conflict without exclusion")
	}
}

func TestHasConflict_PropagatesError(t *testing.T) {
	wantErr := errors.New("store down")
	detector := NewDetector(&mockOverlapFinder{err: wantErr})

	_, err := detector.HasConflict(context.Background(), "ws1", model.Interval{Start: hour(0), End: hour(1)})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected store error to propagate, got %v", err)
	}
}
