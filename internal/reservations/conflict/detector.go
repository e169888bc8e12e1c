// Package conflict decides whether an interval can be placed on a workspace
// without double booking. Intervals are half-open, so a reservation ending
// exactly when another starts is not a conflict.
package conflict

import (
	"context"

	"deskly/pkg/model"
)

// OverlapFinder is the slice of the reservation repository the detector
// needs. An empty excludeID means no reservation is excluded.
type OverlapFinder interface {
	FindActiveOverlapping(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) ([]*model.Reservation, error)
}

type Detector struct {
	repo OverlapFinder
}

func NewDetector(repo OverlapFinder) *Detector {
	return &Detector{repo: repo}
}

// HasConflict reports whether any active reservation on the workspace
// overlaps the interval. When it does, the first overlapping reservation in
// start order is returned for the error message.
func (d *Detector) HasConflict(ctx context.Context, workspaceID string, interval model.Interval) (*model.Reservation, error) {
	return d.check(ctx, workspaceID, interval, "")
}

// HasConflictExcluding is HasConflict with one reservation left out of
// consideration. Rescheduling uses this so a reservation never conflicts
// with itself.
func (d *Detector) HasConflictExcluding(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) (*model.Reservation, error) {
	return d.check(ctx, workspaceID, interval, excludeID)
}

func (d *Detector) check(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) (*model.Reservation, error) {
	overlapping, err := d.repo.FindActiveOverlapping(ctx, workspaceID, interval, excludeID)
	if err != nil {
		return nil, err
	}
	if len(overlapping) == 0 {
		return nil, nil
	}
	return overlapping[0], nil
}
