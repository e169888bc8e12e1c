package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIntervalMissingBound = errors.New("interval start and end are required")

	ErrIntervalNotPositive = errors.New("interval end must be after start")

	ErrIntervalInPast = errors.New("interval start cannot be in the past")

	ErrRangeReversed = errors.New("range end cannot be before range start")
)

// Interval is a half-open time range [Start, End). End is exclusive, so two
// intervals that touch at a boundary do not overlap.
type Interval struct {
	Start time.Time `json:"start" bson:"start" validate:"required"`
	End   time.Time `json:"end" bson:"end" validate:"required,gtfield=Start"`
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// Validate checks the invariants for intervals being established by a booking
// or reschedule: both endpoints present, strictly positive length, and a start
// no earlier than the caller-supplied reference time. Pure, no I/O.
func (i Interval) Validate(now time.Time) error {
	if i.Start.IsZero() || i.End.IsZero() {
		return ErrIntervalMissingBound
	}
	if !i.End.After(i.Start) {
		return ErrIntervalNotPositive
	}
	if i.Start.Before(now) {
		return fmt.Errorf("%w: start %s is before %s", ErrIntervalInPast,
			i.Start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

// ValidateRange checks the relaxed invariants for read-only range queries.
// Past and zero-width ranges are queryable; reversed ranges are not.
func (i Interval) ValidateRange() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return ErrIntervalMissingBound
	}
	if i.End.Before(i.Start) {
		return ErrRangeReversed
	}
	return nil
}

// Overlaps reports whether the two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}
