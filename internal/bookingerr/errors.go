// Package bookingerr defines the rejection taxonomy shared by the codec,
// the pricing resolver and the booking validator.
package bookingerr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reason is the discriminator carried by a rejected booking.
type Reason string

const (
	ReasonOverlap         Reason = "OVERLAP"
	ReasonHourClosed      Reason = "HOUR_CLOSED"
	ReasonInvalidInterval Reason = "INVALID_INTERVAL"
	ReasonSeriesBounds    Reason = "SERIES_BOUNDS"
)

type InvalidIntervalError struct {
	Field  string
	Reason string
}

func (e InvalidIntervalError) Error() string {
	if e.Field == "" {
		return "invalid interval: " + e.Reason
	}
	return fmt.Sprintf("invalid interval: %s %s", e.Field, e.Reason)
}

type HourClosedError struct {
	GroundID int64
	Weekday  int
	Hours    []int
}

func (e HourClosedError) Error() string {
	return fmt.Sprintf("ground %d is closed on weekday %d at hour(s) %s", e.GroundID, e.Weekday, joinInts(e.Hours))
}

// OverlapConflictError is returned both by the validator pre-check and by
// the store when its exclusion guard fires. ReservationIDs may be empty in
// the latter case.
type OverlapConflictError struct {
	ReservationIDs []int64
	GroundIDs      []int64
}

func (e OverlapConflictError) Error() string {
	if len(e.ReservationIDs) == 0 {
		return fmt.Sprintf("requested time overlaps an existing reservation on ground(s) %s", joinInt64s(e.GroundIDs))
	}
	return fmt.Sprintf("requested time overlaps reservation(s) %s on ground(s) %s", joinInt64s(e.ReservationIDs), joinInt64s(e.GroundIDs))
}

type SeriesBoundsError struct {
	Occurrences int
	Min         int
	Max         int
}

func (e SeriesBoundsError) Error() string {
	return fmt.Sprintf("recurring series must have between %d and %d occurrences, got %d", e.Min, e.Max, e.Occurrences)
}

// InvariantViolationError signals corrupt configuration. It is never a
// normal rejection.
type InvariantViolationError struct {
	Subject string
	Detail  string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", e.Subject, e.Detail)
}

// ReasonOf classifies err. ok is false for errors that are not booking
// rejections, including invariant violations.
func ReasonOf(err error) (Reason, bool) {
	var (
		overlapErr  OverlapConflictError
		closedErr   HourClosedError
		intervalErr InvalidIntervalError
		seriesErr   SeriesBoundsError
	)
	switch {
	case errors.As(err, &overlapErr):
		return ReasonOverlap, true
	case errors.As(err, &closedErr):
		return ReasonHourClosed, true
	case errors.As(err, &intervalErr):
		return ReasonInvalidInterval, true
	case errors.As(err, &seriesErr):
		return ReasonSeriesBounds, true
	}
	return "", false
}

func IsInvariantViolation(err error) bool {
	var target InvariantViolationError
	return errors.As(err, &target)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func joinInt64s(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}
