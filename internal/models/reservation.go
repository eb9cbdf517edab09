// internal/models/reservation.go
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

type ReservationStatus string

const (
	StatusPending    ReservationStatus = "PENDING"
	StatusApproved   ReservationStatus = "APPROVED"
	StatusConfirmed  ReservationStatus = "CONFIRMED"
	StatusRejected   ReservationStatus = "REJECTED"
	StatusCancelled  ReservationStatus = "CANCELLED"
	StatusInProgress ReservationStatus = "IN_PROGRESS"
	StatusNoShow     ReservationStatus = "NO_SHOW"
	StatusCompleted  ReservationStatus = "COMPLETED"
	StatusExpired    ReservationStatus = "EXPIRED"
)

var ErrInvalidTransition = errors.New("invalid reservation status transition")

// OccupyingStatuses block new bookings on the same slot.
var OccupyingStatuses = []ReservationStatus{
	StatusPending,
	StatusApproved,
	StatusConfirmed,
	StatusInProgress,
}

var statusTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled, StatusExpired},
	StatusApproved:   {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow, StatusCompleted},
	StatusInProgress: {StatusCompleted},
}

func ParseReservationStatus(value string) (ReservationStatus, error) {
	status := ReservationStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusApproved, StatusConfirmed, StatusRejected, StatusCancelled,
		StatusInProgress, StatusNoShow, StatusCompleted, StatusExpired:
		return status, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", value)
}

func (s ReservationStatus) IsOccupying() bool {
	return slices.Contains(OccupyingStatuses, s)
}

func (s ReservationStatus) IsTerminal() bool {
	_, ok := statusTransitions[s]
	return !ok
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return slices.Contains(statusTransitions[s], next)
}

type TargetType string

const (
	TargetGround      TargetType = "ground"
	TargetCombination TargetType = "combination"
)

// Target is the resource a booking is made against.
type Target struct {
	Type TargetType `json:"type"`
	ID   int64      `json:"id"`
}

func (t Target) Validate() error {
	switch t.Type {
	case TargetGround, TargetCombination:
	default:
		return fmt.Errorf("target type must be %q or %q", TargetGround, TargetCombination)
	}
	if t.ID <= 0 {
		return fmt.Errorf("target id must be a positive integer")
	}
	return nil
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Type, t.ID)
}

// Reservation is one dated occurrence. Members of a recurring series share
// SeriesID.
type Reservation struct {
	ID           int64             `json:"id"`
	Target       Target            `json:"target"`
	GroundIDs    []int64           `json:"groundIds"`
	SeriesID     string            `json:"seriesId,omitempty"`
	StartTime    time.Time         `json:"startTime"`
	EndTime      time.Time         `json:"endTime"`
	Status       ReservationStatus `json:"status"`
	ContactName  string            `json:"contactName,omitempty"`
	ContactPhone string            `json:"contactPhone,omitempty"`
	Price        int64             `json:"price"`
	Deposit      int64             `json:"deposit"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}
