package bookingerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Reason
		wantOK bool
	}{
		{"overlap", OverlapConflictError{ReservationIDs: []int64{4}, GroundIDs: []int64{1}}, ReasonOverlap, true},
		{"wrapped overlap", fmt.Errorf("create: %w", OverlapConflictError{}), ReasonOverlap, true},
		{"closed", HourClosedError{GroundID: 1, Hours: []int{3}}, ReasonHourClosed, true},
		{"interval", InvalidIntervalError{Field: "end", Reason: "must be after start"}, ReasonInvalidInterval, true},
		{"series", SeriesBoundsError{Occurrences: 9, Min: 2, Max: 8}, ReasonSeriesBounds, true},
		{"invariant", InvariantViolationError{Subject: "ground 1", Detail: "peak overlaps discount"}, "", false},
		{"other", errors.New("boom"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReasonOf(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ReasonOf(%v) = %q, %v; want %q, %v", tt.err, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := OverlapConflictError{ReservationIDs: []int64{7, 9}, GroundIDs: []int64{2}}
	if got := err.Error(); got != "requested time overlaps reservation(s) 7, 9 on ground(s) 2" {
		t.Fatalf("message: %q", got)
	}
	closed := HourClosedError{GroundID: 3, Weekday: 1, Hours: []int{3, 4}}
	if got := closed.Error(); got != "ground 3 is closed on weekday 1 at hour(s) 3, 4" {
		t.Fatalf("message: %q", got)
	}
	if !IsInvariantViolation(fmt.Errorf("load: %w", InvariantViolationError{Subject: "x", Detail: "y"})) {
		t.Fatalf("wrapped invariant violation not detected")
	}
}
