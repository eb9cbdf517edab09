package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/booking/mocks"
	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/schedule"
)

var now = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

// monday returns [start, end) on Monday 2026-10-19.
func monday(t *testing.T, start, end int) booking.Interval {
	t.Helper()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, day.Weekday())
	return booking.Interval{
		Start: day.Add(time.Duration(start) * time.Hour),
		End:   day.Add(time.Duration(end) * time.Hour),
	}
}

func openGround(id int64) models.Ground {
	g := models.Ground{
		ID:             id,
		PitchID:        1,
		Name:           "Ground",
		Status:         models.GroundStatusActive,
		BasePrice:      5000,
		DepositFee:     500,
		PeakSurcharge:  2000,
		DiscountAmount: 1000,
		PaymentMethods: []models.PaymentMethod{models.PaymentCash},
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		g.OperatingHours[day] = schedule.FullDay
	}
	g.PeakHours[time.Monday] = schedule.DayMask(0).Set(20)
	return g
}

func newValidator(t *testing.T) (*booking.Validator, *mocks.MockGroundStore, *mocks.MockReservationStore) {
	t.Helper()
	grounds := new(mocks.MockGroundStore)
	reservations := new(mocks.MockReservationStore)
	v, err := booking.NewValidator(grounds, reservations, booking.WithClock(clockwork.NewFakeClockAt(now)))
	require.NoError(t, err)
	return v, grounds, reservations
}

func groundTarget(id int64) models.Target {
	return models.Target{Type: models.TargetGround, ID: id}
}

func TestValidateAndPrice_PeakHourAccepted(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	g := openGround(1)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(g, nil)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return(nil, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 20, 21)},
	})
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, booking.StageAccepted, result.Stage)
	assert.Equal(t, g.BasePrice+g.PeakSurcharge, result.Accepted.TotalPrice)
	assert.Equal(t, []int64{1}, result.Accepted.GroundIDs)
	assert.Equal(t, int64(500), result.Accepted.Deposit)
	require.Len(t, result.Accepted.Intervals, 1)

	reservations.AssertExpectations(t)
}

func TestValidateAndPrice_OverlapRejected(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	existing := monday(t, 14, 16)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return([]models.Reservation{{
		ID:        42,
		Target:    groundTarget(1),
		GroundIDs: []int64{1},
		StartTime: existing.Start,
		EndTime:   existing.End,
		Status:    models.StatusConfirmed,
	}}, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 15, 17)},
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	assert.Equal(t, bookingerr.ReasonOverlap, result.Rejected.Reason)
	assert.Equal(t, booking.StageValidatedSchedule, result.Rejected.Stage)

	var overlapErr bookingerr.OverlapConflictError
	require.ErrorAs(t, result.Rejected.Err, &overlapErr)
	assert.Equal(t, []int64{42}, overlapErr.ReservationIDs)
	assert.Equal(t, []int64{1}, overlapErr.GroundIDs)
}

func TestValidateAndPrice_TouchingBoundaryAccepted(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	existing := monday(t, 14, 16)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return([]models.Reservation{{
		ID:        42,
		GroundIDs: []int64{1},
		StartTime: existing.Start,
		EndTime:   existing.End,
		Status:    models.StatusConfirmed,
	}}, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 16, 18)},
	})
	require.NoError(t, err)
	require.True(t, result.OK(), "touching reservations must not conflict: %+v", result.Rejected)
	assert.Equal(t, int64(10000), result.Accepted.TotalPrice)
}

func TestValidateAndPrice_NonOccupyingIgnored(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	slot := monday(t, 9, 10)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return([]models.Reservation{
		{ID: 1, GroundIDs: []int64{1}, StartTime: slot.Start, EndTime: slot.End, Status: models.StatusCancelled},
		{ID: 2, GroundIDs: []int64{1}, StartTime: slot.Start, EndTime: slot.End, Status: models.StatusExpired},
		{ID: 3, GroundIDs: []int64{1}, StartTime: slot.Start, EndTime: slot.End, Status: models.StatusNoShow},
	}, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{slot},
	})
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestValidateAndPrice_CombinationAtomic(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetCombination", mock.Anything, int64(9)).Return(models.Combination{
		ID: 9, PitchID: 1, Name: "A+B", GroundIDs: []int64{2, 1},
	}, nil)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	grounds.On("GetGround", mock.Anything, int64(2)).Return(openGround(2), nil)
	slot := monday(t, 9, 10)
	reservations.On("FindOccupying", mock.Anything, []int64{1, 2}, mock.Anything).Return([]models.Reservation{{
		ID:        77,
		Target:    groundTarget(2),
		GroundIDs: []int64{2},
		StartTime: slot.Start,
		EndTime:   slot.End,
		Status:    models.StatusConfirmed,
	}}, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    models.Target{Type: models.TargetCombination, ID: 9},
		Intervals: []booking.Interval{slot},
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	var overlapErr bookingerr.OverlapConflictError
	require.ErrorAs(t, result.Rejected.Err, &overlapErr)
	assert.Equal(t, []int64{77}, overlapErr.ReservationIDs)
	assert.Equal(t, []int64{2}, overlapErr.GroundIDs)
}

func TestValidateAndPrice_CombinationPricesAllGrounds(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetCombination", mock.Anything, int64(9)).Return(models.Combination{
		ID: 9, PitchID: 1, Name: "A+B", GroundIDs: []int64{1, 2},
	}, nil)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	grounds.On("GetGround", mock.Anything, int64(2)).Return(openGround(2), nil)
	reservations.On("FindOccupying", mock.Anything, []int64{1, 2}, mock.Anything).Return(nil, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    models.Target{Type: models.TargetCombination, ID: 9},
		Intervals: []booking.Interval{monday(t, 9, 11)},
	})
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, int64(4*5000), result.Accepted.TotalPrice)
	assert.Equal(t, int64(2*500), result.Accepted.Deposit)
}

func TestValidateAndPrice_CombinationAcrossPitches(t *testing.T) {
	v, grounds, _ := newValidator(t)
	other := openGround(2)
	other.PitchID = 5
	grounds.On("GetCombination", mock.Anything, int64(9)).Return(models.Combination{
		ID: 9, PitchID: 1, Name: "A+B", GroundIDs: []int64{1, 2},
	}, nil)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	grounds.On("GetGround", mock.Anything, int64(2)).Return(other, nil)

	_, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    models.Target{Type: models.TargetCombination, ID: 9},
		Intervals: []booking.Interval{monday(t, 9, 10)},
	})
	assert.True(t, bookingerr.IsInvariantViolation(err), "got %v", err)
}

func TestValidateAndPrice_SeriesBounds(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	intervals, err := booking.ExpandWeekly(monday(t, 9, 10), 8, 1, 20)
	require.NoError(t, err)
	intervals = append(intervals, booking.Interval{
		Start: intervals[7].Start.AddDate(0, 0, 7),
		End:   intervals[7].End.AddDate(0, 0, 7),
	})
	require.Len(t, intervals, 9)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: intervals,
		Recurring: true,
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	assert.Equal(t, bookingerr.ReasonSeriesBounds, result.Rejected.Reason)
	assert.Equal(t, booking.StageReceived, result.Rejected.Stage)
	grounds.AssertNotCalled(t, "GetGround", mock.Anything, mock.Anything)
	reservations.AssertNotCalled(t, "FindOccupying", mock.Anything, mock.Anything, mock.Anything)

	single, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: intervals[:1],
		Recurring: true,
	})
	require.NoError(t, err)
	assert.Equal(t, bookingerr.ReasonSeriesBounds, single.Rejected.Reason)
}

func TestValidateAndPrice_SeriesConflictRejectsAll(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	intervals, err := booking.ExpandWeekly(monday(t, 18, 19), 3, booking.DefaultSeriesMin, booking.DefaultSeriesMax)
	require.NoError(t, err)

	third := intervals[2]
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.MatchedBy(func(i booking.Interval) bool {
		return i.Start.Equal(third.Start)
	})).Return([]models.Reservation{{
		ID: 5, GroundIDs: []int64{1}, StartTime: third.Start, EndTime: third.End, Status: models.StatusPending,
	}}, nil)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return(nil, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: intervals,
		Recurring: true,
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	assert.Equal(t, bookingerr.ReasonOverlap, result.Rejected.Reason)
	reservations.AssertNumberOfCalls(t, "FindOccupying", 3)
}

func TestValidateAndPrice_ClosedHour(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	g := openGround(1)
	g.OperatingHours[time.Monday] = g.OperatingHours[time.Monday].Clear(3)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(g, nil)

	result, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 3, 4)},
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	assert.Equal(t, bookingerr.ReasonHourClosed, result.Rejected.Reason)
	assert.Nil(t, result.Accepted)
	reservations.AssertNotCalled(t, "FindOccupying", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateAndPrice_InvalidIntervals(t *testing.T) {
	v, _, _ := newValidator(t)
	slot := monday(t, 10, 11)
	past := booking.Interval{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)}

	tests := []struct {
		name      string
		intervals []booking.Interval
	}{
		{"no intervals", nil},
		{"inverted", []booking.Interval{{Start: slot.End, End: slot.Start}}},
		{"empty", []booking.Interval{{Start: slot.Start, End: slot.Start}}},
		{"not on the hour", []booking.Interval{{Start: slot.Start.Add(30 * time.Minute), End: slot.End}}},
		{"spans two days", []booking.Interval{{Start: slot.Start, End: slot.End.Add(24 * time.Hour)}}},
		{"in the past", []booking.Interval{past}},
		{"overlapping instances", []booking.Interval{slot, {Start: slot.Start, End: slot.End.Add(time.Hour)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateAndPrice(context.Background(), booking.Request{
				Target:    groundTarget(1),
				Intervals: tt.intervals,
			})
			require.NoError(t, err)
			require.False(t, result.OK())
			assert.Equal(t, bookingerr.ReasonInvalidInterval, result.Rejected.Reason)
		})
	}
}

func TestValidateAndPrice_RevalidatesAgainstClock(t *testing.T) {
	grounds := new(mocks.MockGroundStore)
	reservations := new(mocks.MockReservationStore)
	clock := clockwork.NewFakeClockAt(now)
	v, err := booking.NewValidator(grounds, reservations, booking.WithClock(clock))
	require.NoError(t, err)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return(nil, nil)

	req := booking.Request{Target: groundTarget(1), Intervals: []booking.Interval{monday(t, 10, 11)}}
	first, err := v.ValidateAndPrice(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.OK())

	clock.Advance(10 * 24 * time.Hour)
	second, err := v.ValidateAndPrice(context.Background(), req)
	require.NoError(t, err)
	require.False(t, second.OK())
	assert.Equal(t, bookingerr.ReasonInvalidInterval, second.Rejected.Reason)
}

func TestValidateAndPrice_CorruptMasks(t *testing.T) {
	v, grounds, _ := newValidator(t)
	g := openGround(1)
	g.DiscountHours[time.Monday] = schedule.DayMask(0).Set(20)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(g, nil)

	_, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 20, 21)},
	})
	require.Error(t, err)
	assert.True(t, bookingerr.IsInvariantViolation(err))
}

func TestValidateAndPrice_ArchivedGround(t *testing.T) {
	v, grounds, _ := newValidator(t)
	g := openGround(1)
	g.Status = models.GroundStatusArchived
	grounds.On("GetGround", mock.Anything, int64(1)).Return(g, nil)

	_, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 20, 21)},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestValidateAndPrice_StoreFailure(t *testing.T) {
	v, grounds, reservations := newValidator(t)
	grounds.On("GetGround", mock.Anything, int64(1)).Return(openGround(1), nil)
	storeErr := errors.New("database is locked")
	reservations.On("FindOccupying", mock.Anything, []int64{1}, mock.Anything).Return(nil, storeErr)

	_, err := v.ValidateAndPrice(context.Background(), booking.Request{
		Target:    groundTarget(1),
		Intervals: []booking.Interval{monday(t, 20, 21)},
	})
	assert.ErrorIs(t, err, storeErr)
}

func TestNewValidatorRequiresStores(t *testing.T) {
	_, err := booking.NewValidator(nil, new(mocks.MockReservationStore))
	assert.Error(t, err)
}

func TestWithSeriesBoundsOnlyNarrows(t *testing.T) {
	grounds, reservations := new(mocks.MockGroundStore), new(mocks.MockReservationStore)
	tests := []struct {
		name             string
		minCount, maxCnt int
		wantMin, wantMax int
	}{
		{"narrowed", 3, 6, 3, 6},
		{"single occurrence", 1, 8, 2, 8},
		{"longer than eight", 2, 12, 2, 8},
		{"inverted", 6, 3, 2, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := booking.NewValidator(grounds, reservations, booking.WithSeriesBounds(tt.minCount, tt.maxCnt))
			require.NoError(t, err)
			gotMin, gotMax := v.SeriesBounds()
			assert.Equal(t, tt.wantMin, gotMin)
			assert.Equal(t, tt.wantMax, gotMax)
		})
	}
}
