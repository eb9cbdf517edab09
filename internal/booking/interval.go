package booking

import (
	"fmt"
	"time"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/schedule"
)

const (
	DefaultSeriesMin = 2
	DefaultSeriesMax = 8
)

// Interval is a half-open span [Start, End) of wall-clock time in the
// ground's local zone.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intersects reports whether a and b share any instant. Touching endpoints
// do not intersect.
func Intersects(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Validate requires a non-empty, hour-aligned span within a single day.
// An interval may end exactly at the following midnight.
func (i Interval) Validate() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return bookingerr.InvalidIntervalError{Field: "start_time", Reason: "and end_time are required"}
	}
	if !i.Start.Before(i.End) {
		return bookingerr.InvalidIntervalError{Field: "end_time", Reason: "must be after start_time"}
	}
	if !hourAligned(i.Start) || !hourAligned(i.End) {
		return bookingerr.InvalidIntervalError{Field: "start_time", Reason: "and end_time must fall on the hour"}
	}
	if _, err := i.HourRange(); err != nil {
		return err
	}
	return nil
}

// Weekday of the interval's start.
func (i Interval) Weekday() time.Weekday {
	return i.Start.Weekday()
}

// HourRange converts the interval to the hour range of its start day. The
// end is read in the start's zone.
func (i Interval) HourRange() (schedule.TimeRange, error) {
	end := i.End.In(i.Start.Location())
	startDay := dayStart(i.Start)
	endHour := end.Hour()
	switch endDay := dayStart(end); {
	case endDay.Equal(startDay):
	case endDay.Equal(startDay.AddDate(0, 0, 1)) && endHour == 0 && end.Minute() == 0:
		endHour = schedule.HoursPerDay
	default:
		return schedule.TimeRange{}, bookingerr.InvalidIntervalError{Field: "end_time", Reason: "must be on the same day as start_time"}
	}

	r := schedule.TimeRange{Start: i.Start.Hour(), End: endHour}
	if err := r.Validate(); err != nil {
		return schedule.TimeRange{}, bookingerr.InvalidIntervalError{Reason: err.Error()}
	}
	return r, nil
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// ExpandWeekly repeats first on the same weekday for count consecutive
// weeks. count must fall within [minCount, maxCount].
func ExpandWeekly(first Interval, count, minCount, maxCount int) ([]Interval, error) {
	if count < minCount || count > maxCount {
		return nil, bookingerr.SeriesBoundsError{Occurrences: count, Min: minCount, Max: maxCount}
	}
	intervals := make([]Interval, 0, count)
	for week := 0; week < count; week++ {
		intervals = append(intervals, Interval{
			Start: first.Start.AddDate(0, 0, 7*week),
			End:   first.End.AddDate(0, 0, 7*week),
		})
	}
	return intervals, nil
}

func hourAligned(t time.Time) bool {
	return t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
