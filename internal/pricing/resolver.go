// Package pricing classifies the open hours of a ground as base, peak or
// discount and prices requested intervals.
package pricing

import (
	"fmt"
	"time"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/schedule"
)

// State is the pricing class of a single open hour.
type State string

const (
	StateBase     State = "BASE"
	StatePeak     State = "PEAK"
	StateDiscount State = "DISCOUNT"
)

var nextState = map[State]State{
	StateBase:     StatePeak,
	StatePeak:     StateDiscount,
	StateDiscount: StateBase,
}

// Next returns the state that follows s in the BASE, PEAK, DISCOUNT cycle.
func Next(s State) (State, error) {
	next, ok := nextState[s]
	if !ok {
		return "", fmt.Errorf("unknown pricing state %q", s)
	}
	return next, nil
}

// HourPrice is one row of a day's pricing schedule.
type HourPrice struct {
	Hour  int   `json:"hour"`
	State State `json:"state"`
	Price int64 `json:"price"`
}

// Classify reports the pricing state of hour on the given weekday.
func Classify(g models.Ground, day time.Weekday, hour int) (State, error) {
	if hour < 0 || hour >= schedule.HoursPerDay {
		return "", bookingerr.InvalidIntervalError{Field: "hour", Reason: fmt.Sprintf("%d is out of range", hour)}
	}
	if !g.OperatingHours.Day(day).Has(hour) {
		return "", bookingerr.HourClosedError{GroundID: g.ID, Weekday: int(day), Hours: []int{hour}}
	}
	switch {
	case g.PeakHours.Day(day).Has(hour):
		return StatePeak, nil
	case g.DiscountHours.Day(day).Has(hour):
		return StateDiscount, nil
	default:
		return StateBase, nil
	}
}

// PriceOf returns the charge for one hour in the given state.
func PriceOf(g models.Ground, state State) int64 {
	switch state {
	case StatePeak:
		return g.BasePrice + g.PeakSurcharge
	case StateDiscount:
		return max(g.BasePrice-g.DiscountAmount, 0)
	default:
		return g.BasePrice
	}
}

// PriceForInterval sums the hourly price over r. Every hour must be open;
// the error lists all closed hours, not just the first.
func PriceForInterval(g models.Ground, day time.Weekday, r schedule.TimeRange) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, bookingerr.InvalidIntervalError{Reason: err.Error()}
	}
	if missing := g.OperatingHours.Day(day).Missing(r); len(missing) > 0 {
		return 0, bookingerr.HourClosedError{GroundID: g.ID, Weekday: int(day), Hours: missing}
	}

	var total int64
	for hour := r.Start; hour < r.End; hour++ {
		state, err := Classify(g, day, hour)
		if err != nil {
			return 0, err
		}
		total += PriceOf(g, state)
	}
	return total, nil
}

// DaySchedule classifies every open hour of the weekday.
func DaySchedule(g models.Ground, day time.Weekday) ([]HourPrice, error) {
	if err := g.CheckMasks(); err != nil {
		return nil, err
	}
	hours := g.OperatingHours.Day(day).Hours()
	rows := make([]HourPrice, 0, len(hours))
	for _, hour := range hours {
		state, err := Classify(g, day, hour)
		if err != nil {
			return nil, err
		}
		rows = append(rows, HourPrice{Hour: hour, State: state, Price: PriceOf(g, state)})
	}
	return rows, nil
}

// AdvancePricingState moves hour one step through the pricing cycle,
// rewriting the ground's peak and discount masks, and returns the new state.
func AdvancePricingState(g *models.Ground, day time.Weekday, hour int) (State, error) {
	if g == nil {
		return "", fmt.Errorf("ground is required")
	}
	if day < time.Sunday || day > time.Saturday {
		return "", bookingerr.InvalidIntervalError{Field: "day_of_week", Reason: "must be between 0 and 6"}
	}
	current, err := Classify(*g, day, hour)
	if err != nil {
		return "", err
	}
	next, err := Next(current)
	if err != nil {
		return "", err
	}
	if err := SetState(g, day, hour, next); err != nil {
		return "", err
	}
	return next, nil
}

// SetState forces hour into state, keeping peak and discount disjoint. A
// ground whose masks already break the invariants is refused, not repaired.
func SetState(g *models.Ground, day time.Weekday, hour int, state State) error {
	if err := g.CheckMasks(); err != nil {
		return err
	}
	if !g.OperatingHours.Day(day).Has(hour) {
		return bookingerr.HourClosedError{GroundID: g.ID, Weekday: int(day), Hours: []int{hour}}
	}
	peak := g.PeakHours[day].Clear(hour)
	discount := g.DiscountHours[day].Clear(hour)
	switch state {
	case StateBase:
	case StatePeak:
		peak = peak.Set(hour)
	case StateDiscount:
		discount = discount.Set(hour)
	default:
		return fmt.Errorf("unknown pricing state %q", state)
	}
	g.PeakHours[day] = peak
	g.DiscountHours[day] = discount
	return nil
}

// ReplaceOperatingHours sets the weekday's open hours and drops peak and
// discount flags that would land on a closed hour.
func ReplaceOperatingHours(g *models.Ground, day time.Weekday, ranges []schedule.TimeRange) error {
	if day < time.Sunday || day > time.Saturday {
		return bookingerr.InvalidIntervalError{Field: "day_of_week", Reason: "must be between 0 and 6"}
	}
	if err := g.CheckMasks(); err != nil {
		return err
	}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return bookingerr.InvalidIntervalError{Field: "ranges", Reason: err.Error()}
		}
	}
	if err := schedule.CheckDisjoint(ranges); err != nil {
		return bookingerr.InvalidIntervalError{Field: "ranges", Reason: err.Error()}
	}
	operating := schedule.RangesToMask(ranges)
	g.OperatingHours[day] = operating
	g.PeakHours[day] &= operating
	g.DiscountHours[day] &= operating
	return nil
}
