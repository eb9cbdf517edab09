// Package schedule converts between hour ranges and the 24-bit day masks
// persisted for every ground and weekday.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// HoursPerDay is the number of bits a DayMask uses.
const HoursPerDay = 24

// FullDay has every hour of the day set.
const FullDay DayMask = 1<<HoursPerDay - 1

// DayMask flags hours of a single day. Bit h covers [h, h+1) local time.
type DayMask uint32

// Week holds one DayMask per weekday, indexed by time.Weekday (0=Sunday).
type Week [7]DayMask

// TimeRange is the half-open hour interval [Start, End).
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r TimeRange) Validate() error {
	switch {
	case r.Start < 0 || r.Start > HoursPerDay:
		return fmt.Errorf("start hour %d out of range", r.Start)
	case r.End < 0 || r.End > HoursPerDay:
		return fmt.Errorf("end hour %d out of range", r.End)
	case r.Start >= r.End:
		return fmt.Errorf("start hour %d must be before end hour %d", r.Start, r.End)
	}
	return nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", r.Start, r.End)
}

// Len returns the number of hours covered by the range.
func (r TimeRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// RangesToMask sets bits [Start, End) for every range. Overlapping input is
// not rejected; hours outside [0, 24) are ignored.
func RangesToMask(ranges []TimeRange) DayMask {
	var mask DayMask
	for _, r := range ranges {
		start := max(r.Start, 0)
		end := min(r.End, HoursPerDay)
		for h := start; h < end; h++ {
			mask |= 1 << h
		}
	}
	return mask
}

// MaskToRanges coalesces consecutive set bits into ranges, ascending.
func MaskToRanges(mask DayMask) []TimeRange {
	ranges := []TimeRange{}
	start := -1
	for h := 0; h < HoursPerDay; h++ {
		if mask.Has(h) {
			if start < 0 {
				start = h
			}
			continue
		}
		if start >= 0 {
			ranges = append(ranges, TimeRange{Start: start, End: h})
			start = -1
		}
	}
	if start >= 0 {
		ranges = append(ranges, TimeRange{Start: start, End: HoursPerDay})
	}
	return ranges
}

// Normalize sorts ranges and merges ranges that overlap or touch.
func Normalize(ranges []TimeRange) []TimeRange {
	return MaskToRanges(RangesToMask(ranges))
}

// Flatten expands ranges into the covered hours in ascending order.
func Flatten(ranges []TimeRange) []int {
	return RangesToMask(ranges).Hours()
}

// CheckDisjoint reports the first pair of ranges that overlap. Touching
// ranges are allowed.
func CheckDisjoint(ranges []TimeRange) error {
	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return fmt.Errorf("range %s overlaps %s", sorted[i], sorted[i-1])
		}
	}
	return nil
}

func (m DayMask) Has(hour int) bool {
	if hour < 0 || hour >= HoursPerDay {
		return false
	}
	return m&(1<<hour) != 0
}

func (m DayMask) Set(hour int) DayMask {
	if hour < 0 || hour >= HoursPerDay {
		return m
	}
	return m | 1<<hour
}

func (m DayMask) Clear(hour int) DayMask {
	if hour < 0 || hour >= HoursPerDay {
		return m
	}
	return m &^ (1 << hour)
}

// Covers reports whether every hour of r is set.
func (m DayMask) Covers(r TimeRange) bool {
	want := RangesToMask([]TimeRange{r})
	return want != 0 && m&want == want
}

// Missing returns the hours of r that are not set in m.
func (m DayMask) Missing(r TimeRange) []int {
	want := RangesToMask([]TimeRange{r})
	return (want &^ m).Hours()
}

// Hours lists the set hours in ascending order.
func (m DayMask) Hours() []int {
	hours := []int{}
	for h := 0; h < HoursPerDay; h++ {
		if m.Has(h) {
			hours = append(hours, h)
		}
	}
	return hours
}

// Valid reports whether only the low 24 bits are used.
func (m DayMask) Valid() bool {
	return m&^FullDay == 0
}

func (m DayMask) String() string {
	ranges := MaskToRanges(m)
	if len(ranges) == 0 {
		return "closed"
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Day returns the mask for the given weekday.
func (w Week) Day(day time.Weekday) DayMask {
	if day < time.Sunday || day > time.Saturday {
		return 0
	}
	return w[day]
}

// ParseWeekday accepts 0-6 (0=Sunday).
func ParseWeekday(value int64) (time.Weekday, error) {
	if value < 0 || value > 6 {
		return 0, fmt.Errorf("day_of_week must be between 0 and 6")
	}
	return time.Weekday(value), nil
}
