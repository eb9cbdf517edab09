// Package onboarding builds a ground step by step. A Draft carries every
// answer given so far and is plain JSON so it can be stored between steps.
package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/schedule"
)

type Step string

const (
	StepDetails Step = "details"
	StepHours   Step = "hours"
	StepPricing Step = "pricing"
	StepReview  Step = "review"
)

// Steps in the order they must be completed.
var Steps = []Step{StepDetails, StepHours, StepPricing, StepReview}

var ErrStepOutOfOrder = errors.New("onboarding step out of order")

func ParseStep(value string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(Steps, step) {
		return "", fmt.Errorf("unknown onboarding step %q", value)
	}
	return step, nil
}

type Details struct {
	Name               string                    `json:"name"`
	PaymentMethods     []string                  `json:"paymentMethods"`
	CancellationPolicy models.CancellationPolicy `json:"cancellationPolicy"`
}

// Hours maps a weekday (0 = Sunday) to its operating ranges. Missing days
// are closed.
type Hours struct {
	Days map[int][]schedule.TimeRange `json:"days"`
}

type Pricing struct {
	BasePrice      int64                        `json:"basePrice"`
	DepositFee     int64                        `json:"depositFee"`
	PeakSurcharge  int64                        `json:"peakSurcharge"`
	DiscountAmount int64                        `json:"discountAmount"`
	PeakHours      map[int][]schedule.TimeRange `json:"peakHours,omitempty"`
	DiscountHours  map[int][]schedule.TimeRange `json:"discountHours,omitempty"`
}

type Draft struct {
	ID        string    `json:"id"`
	PitchID   int64     `json:"pitchId"`
	Completed []Step    `json:"completed"`
	Details   *Details  `json:"details,omitempty"`
	Hours     *Hours    `json:"hours,omitempty"`
	Pricing   *Pricing  `json:"pricing,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(id string, pitchID int64, now time.Time) (Draft, error) {
	if strings.TrimSpace(id) == "" {
		return Draft{}, fmt.Errorf("draft id is required")
	}
	if pitchID <= 0 {
		return Draft{}, fmt.Errorf("pitch_id must be a positive integer")
	}
	return Draft{
		ID:        id,
		PitchID:   pitchID,
		Completed: []Step{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NextStep is the first step not yet completed, or "" once reviewed.
func (d Draft) NextStep() Step {
	for _, step := range Steps {
		if !slices.Contains(d.Completed, step) {
			return step
		}
	}
	return ""
}

func (d Draft) Done(step Step) bool {
	return slices.Contains(d.Completed, step)
}

// requireBefore fails unless every step before step is complete.
func (d Draft) requireBefore(step Step) error {
	for _, earlier := range Steps {
		if earlier == step {
			return nil
		}
		if !d.Done(earlier) {
			return fmt.Errorf("%s requires %s: %w", step, earlier, ErrStepOutOfOrder)
		}
	}
	return nil
}

// complete marks step done and forgets later answers, which may no longer
// fit the edited step.
func (d Draft) complete(step Step, now time.Time) Draft {
	idx := slices.Index(Steps, step)
	completed := make([]Step, 0, idx+1)
	for _, s := range Steps[:idx+1] {
		if s == step || d.Done(s) {
			completed = append(completed, s)
		}
	}
	d.Completed = completed
	if idx < slices.Index(Steps, StepHours) {
		d.Hours = nil
	}
	if idx < slices.Index(Steps, StepPricing) {
		d.Pricing = nil
	}
	d.UpdatedAt = now
	return d
}

func ApplyDetails(d Draft, in Details, now time.Time) (Draft, error) {
	in.Name = strings.TrimSpace(in.Name)
	methods := make([]models.PaymentMethod, 0, len(in.PaymentMethods))
	for _, raw := range in.PaymentMethods {
		method, err := models.ParsePaymentMethod(raw)
		if err != nil {
			return d, err
		}
		methods = append(methods, method)
	}
	probe := models.Ground{
		PitchID:            d.PitchID,
		Name:               in.Name,
		BasePrice:          1,
		PaymentMethods:     methods,
		CancellationPolicy: in.CancellationPolicy,
	}
	if err := probe.Validate(); err != nil {
		return d, err
	}
	d.Details = &in
	return d.complete(StepDetails, now), nil
}

func ApplyHours(d Draft, in Hours, now time.Time) (Draft, error) {
	if err := d.requireBefore(StepHours); err != nil {
		return d, err
	}
	days := make(map[int][]schedule.TimeRange, len(in.Days))
	open := false
	for day, ranges := range in.Days {
		if _, err := schedule.ParseWeekday(int64(day)); err != nil {
			return d, err
		}
		for _, r := range ranges {
			if err := r.Validate(); err != nil {
				return d, fmt.Errorf("day %d: %w", day, err)
			}
		}
		if err := schedule.CheckDisjoint(ranges); err != nil {
			return d, fmt.Errorf("day %d: %w", day, err)
		}
		days[day] = schedule.Normalize(ranges)
		open = open || len(days[day]) > 0
	}
	if !open {
		return d, fmt.Errorf("at least one operating hour is required")
	}
	d.Hours = &Hours{Days: days}
	return d.complete(StepHours, now), nil
}

func ApplyPricing(d Draft, in Pricing, now time.Time) (Draft, error) {
	if err := d.requireBefore(StepPricing); err != nil {
		return d, err
	}
	next := d
	next.Pricing = &in
	g, err := next.ground()
	if err != nil {
		return d, err
	}
	if err := g.Validate(); err != nil {
		return d, err
	}
	return next.complete(StepPricing, now), nil
}

// Review confirms the draft builds a valid ground.
func Review(d Draft, now time.Time) (Draft, error) {
	if err := d.requireBefore(StepReview); err != nil {
		return d, err
	}
	g, err := d.ground()
	if err != nil {
		return d, err
	}
	if err := g.Validate(); err != nil {
		return d, err
	}
	return d.complete(StepReview, now), nil
}

// Apply decodes payload for step and applies it.
func Apply(d Draft, step Step, payload []byte, now time.Time) (Draft, error) {
	decode := func(v any) error {
		if len(payload) == 0 {
			return fmt.Errorf("%s payload is required", step)
		}
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("invalid %s payload: %w", step, err)
		}
		return nil
	}

	switch step {
	case StepDetails:
		var in Details
		if err := decode(&in); err != nil {
			return d, err
		}
		return ApplyDetails(d, in, now)
	case StepHours:
		var in Hours
		if err := decode(&in); err != nil {
			return d, err
		}
		return ApplyHours(d, in, now)
	case StepPricing:
		var in Pricing
		if err := decode(&in); err != nil {
			return d, err
		}
		return ApplyPricing(d, in, now)
	case StepReview:
		return Review(d, now)
	default:
		return d, fmt.Errorf("unknown onboarding step %q", step)
	}
}

// Build returns the ground described by a fully reviewed draft.
func Build(d Draft) (models.Ground, error) {
	if !d.Done(StepReview) {
		return models.Ground{}, fmt.Errorf("build requires %s: %w", StepReview, ErrStepOutOfOrder)
	}
	g, err := d.ground()
	if err != nil {
		return models.Ground{}, err
	}
	if err := g.Validate(); err != nil {
		return models.Ground{}, err
	}
	return g, nil
}

func (d Draft) ground() (models.Ground, error) {
	if d.Details == nil || d.Hours == nil || d.Pricing == nil {
		return models.Ground{}, fmt.Errorf("draft %s is incomplete", d.ID)
	}
	g := models.Ground{
		PitchID:            d.PitchID,
		Name:               d.Details.Name,
		Status:             models.GroundStatusActive,
		BasePrice:          d.Pricing.BasePrice,
		DepositFee:         d.Pricing.DepositFee,
		PeakSurcharge:      d.Pricing.PeakSurcharge,
		DiscountAmount:     d.Pricing.DiscountAmount,
		CancellationPolicy: d.Details.CancellationPolicy,
	}
	for _, raw := range d.Details.PaymentMethods {
		method, err := models.ParsePaymentMethod(raw)
		if err != nil {
			return models.Ground{}, err
		}
		g.PaymentMethods = append(g.PaymentMethods, method)
	}

	var err error
	if g.OperatingHours, err = toWeek(d.Hours.Days); err != nil {
		return models.Ground{}, err
	}
	if g.PeakHours, err = toWeek(d.Pricing.PeakHours); err != nil {
		return models.Ground{}, fmt.Errorf("peak hours: %w", err)
	}
	if g.DiscountHours, err = toWeek(d.Pricing.DiscountHours); err != nil {
		return models.Ground{}, fmt.Errorf("discount hours: %w", err)
	}
	if err := g.CheckMasks(); err != nil {
		return models.Ground{}, err
	}
	return g, nil
}

func toWeek(days map[int][]schedule.TimeRange) (schedule.Week, error) {
	var week schedule.Week
	for day, ranges := range days {
		weekday, err := schedule.ParseWeekday(int64(day))
		if err != nil {
			return week, err
		}
		for _, r := range ranges {
			if err := r.Validate(); err != nil {
				return week, fmt.Errorf("day %d: %w", day, err)
			}
		}
		week[weekday] = schedule.RangesToMask(ranges)
	}
	return week, nil
}
