// Package booking decides whether a requested booking can be accepted and
// what it costs.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/pricing"
)

const defaultFetchConcurrency = 4

var ErrNotInitialized = errors.New("booking validator not initialized")

// GroundStore is the read-only pitch configuration collaborator.
type GroundStore interface {
	GetGround(ctx context.Context, id int64) (models.Ground, error)
	GetCombination(ctx context.Context, id int64) (models.Combination, error)
}

// ReservationStore returns occupying reservations on any of groundIDs that
// intersect interval.
type ReservationStore interface {
	FindOccupying(ctx context.Context, groundIDs []int64, interval Interval) ([]models.Reservation, error)
}

// Stage is a step of a single booking attempt.
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageValidatedSchedule Stage = "VALIDATED_SCHEDULE"
	StageCheckedOverlap    Stage = "CHECKED_OVERLAP"
	StageAccepted          Stage = "ACCEPTED"
	StageRejected          Stage = "REJECTED"
)

// Request asks to book Target for every interval. Recurring marks the
// intervals as one series; more than one interval always forms a series.
type Request struct {
	Target    models.Target
	Intervals []Interval
	Recurring bool
}

func (r Request) isSeries() bool {
	return r.Recurring || len(r.Intervals) > 1
}

type PricedInterval struct {
	Interval
	Price   int64 `json:"price"`
	Deposit int64 `json:"deposit"`
}

type AcceptedBooking struct {
	Target     models.Target    `json:"target"`
	GroundIDs  []int64          `json:"groundIds"`
	Intervals  []PricedInterval `json:"intervals"`
	TotalPrice int64            `json:"totalPrice"`
	Deposit    int64            `json:"deposit"`
}

type RejectedBooking struct {
	Reason bookingerr.Reason `json:"reason"`
	// Stage is the last stage the attempt completed before rejection.
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Result holds exactly one of Accepted or Rejected.
type Result struct {
	Stage    Stage            `json:"stage"`
	Accepted *AcceptedBooking `json:"accepted,omitempty"`
	Rejected *RejectedBooking `json:"rejected,omitempty"`
}

func (r Result) OK() bool {
	return r.Accepted != nil
}

// Reject builds a rejected result from a booking error. ok is false when
// err is not a rejection.
func Reject(stage Stage, err error) (Result, bool) {
	reason, ok := bookingerr.ReasonOf(err)
	if !ok {
		return Result{}, false
	}
	return Result{
		Stage: StageRejected,
		Rejected: &RejectedBooking{
			Reason:  reason,
			Stage:   stage,
			Message: err.Error(),
			Err:     err,
		},
	}, true
}

type Option func(*Validator)

func WithClock(clock clockwork.Clock) Option {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithSeriesBounds narrows the accepted series length. Bounds outside
// [DefaultSeriesMin, DefaultSeriesMax] are ignored.
func WithSeriesBounds(minCount, maxCount int) Option {
	return func(v *Validator) {
		if minCount >= DefaultSeriesMin && maxCount <= DefaultSeriesMax && maxCount >= minCount {
			v.seriesMin = minCount
			v.seriesMax = maxCount
		}
	}
}

func WithFetchConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.fetchConcurrency = n
		}
	}
}

// Validator holds no per-request state and is safe for concurrent use.
type Validator struct {
	grounds          GroundStore
	reservations     ReservationStore
	clock            clockwork.Clock
	seriesMin        int
	seriesMax        int
	fetchConcurrency int
}

func NewValidator(grounds GroundStore, reservations ReservationStore, opts ...Option) (*Validator, error) {
	if grounds == nil || reservations == nil {
		return nil, errors.New("booking validator requires ground and reservation stores")
	}
	v := &Validator{
		grounds:          grounds,
		reservations:     reservations,
		clock:            clockwork.NewRealClock(),
		seriesMin:        DefaultSeriesMin,
		seriesMax:        DefaultSeriesMax,
		fetchConcurrency: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Validator) SeriesBounds() (int, int) {
	return v.seriesMin, v.seriesMax
}

// ValidateAndPrice runs one booking attempt. Rejections come back in the
// Result; the error is reserved for store failures, unknown targets and
// invariant violations.
func (v *Validator) ValidateAndPrice(ctx context.Context, req Request) (Result, error) {
	if v == nil || v.grounds == nil || v.reservations == nil {
		return Result{}, ErrNotInitialized
	}

	logger := log.Ctx(ctx).With().
		Str("component", "booking_validator").
		Str("target_type", string(req.Target.Type)).
		Int64("target_id", req.Target.ID).
		Int("occurrences", len(req.Intervals)).
		Logger()

	stage := StageReceived
	logger.Debug().Str("stage", string(stage)).Msg("Booking attempt received")

	reject := func(err error) (Result, error) {
		result, ok := Reject(stage, err)
		if !ok {
			return Result{}, err
		}
		logger.Info().
			Str("stage", string(stage)).
			Str("reason", string(result.Rejected.Reason)).
			Err(err).
			Msg("Booking rejected")
		return result, nil
	}

	if err := req.Target.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid target: %w", err)
	}
	if err := v.checkIntervals(req); err != nil {
		return reject(err)
	}

	grounds, err := v.resolveGrounds(ctx, req.Target)
	if err != nil {
		if bookingerr.IsInvariantViolation(err) {
			logger.Error().Err(err).Msg("Ground configuration violates invariants")
		}
		return Result{}, err
	}
	groundIDs := make([]int64, len(grounds))
	for i, g := range grounds {
		groundIDs[i] = g.ID
	}

	if err := checkOperatingHours(grounds, req.Intervals); err != nil {
		return reject(err)
	}
	stage = StageValidatedSchedule
	logger.Debug().Str("stage", string(stage)).Ints64("ground_ids", groundIDs).Msg("Booking schedule validated")

	if err := v.checkOverlap(ctx, groundIDs, req.Intervals); err != nil {
		return reject(err)
	}
	stage = StageCheckedOverlap
	logger.Debug().Str("stage", string(stage)).Msg("Booking overlap checked")

	accepted, err := priceBooking(req.Target, grounds, groundIDs, req.Intervals)
	if err != nil {
		return reject(err)
	}
	logger.Info().
		Int64("total_price", accepted.TotalPrice).
		Ints64("ground_ids", groundIDs).
		Msg("Booking accepted")
	return Result{Stage: StageAccepted, Accepted: accepted}, nil
}

func (v *Validator) checkIntervals(req Request) error {
	count := len(req.Intervals)
	if req.isSeries() && (count < v.seriesMin || count > v.seriesMax) {
		return bookingerr.SeriesBoundsError{Occurrences: count, Min: v.seriesMin, Max: v.seriesMax}
	}
	if count == 0 {
		return bookingerr.InvalidIntervalError{Field: "intervals", Reason: "must include at least one interval"}
	}

	now := v.clock.Now()
	for i, interval := range req.Intervals {
		if err := interval.Validate(); err != nil {
			return err
		}
		if interval.Start.Before(now) {
			return bookingerr.InvalidIntervalError{Field: "start_time", Reason: "must not be in the past"}
		}
		for _, other := range req.Intervals[:i] {
			if Intersects(interval, other) {
				return bookingerr.InvalidIntervalError{Field: "intervals", Reason: "must not overlap each other"}
			}
		}
	}
	return nil
}

// resolveGrounds returns the target ground, or every member ground of a
// combination, ordered by id.
func (v *Validator) resolveGrounds(ctx context.Context, target models.Target) ([]models.Ground, error) {
	var ids []int64
	switch target.Type {
	case models.TargetGround:
		ids = []int64{target.ID}
	case models.TargetCombination:
		combination, err := v.grounds.GetCombination(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("load combination %d: %w", target.ID, err)
		}
		ids = models.NormalizeGroundIDs(combination.GroundIDs)
		if len(ids) < 2 {
			return nil, bookingerr.InvariantViolationError{
				Subject: fmt.Sprintf("combination %d", combination.ID),
				Detail:  "references fewer than 2 grounds",
			}
		}
	default:
		return nil, fmt.Errorf("unsupported target type %q", target.Type)
	}

	grounds := make([]models.Ground, 0, len(ids))
	var pitchID int64
	for _, id := range ids {
		ground, err := v.grounds.GetGround(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load ground %d: %w", id, err)
		}
		if !ground.Bookable() {
			return nil, fmt.Errorf("ground %d is %s: %w", id, ground.Status, models.ErrNotFound)
		}
		if err := ground.CheckMasks(); err != nil {
			return nil, err
		}
		if pitchID != 0 && ground.PitchID != pitchID {
			return nil, bookingerr.InvariantViolationError{
				Subject: target.String(),
				Detail:  "combines grounds from different pitches",
			}
		}
		pitchID = ground.PitchID
		grounds = append(grounds, ground)
	}
	return grounds, nil
}

func checkOperatingHours(grounds []models.Ground, intervals []Interval) error {
	for _, interval := range intervals {
		hours, err := interval.HourRange()
		if err != nil {
			return err
		}
		day := interval.Weekday()
		for _, ground := range grounds {
			if missing := ground.OperatingHours.Day(day).Missing(hours); len(missing) > 0 {
				return bookingerr.HourClosedError{GroundID: ground.ID, Weekday: int(day), Hours: missing}
			}
		}
	}
	return nil
}

// checkOverlap fetches occupying reservations for every instance
// concurrently. Any conflict on any ground rejects the whole request.
func (v *Validator) checkOverlap(ctx context.Context, groundIDs []int64, intervals []Interval) error {
	found := make([][]models.Reservation, len(intervals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.fetchConcurrency)
	for i, interval := range intervals {
		g.Go(func() error {
			reservations, err := v.reservations.FindOccupying(gctx, groundIDs, interval)
			if err != nil {
				return fmt.Errorf("find occupying reservations for %s: %w", interval, err)
			}
			found[i] = reservations
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var reservationIDs, conflictGroundIDs []int64
	for i, interval := range intervals {
		for _, existing := range found[i] {
			if !existing.Status.IsOccupying() {
				continue
			}
			if !Intersects(interval, Interval{Start: existing.StartTime, End: existing.EndTime}) {
				continue
			}
			affected := sharedGrounds(existing.GroundIDs, groundIDs)
			if len(affected) == 0 {
				continue
			}
			reservationIDs = append(reservationIDs, existing.ID)
			conflictGroundIDs = append(conflictGroundIDs, affected...)
		}
	}
	if len(reservationIDs) == 0 {
		return nil
	}
	return bookingerr.OverlapConflictError{
		ReservationIDs: uniqueSorted(reservationIDs),
		GroundIDs:      uniqueSorted(conflictGroundIDs),
	}
}

func sharedGrounds(reserved, requested []int64) []int64 {
	var shared []int64
	for _, id := range reserved {
		if slices.Contains(requested, id) {
			shared = append(shared, id)
		}
	}
	return shared
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func priceBooking(target models.Target, grounds []models.Ground, groundIDs []int64, intervals []Interval) (*AcceptedBooking, error) {
	accepted := &AcceptedBooking{
		Target:    target,
		GroundIDs: groundIDs,
		Intervals: make([]PricedInterval, 0, len(intervals)),
	}
	for _, interval := range intervals {
		hours, err := interval.HourRange()
		if err != nil {
			return nil, err
		}
		priced := PricedInterval{Interval: interval}
		for _, ground := range grounds {
			price, err := pricing.PriceForInterval(ground, interval.Weekday(), hours)
			if err != nil {
				return nil, err
			}
			priced.Price += price
			priced.Deposit += ground.DepositFee
		}
		accepted.Intervals = append(accepted.Intervals, priced)
		accepted.TotalPrice += priced.Price
		accepted.Deposit += priced.Deposit
	}
	return accepted, nil
}
