package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/db"
)

const (
	LifecycleJobName    = "reservation_lifecycle_sweep"
	lifecycleJobTimeout = 2 * time.Minute
)

// Sweeper applies time-driven reservation transitions.
type Sweeper interface {
	SweepReservations(ctx context.Context, now time.Time) (db.SweepResult, error)
}

// RegisterLifecycleJob expires stale pending reservations and completes
// finished ones on cronExpr.
func (s *Service) RegisterLifecycleJob(sweeper Sweeper, cronExpr string) error {
	if sweeper == nil {
		return fmt.Errorf("lifecycle job requires a sweeper")
	}
	if s == nil {
		return ErrNotInitialized
	}
	_, err := s.AddJob(LifecycleJobName, cronExpr, lifecycleTask(sweeper, s.clock))
	return err
}

func lifecycleTask(sweeper Sweeper, clock clockwork.Clock) func() {
	jobLogger := log.With().
		Str("component", "reservation_lifecycle_job").
		Str("job_name", LifecycleJobName).
		Logger()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), lifecycleJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		result, err := sweeper.SweepReservations(ctx, clock.Now())
		if err != nil {
			jobLogger.Error().Err(err).Msg("Reservation lifecycle sweep failed")
			return
		}
		jobLogger.Debug().
			Int("expired", result.Expired).
			Int("started", result.Started).
			Int("completed", result.Completed).
			Msg("Reservation lifecycle sweep finished")
	}
}
