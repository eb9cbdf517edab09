// internal/db/reservations.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
)

// overlapGuard names the sqlite trigger message and the postgres exclusion
// constraint that reject a second occupying row on a ground.
const overlapGuard = "reservation_ground_overlap"

type reservationRow struct {
	ID           int64  `db:"id"`
	TargetType   string `db:"target_type"`
	TargetID     int64  `db:"target_id"`
	SeriesID     string `db:"series_id"`
	StartAt      int64  `db:"start_at"`
	EndAt        int64  `db:"end_at"`
	Status       string `db:"status"`
	ContactName  string `db:"contact_name"`
	ContactPhone string `db:"contact_phone"`
	Price        int64  `db:"price"`
	Deposit      int64  `db:"deposit"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

const reservationColumns = `r.id, r.target_type, r.target_id, r.series_id, r.start_at, r.end_at, r.status,
	r.contact_name, r.contact_phone, r.price, r.deposit, r.created_at, r.updated_at`

func (r reservationRow) toModel() models.Reservation {
	return models.Reservation{
		ID:           r.ID,
		Target:       models.Target{Type: models.TargetType(r.TargetType), ID: r.TargetID},
		SeriesID:     r.SeriesID,
		StartTime:    time.Unix(r.StartAt, 0).UTC(),
		EndTime:      time.Unix(r.EndAt, 0).UTC(),
		Status:       models.ReservationStatus(r.Status),
		ContactName:  r.ContactName,
		ContactPhone: r.ContactPhone,
		Price:        r.Price,
		Deposit:      r.Deposit,
		CreatedAt:    time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

// SweepResult counts reservations moved by SweepReservations.
type SweepResult struct {
	Expired   int
	Started   int
	Completed int
}

func (r SweepResult) Total() int {
	return r.Expired + r.Started + r.Completed
}

// FindOccupying returns occupying reservations holding any of groundIDs for
// some instant of interval.
func (q *Queries) FindOccupying(ctx context.Context, groundIDs []int64, interval booking.Interval) ([]models.Reservation, error) {
	if len(groundIDs) == 0 {
		return nil, nil
	}
	query, args, err := q.in(`
		SELECT DISTINCT `+reservationColumns+`
		FROM reservations r
		JOIN reservation_grounds rg ON rg.reservation_id = r.id
		WHERE rg.ground_id IN (?)
		  AND rg.occupying
		  AND rg.start_at < ?
		  AND ? < rg.end_at
		ORDER BY r.start_at, r.id`,
		groundIDs, interval.End.Unix(), interval.Start.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("build occupying query: %w", err)
	}

	var rows []reservationRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find occupying reservations: %w", err)
	}
	return q.withGroundIDs(ctx, rows)
}

func (q *Queries) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	var row reservationRow
	err := sqlx.GetContext(ctx, q.db, &row, q.rebind(`SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
		}
		return models.Reservation{}, fmt.Errorf("get reservation %d: %w", id, err)
	}
	reservations, err := q.withGroundIDs(ctx, []reservationRow{row})
	if err != nil {
		return models.Reservation{}, err
	}
	return reservations[0], nil
}

func (q *Queries) ListSeries(ctx context.Context, seriesID string) ([]models.Reservation, error) {
	var rows []reservationRow
	err := sqlx.SelectContext(ctx, q.db, &rows, q.rebind(`
		SELECT `+reservationColumns+` FROM reservations r
		WHERE r.series_id = ? AND r.series_id <> ''
		ORDER BY r.start_at`), seriesID)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", seriesID, err)
	}
	return q.withGroundIDs(ctx, rows)
}

func (q *Queries) withGroundIDs(ctx context.Context, rows []reservationRow) ([]models.Reservation, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	query, args, err := q.in(`
		SELECT reservation_id, ground_id FROM reservation_grounds
		WHERE reservation_id IN (?)
		ORDER BY reservation_id, ground_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build reservation grounds query: %w", err)
	}
	var links []struct {
		ReservationID int64 `db:"reservation_id"`
		GroundID      int64 `db:"ground_id"`
	}
	if err := sqlx.SelectContext(ctx, q.db, &links, query, args...); err != nil {
		return nil, fmt.Errorf("load reservation grounds: %w", err)
	}

	grounds := make(map[int64][]int64, len(rows))
	for _, link := range links {
		grounds[link.ReservationID] = append(grounds[link.ReservationID], link.GroundID)
	}
	reservations := make([]models.Reservation, len(rows))
	for i, row := range rows {
		reservations[i] = row.toModel()
		reservations[i].GroundIDs = grounds[row.ID]
	}
	return reservations, nil
}

// InsertReservation writes r and one reservation_grounds row per ground.
// An occupying row that collides with another is reported as
// bookingerr.OverlapConflictError.
func (q *Queries) InsertReservation(ctx context.Context, r models.Reservation) (models.Reservation, error) {
	now := q.now().UTC().Truncate(time.Second)
	var id int64
	err := q.db.QueryRowxContext(ctx, q.rebind(`
		INSERT INTO reservations (
			target_type, target_id, series_id, start_at, end_at, status,
			contact_name, contact_phone, price, deposit, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		string(r.Target.Type), r.Target.ID, r.SeriesID, r.StartTime.Unix(), r.EndTime.Unix(), string(r.Status),
		r.ContactName, r.ContactPhone, r.Price, r.Deposit, now.Unix(), now.Unix(),
	).Scan(&id)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}

	occupying := r.Status.IsOccupying()
	for _, groundID := range r.GroundIDs {
		_, err := q.db.ExecContext(ctx, q.rebind(`
			INSERT INTO reservation_grounds (reservation_id, ground_id, start_at, end_at, occupying)
			VALUES (?, ?, ?, ?, ?)`),
			id, groundID, r.StartTime.Unix(), r.EndTime.Unix(), occupying,
		)
		if err != nil {
			if isOverlapViolation(err) {
				return models.Reservation{}, bookingerr.OverlapConflictError{GroundIDs: []int64{groundID}}
			}
			return models.Reservation{}, fmt.Errorf("insert reservation ground %d: %w", groundID, err)
		}
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return r, nil
}

func isOverlapViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint && strings.Contains(sqliteErr.Error(), overlapGuard)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "exclusion_violation" && pqErr.Constraint == overlapGuard
	}
	return false
}

func (q *Queries) setReservationStatus(ctx context.Context, ids []int64, status models.ReservationStatus) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := q.in(`UPDATE reservations SET status = ?, updated_at = ? WHERE id IN (?)`,
		string(status), q.now().Unix(), ids)
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}

	if status.IsOccupying() {
		return nil
	}
	query, args, err = q.in(`UPDATE reservation_grounds SET occupying = ? WHERE reservation_id IN (?)`, false, ids)
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release reservation grounds: %w", err)
	}
	return nil
}

func (q *Queries) reservationIDsByStatus(ctx context.Context, statuses []models.ReservationStatus, column string, before time.Time) ([]int64, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	query, args, err := q.in(`SELECT id FROM reservations WHERE status IN (?) AND `+column+` <= ? ORDER BY id`,
		values, before.Unix())
	if err != nil {
		return nil, fmt.Errorf("build sweep query: %w", err)
	}
	var ids []int64
	if err := sqlx.SelectContext(ctx, q.db, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("select reservations to sweep: %w", err)
	}
	return ids, nil
}

// CreateReservations inserts every reservation in one transaction. Either
// all rows are stored or none are.
func (db *DB) CreateReservations(ctx context.Context, reservations []models.Reservation) ([]models.Reservation, error) {
	created := make([]models.Reservation, 0, len(reservations))
	err := db.RunInTx(ctx, func(tx *DB) error {
		for _, r := range reservations {
			stored, err := tx.Queries.InsertReservation(ctx, r)
			if err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateReservationStatus moves a reservation along the lifecycle. Leaving
// the occupying set frees its grounds for new bookings.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, next models.ReservationStatus) (models.Reservation, error) {
	var updated models.Reservation
	err := db.RunInTx(ctx, func(tx *DB) error {
		current, err := tx.Queries.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("reservation %d %s -> %s: %w", id, current.Status, next, models.ErrInvalidTransition)
		}
		if err := tx.Queries.setReservationStatus(ctx, []int64{id}, next); err != nil {
			return err
		}
		updated, err = tx.Queries.GetReservation(ctx, id)
		return err
	})
	if err != nil {
		return models.Reservation{}, err
	}
	return updated, nil
}

// SweepReservations applies time-driven transitions as of now: unconfirmed
// reservations whose start has passed expire, confirmed ones that have
// started go in progress, and those that have ended complete.
func (db *DB) SweepReservations(ctx context.Context, now time.Time) (SweepResult, error) {
	logger := log.Ctx(ctx).With().Str("component", "reservation_sweep").Logger()

	var result SweepResult
	err := db.RunInTx(ctx, func(tx *DB) error {
		completed, err := tx.Queries.reservationIDsByStatus(ctx,
			[]models.ReservationStatus{models.StatusConfirmed, models.StatusInProgress}, "end_at", now)
		if err != nil {
			return err
		}
		if err := tx.Queries.setReservationStatus(ctx, completed, models.StatusCompleted); err != nil {
			return err
		}

		started, err := tx.Queries.reservationIDsByStatus(ctx,
			[]models.ReservationStatus{models.StatusConfirmed}, "start_at", now)
		if err != nil {
			return err
		}
		if err := tx.Queries.setReservationStatus(ctx, started, models.StatusInProgress); err != nil {
			return err
		}

		expired, err := tx.Queries.reservationIDsByStatus(ctx,
			[]models.ReservationStatus{models.StatusPending, models.StatusApproved}, "start_at", now)
		if err != nil {
			return err
		}
		if err := tx.Queries.setReservationStatus(ctx, expired, models.StatusExpired); err != nil {
			return err
		}

		result = SweepResult{Expired: len(expired), Started: len(started), Completed: len(completed)}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	if result.Total() > 0 {
		logger.Info().
			Int("expired", result.Expired).
			Int("started", result.Started).
			Int("completed", result.Completed).
			Msg("Reservation lifecycle sweep applied")
	}
	return result, nil
}
