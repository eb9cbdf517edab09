// internal/db/grounds.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/schedule"
)

// Queries runs single statements against a connection or a transaction.
type Queries struct {
	db  sqlx.ExtContext
	now func() time.Time
}

func NewQueries(db sqlx.ExtContext) *Queries {
	return &Queries{db: db, now: time.Now}
}

func (q *Queries) rebind(query string) string {
	return q.db.Rebind(query)
}

// in expands slice arguments for IN (?) and rebinds for the driver.
func (q *Queries) in(query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.rebind(expanded), expandedArgs, nil
}

type groundRow struct {
	ID               int64  `db:"id"`
	PitchID          int64  `db:"pitch_id"`
	Name             string `db:"name"`
	Status           string `db:"status"`
	BasePrice        int64  `db:"base_price"`
	DepositFee       int64  `db:"deposit_fee"`
	PeakSurcharge    int64  `db:"peak_surcharge"`
	DiscountAmount   int64  `db:"discount_amount"`
	PaymentMethods   string `db:"payment_methods"`
	NoticeHours      int64  `db:"cancellation_notice_hours"`
	RefundPercentage int64  `db:"cancellation_refund_percentage"`
}

type groundHoursRow struct {
	DayOfWeek     int64 `db:"day_of_week"`
	OperatingMask int64 `db:"operating_mask"`
	PeakMask      int64 `db:"peak_mask"`
	DiscountMask  int64 `db:"discount_mask"`
}

const groundColumns = `id, pitch_id, name, status, base_price, deposit_fee, peak_surcharge,
	discount_amount, payment_methods, cancellation_notice_hours, cancellation_refund_percentage`

func (r groundRow) toModel() models.Ground {
	g := models.Ground{
		ID:             r.ID,
		PitchID:        r.PitchID,
		Name:           r.Name,
		Status:         models.GroundStatus(r.Status),
		BasePrice:      r.BasePrice,
		DepositFee:     r.DepositFee,
		PeakSurcharge:  r.PeakSurcharge,
		DiscountAmount: r.DiscountAmount,
		CancellationPolicy: models.CancellationPolicy{
			NoticeHours:      r.NoticeHours,
			RefundPercentage: r.RefundPercentage,
		},
	}
	for _, method := range strings.Split(r.PaymentMethods, ",") {
		if method = strings.TrimSpace(method); method != "" {
			g.PaymentMethods = append(g.PaymentMethods, models.PaymentMethod(method))
		}
	}
	return g
}

func joinPaymentMethods(methods []models.PaymentMethod) string {
	values := make([]string, len(methods))
	for i, method := range methods {
		values[i] = string(method)
	}
	return strings.Join(values, ",")
}

func (q *Queries) CreatePitch(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("pitch name is required")
	}
	var id int64
	err := q.db.QueryRowxContext(ctx,
		q.rebind(`INSERT INTO pitches (name, created_at) VALUES (?, ?) RETURNING id`),
		name, q.now().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert pitch: %w", err)
	}
	return id, nil
}

// InsertGround writes the ground row only. Use DB.CreateGround to store the
// weekly masks with it.
func (q *Queries) InsertGround(ctx context.Context, g models.Ground) (int64, error) {
	now := q.now().Unix()
	var id int64
	err := q.db.QueryRowxContext(ctx, q.rebind(`
		INSERT INTO grounds (
			pitch_id, name, status, base_price, deposit_fee, peak_surcharge, discount_amount,
			payment_methods, cancellation_notice_hours, cancellation_refund_percentage,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		g.PitchID, g.Name, string(g.Status), g.BasePrice, g.DepositFee, g.PeakSurcharge, g.DiscountAmount,
		joinPaymentMethods(g.PaymentMethods), g.CancellationPolicy.NoticeHours, g.CancellationPolicy.RefundPercentage,
		now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ground: %w", err)
	}
	return id, nil
}

// SaveGroundHours upserts one weekday of a ground's masks. The masks must
// already satisfy Ground.CheckMasks.
func (q *Queries) SaveGroundHours(ctx context.Context, groundID int64, day time.Weekday, operating, peak, discount schedule.DayMask) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO ground_hours (ground_id, day_of_week, operating_mask, peak_mask, discount_mask)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ground_id, day_of_week) DO UPDATE SET
			operating_mask = excluded.operating_mask,
			peak_mask = excluded.peak_mask,
			discount_mask = excluded.discount_mask`),
		groundID, int64(day), int64(operating), int64(peak), int64(discount),
	)
	if err != nil {
		return fmt.Errorf("save hours for ground %d day %d: %w", groundID, day, err)
	}
	return nil
}

// SaveGroundDay stores g's masks for day after checking the ground's mask
// invariants.
func (q *Queries) SaveGroundDay(ctx context.Context, g models.Ground, day time.Weekday) error {
	if err := g.CheckMasks(); err != nil {
		return err
	}
	if err := q.SaveGroundHours(ctx, g.ID, day, g.OperatingHours.Day(day), g.PeakHours.Day(day), g.DiscountHours.Day(day)); err != nil {
		return err
	}
	return q.touchGround(ctx, g.ID)
}

func (q *Queries) touchGround(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`UPDATE grounds SET updated_at = ? WHERE id = ?`), q.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touch ground %d: %w", id, err)
	}
	return nil
}

// GetGround returns the ground with its weekly masks, archived or not.
func (q *Queries) GetGround(ctx context.Context, id int64) (models.Ground, error) {
	var row groundRow
	err := sqlx.GetContext(ctx, q.db, &row, q.rebind(`SELECT `+groundColumns+` FROM grounds WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Ground{}, fmt.Errorf("ground %d: %w", id, models.ErrNotFound)
		}
		return models.Ground{}, fmt.Errorf("get ground %d: %w", id, err)
	}

	var hours []groundHoursRow
	err = sqlx.SelectContext(ctx, q.db, &hours, q.rebind(`
		SELECT day_of_week, operating_mask, peak_mask, discount_mask
		FROM ground_hours
		WHERE ground_id = ?
		ORDER BY day_of_week`), id)
	if err != nil {
		return models.Ground{}, fmt.Errorf("get hours for ground %d: %w", id, err)
	}

	g := row.toModel()
	for _, h := range hours {
		day, err := schedule.ParseWeekday(h.DayOfWeek)
		if err != nil {
			return models.Ground{}, bookingerr.InvariantViolationError{
				Subject: fmt.Sprintf("ground %d", id),
				Detail:  err.Error(),
			}
		}
		g.OperatingHours[day] = schedule.DayMask(h.OperatingMask)
		g.PeakHours[day] = schedule.DayMask(h.PeakMask)
		g.DiscountHours[day] = schedule.DayMask(h.DiscountMask)
	}
	return g, nil
}

func (q *Queries) ListGrounds(ctx context.Context, pitchID int64) ([]models.Ground, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q.db, &ids, q.rebind(`SELECT id FROM grounds WHERE pitch_id = ? ORDER BY id`), pitchID)
	if err != nil {
		return nil, fmt.Errorf("list grounds for pitch %d: %w", pitchID, err)
	}
	grounds := make([]models.Ground, 0, len(ids))
	for _, id := range ids {
		g, err := q.GetGround(ctx, id)
		if err != nil {
			return nil, err
		}
		grounds = append(grounds, g)
	}
	return grounds, nil
}

func (q *Queries) ArchiveGround(ctx context.Context, id int64) error {
	result, err := q.db.ExecContext(ctx,
		q.rebind(`UPDATE grounds SET status = ?, updated_at = ? WHERE id = ?`),
		string(models.GroundStatusArchived), q.now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("archive ground %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ground %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (q *Queries) InsertCombination(ctx context.Context, c models.Combination) (int64, error) {
	var id int64
	err := q.db.QueryRowxContext(ctx,
		q.rebind(`INSERT INTO combinations (pitch_id, name, created_at) VALUES (?, ?, ?) RETURNING id`),
		c.PitchID, strings.TrimSpace(c.Name), q.now().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert combination: %w", err)
	}
	for _, groundID := range c.GroundIDs {
		_, err := q.db.ExecContext(ctx,
			q.rebind(`INSERT INTO combination_grounds (combination_id, ground_id) VALUES (?, ?)`),
			id, groundID,
		)
		if err != nil {
			return 0, fmt.Errorf("insert combination ground %d: %w", groundID, err)
		}
	}
	return id, nil
}

func (q *Queries) GetCombination(ctx context.Context, id int64) (models.Combination, error) {
	var row struct {
		ID      int64  `db:"id"`
		PitchID int64  `db:"pitch_id"`
		Name    string `db:"name"`
	}
	err := sqlx.GetContext(ctx, q.db, &row, q.rebind(`SELECT id, pitch_id, name FROM combinations WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Combination{}, fmt.Errorf("combination %d: %w", id, models.ErrNotFound)
		}
		return models.Combination{}, fmt.Errorf("get combination %d: %w", id, err)
	}

	var groundIDs []int64
	err = sqlx.SelectContext(ctx, q.db, &groundIDs, q.rebind(`
		SELECT ground_id FROM combination_grounds
		WHERE combination_id = ?
		ORDER BY ground_id`), id)
	if err != nil {
		return models.Combination{}, fmt.Errorf("get grounds for combination %d: %w", id, err)
	}
	return models.Combination{
		ID:        row.ID,
		PitchID:   row.PitchID,
		Name:      row.Name,
		GroundIDs: groundIDs,
	}, nil
}

// CreateGround stores g and its seven weekday masks in one transaction.
func (db *DB) CreateGround(ctx context.Context, g models.Ground) (models.Ground, error) {
	var created models.Ground
	err := db.RunInTx(ctx, func(tx *DB) error {
		var err error
		created, err = tx.createGround(ctx, g)
		return err
	})
	if err != nil {
		return models.Ground{}, err
	}
	return created, nil
}

// createGround must run on a transaction bound DB.
func (db *DB) createGround(ctx context.Context, g models.Ground) (models.Ground, error) {
	if g.Status == "" {
		g.Status = models.GroundStatusActive
	}
	if err := g.Validate(); err != nil {
		return models.Ground{}, err
	}
	id, err := db.Queries.InsertGround(ctx, g)
	if err != nil {
		return models.Ground{}, err
	}
	g.ID = id
	for day := time.Sunday; day <= time.Saturday; day++ {
		if err := db.Queries.SaveGroundHours(ctx, id, day, g.OperatingHours[day], g.PeakHours[day], g.DiscountHours[day]); err != nil {
			return models.Ground{}, err
		}
	}
	return g, nil
}

// CreateCombination stores c after checking that it joins at least two
// active grounds of its own pitch.
func (db *DB) CreateCombination(ctx context.Context, c models.Combination) (models.Combination, error) {
	c.GroundIDs = models.NormalizeGroundIDs(c.GroundIDs)
	if len(c.GroundIDs) < 2 {
		return models.Combination{}, bookingerr.InvariantViolationError{
			Subject: "combination " + strings.TrimSpace(c.Name),
			Detail:  "needs at least 2 distinct grounds",
		}
	}
	if err := c.Validate(); err != nil {
		return models.Combination{}, err
	}

	err := db.RunInTx(ctx, func(tx *DB) error {
		for _, groundID := range c.GroundIDs {
			g, err := tx.Queries.GetGround(ctx, groundID)
			if err != nil {
				return err
			}
			if !g.Bookable() {
				return fmt.Errorf("ground %d is %s: %w", groundID, g.Status, models.ErrNotFound)
			}
			if g.PitchID != c.PitchID {
				return bookingerr.InvariantViolationError{
					Subject: "combination " + strings.TrimSpace(c.Name),
					Detail:  fmt.Sprintf("ground %d belongs to pitch %d, not %d", groundID, g.PitchID, c.PitchID),
				}
			}
		}
		id, err := tx.Queries.InsertCombination(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		return nil
	})
	if err != nil {
		return models.Combination{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	return c, nil
}
