// internal/api/grounds/handlers.go
package grounds

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/api/apiutil"
	"github.com/codr1/Pitchside/internal/bookingerr"
	appdb "github.com/codr1/Pitchside/internal/db"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/pricing"
	"github.com/codr1/Pitchside/internal/schedule"
)

const (
	defaultQueryTimeout = 5 * time.Second
	dayOfWeekParam      = "day_of_week"
	hourParam           = "hour"
)

var (
	store        *appdb.DB
	clock        clockwork.Clock = clockwork.NewRealClock()
	queryTimeout                 = defaultQueryTimeout
	handlersOnce sync.Once
)

type hourRow struct {
	pricing.HourPrice
	Display string `json:"display"`
}

type scheduleResponse struct {
	GroundID       int64     `json:"groundId"`
	DayOfWeek      int       `json:"dayOfWeek"`
	OperatingHours string    `json:"operatingHours"`
	Hours          []hourRow `json:"hours"`
}

type hoursRequest struct {
	Ranges []schedule.TimeRange `json:"ranges"`
}

type combinationRequest struct {
	PitchID   int64   `json:"pitchId"`
	Name      string  `json:"name"`
	GroundIDs []int64 `json:"groundIds"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, c clockwork.Clock, timeout time.Duration) {
	if database == nil {
		return
	}
	handlersOnce.Do(func() {
		setHandlers(database, c, timeout)
	})
}

func setHandlers(database *appdb.DB, c clockwork.Clock, timeout time.Duration) {
	store = database
	if c != nil {
		clock = c
	}
	if timeout > 0 {
		queryTimeout = timeout
	}
}

// GET /api/v1/grounds/{id}/schedule?day_of_week=N
func HandleGroundSchedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	groundID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	day, err := dayOfWeekFromQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	ground, err := loadBookableGround(ctx, database, groundID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeSchedule(w, r, ground, day)
}

// GET /api/v1/pitches/{id}/grounds
func HandleGroundList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	pitchID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	list, err := database.Queries.ListGrounds(ctx, pitchID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, list); err != nil {
		logger.Error().Err(err).Int64("pitch_id", pitchID).Msg("Failed to write ground list")
	}
}

// DELETE /api/v1/grounds/{id}
func HandleGroundArchive(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	groundID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if err := database.Queries.ArchiveGround(ctx, groundID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	logger.Info().Int64("ground_id", groundID).Msg("Ground archived")
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/grounds/{id}/hours/{day_of_week}
func HandleOperatingHoursUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	groundID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	day, err := dayOfWeekFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req hoursRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var updated models.Ground
	err = database.RunInTx(ctx, func(tx *appdb.DB) error {
		ground, err := loadBookableGround(ctx, tx, groundID)
		if err != nil {
			return err
		}
		if err := pricing.ReplaceOperatingHours(&ground, day, req.Ranges); err != nil {
			return err
		}
		if err := tx.Queries.SaveGroundDay(ctx, ground, day); err != nil {
			return err
		}
		updated = ground
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().
		Int64("ground_id", groundID).
		Int("day_of_week", int(day)).
		Str("operating_hours", updated.OperatingHours.Day(day).String()).
		Msg("Operating hours updated")
	writeSchedule(w, r, updated, day)
}

// POST /api/v1/grounds/{id}/pricing/{day_of_week}/{hour}/advance
func HandlePricingAdvance(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	groundID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	day, err := dayOfWeekFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	hour, err := apiutil.PathInt(r, hourParam, 0, schedule.HoursPerDay-1)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var row pricing.HourPrice
	err = database.RunInTx(ctx, func(tx *appdb.DB) error {
		ground, err := loadBookableGround(ctx, tx, groundID)
		if err != nil {
			return err
		}
		state, err := pricing.AdvancePricingState(&ground, day, hour)
		if err != nil {
			return err
		}
		if err := tx.Queries.SaveGroundDay(ctx, ground, day); err != nil {
			return err
		}
		row = pricing.HourPrice{Hour: hour, State: state, Price: pricing.PriceOf(ground, state)}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().
		Int64("ground_id", groundID).
		Int("day_of_week", int(day)).
		Int("hour", hour).
		Str("state", string(row.State)).
		Msg("Pricing state advanced")
	if err := apiutil.WriteJSON(w, http.StatusOK, hourRow{HourPrice: row, Display: apiutil.FormatPriceCents(row.Price)}); err != nil {
		logger.Error().Err(err).Msg("Failed to write pricing response")
	}
}

// POST /api/v1/combinations
func HandleCombinationCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req combinationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}

	combination := models.Combination{
		PitchID:   req.PitchID,
		Name:      req.Name,
		GroundIDs: req.GroundIDs,
	}
	if err := combination.Validate(); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	combination, err := database.CreateCombination(ctx, combination)
	if err != nil {
		apiutil.WriteError(w, r, unprocessable(err))
		return
	}

	logger.Info().
		Int64("combination_id", combination.ID).
		Ints64("ground_ids", combination.GroundIDs).
		Msg("Combination created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, combination); err != nil {
		logger.Error().Err(err).Msg("Failed to write combination response")
	}
}

// loadBookableGround treats archived grounds as missing.
func loadBookableGround(ctx context.Context, database *appdb.DB, id int64) (models.Ground, error) {
	ground, err := database.Queries.GetGround(ctx, id)
	if err != nil {
		return models.Ground{}, err
	}
	if !ground.Bookable() {
		return models.Ground{}, fmt.Errorf("ground %d is %s: %w", id, ground.Status, models.ErrNotFound)
	}
	return ground, nil
}

func writeSchedule(w http.ResponseWriter, r *http.Request, ground models.Ground, day time.Weekday) {
	logger := log.Ctx(r.Context())

	prices, err := pricing.DaySchedule(ground, day)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	resp := scheduleResponse{
		GroundID:       ground.ID,
		DayOfWeek:      int(day),
		OperatingHours: ground.OperatingHours.Day(day).String(),
		Hours:          make([]hourRow, 0, len(prices)),
	}
	for _, p := range prices {
		resp.Hours = append(resp.Hours, hourRow{HourPrice: p, Display: apiutil.FormatPriceCents(p.Price)})
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("ground_id", ground.ID).Msg("Failed to write schedule response")
	}
}

// unprocessable reports invariant violations caused by the request itself
// as 422 rather than as server faults.
func unprocessable(err error) error {
	if bookingerr.IsInvariantViolation(err) {
		return apiutil.HandlerError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
	}
	return err
}

func dayOfWeekFromQuery(r *http.Request) (time.Weekday, error) {
	raw, err := apiutil.ParseNonNegativeInt64Field(r.URL.Query().Get(dayOfWeekParam), dayOfWeekParam)
	if err != nil {
		return 0, err
	}
	day, err := schedule.ParseWeekday(raw)
	if err != nil {
		return 0, apiutil.FieldError{Field: dayOfWeekParam, Reason: "must be between 0 and 6"}
	}
	return day, nil
}

func dayOfWeekFromPath(r *http.Request) (time.Weekday, error) {
	day, err := apiutil.PathInt(r, dayOfWeekParam, int(time.Sunday), int(time.Saturday))
	if err != nil {
		return 0, err
	}
	return time.Weekday(day), nil
}

func loadDB() *appdb.DB {
	return store
}
