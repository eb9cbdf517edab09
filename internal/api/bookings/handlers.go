// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/api/apiutil"
	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/config"
	appdb "github.com/codr1/Pitchside/internal/db"
	"github.com/codr1/Pitchside/internal/models"
)

const defaultQueryTimeout = 5 * time.Second

var (
	service      *booking.Service
	store        *appdb.DB
	queryTimeout = defaultQueryTimeout
	phoneRegion  = booking.DefaultPhoneRegion
	handlersOnce sync.Once
)

type intervalRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type bookingRequest struct {
	Target       models.Target     `json:"target"`
	Intervals    []intervalRequest `json:"intervals"`
	Recurring    bool              `json:"recurring"`
	RepeatWeeks  int               `json:"repeatWeeks,omitempty"`
	ContactName  string            `json:"contactName,omitempty"`
	ContactPhone string            `json:"contactPhone,omitempty"`
}

type bookingResponse struct {
	booking.Result
	Reservations []models.Reservation `json:"reservations,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service, database *appdb.DB, cfg config.BookingConfig) {
	if svc == nil || database == nil {
		return
	}
	handlersOnce.Do(func() {
		setHandlers(svc, database, cfg)
	})
}

func setHandlers(svc *booking.Service, database *appdb.DB, cfg config.BookingConfig) {
	service = svc
	store = database
	if cfg.QueryTimeout > 0 {
		queryTimeout = cfg.QueryTimeout
	}
	if cfg.PhoneRegion != "" {
		phoneRegion = cfg.PhoneRegion
	}
}

// POST /api/v1/bookings/quote
func HandleBookingQuote(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	svc := loadService()
	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body bookingRequest
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}
	req, err := body.toRequest(svc.Validator())
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := svc.Quote(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, bookingResponse{Result: result})
}

// POST /api/v1/bookings
func HandleBookingCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	svc := loadService()
	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var body bookingRequest
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}
	req, err := body.toRequest(svc.Validator())
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	contact := booking.Contact{Name: strings.TrimSpace(body.ContactName)}
	if contact.Name == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "contactName", Reason: "is required"})
		return
	}
	contact.Phone, err = booking.NormalizePhone(body.ContactPhone, phoneRegion)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "contactPhone", Reason: "must be a valid phone number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, created, err := svc.Book(ctx, req, contact)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusCreated, bookingResponse{Result: result, Reservations: created})
}

// GET /api/v1/reservations/{id}
func HandleReservationGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	reservation, err := database.Queries.GetReservation(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, reservation); err != nil {
		logger.Error().Err(err).Int64("reservation_id", id).Msg("Failed to write reservation response")
	}
}

// GET /api/v1/series/{id}
func HandleSeriesGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	seriesID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "id", Reason: "must be a series id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	series, err := database.Queries.ListSeries(ctx, seriesID.String())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if len(series) == 0 {
		apiutil.WriteError(w, r, models.ErrNotFound)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, series); err != nil {
		logger.Error().Err(err).Str("series_id", seriesID.String()).Msg("Failed to write series response")
	}
}

// PUT /api/v1/reservations/{id}/status
func HandleReservationStatusUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var body statusRequest
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}
	next, err := models.ParseReservationStatus(body.Status)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "status", Reason: "is not a reservation status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	updated, err := database.UpdateReservationStatus(ctx, id, next)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	logger.Info().
		Int64("reservation_id", id).
		Str("status", string(updated.Status)).
		Msg("Reservation status updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("reservation_id", id).Msg("Failed to write reservation response")
	}
}

// toRequest parses the body. With RepeatWeeks set the single interval given
// is expanded into a weekly series.
func (b bookingRequest) toRequest(v *booking.Validator) (booking.Request, error) {
	if err := b.Target.Validate(); err != nil {
		return booking.Request{}, apiutil.FieldError{Field: "target", Reason: err.Error()}
	}
	if len(b.Intervals) == 0 {
		return booking.Request{}, bookingerr.InvalidIntervalError{Field: "intervals", Reason: "must include at least one interval"}
	}

	intervals := make([]booking.Interval, 0, len(b.Intervals))
	for _, raw := range b.Intervals {
		start, err := apiutil.ParseTime(raw.Start, "start")
		if err != nil {
			return booking.Request{}, err
		}
		end, err := apiutil.ParseTime(raw.End, "end")
		if err != nil {
			return booking.Request{}, err
		}
		intervals = append(intervals, booking.Interval{Start: start, End: end})
	}

	req := booking.Request{Target: b.Target, Intervals: intervals, Recurring: b.Recurring}
	if b.RepeatWeeks == 0 {
		return req, nil
	}
	if len(intervals) != 1 {
		return booking.Request{}, apiutil.FieldError{Field: "repeatWeeks", Reason: "requires exactly one interval"}
	}
	minCount, maxCount := v.SeriesBounds()
	expanded, err := booking.ExpandWeekly(intervals[0], b.RepeatWeeks, minCount, maxCount)
	if err != nil {
		return booking.Request{}, err
	}
	req.Intervals = expanded
	req.Recurring = true
	return req, nil
}

// writeResult reports accepted bookings with okStatus and rejections with
// the status of their reason.
func writeResult(w http.ResponseWriter, r *http.Request, okStatus int, resp bookingResponse) {
	status := okStatus
	if !resp.OK() {
		status = apiutil.ReasonStatus(resp.Rejected.Reason)
	}
	if err := apiutil.WriteJSON(w, status, resp); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write booking response")
	}
}

// writeRequestError reports an empty request or a series that cannot be
// expanded as a booking rejected on receipt.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	if rejected, ok := booking.Reject(booking.StageReceived, err); ok {
		writeResult(w, r, http.StatusOK, bookingResponse{Result: rejected})
		return
	}
	apiutil.WriteError(w, r, err)
}

func loadService() *booking.Service {
	return service
}

func loadDB() *appdb.DB {
	return store
}
