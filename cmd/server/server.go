// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/Pitchside/internal/api"
	"github.com/codr1/Pitchside/internal/api/bookings"
	"github.com/codr1/Pitchside/internal/api/grounds"
	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/config"
	"github.com/codr1/Pitchside/internal/db"
	"github.com/codr1/Pitchside/internal/ratelimit"
)

const bookingRateLimitScope = "bookings"

func newServer(cfg *config.Config, database *db.DB, limiter *ratelimit.Limiter, clock clockwork.Clock) (*http.Server, error) {
	validator, err := booking.NewValidator(
		database.Queries,
		database.Queries,
		booking.WithClock(clock),
		booking.WithSeriesBounds(cfg.Booking.SeriesMinOccurrences, cfg.Booking.SeriesMaxOccurrences),
		booking.WithFetchConcurrency(cfg.Booking.FetchConcurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("booking validator: %w", err)
	}
	service, err := booking.NewService(validator, database)
	if err != nil {
		return nil, fmt.Errorf("booking service: %w", err)
	}

	bookings.InitHandlers(service, database, cfg.Booking)
	grounds.InitHandlers(database, clock, cfg.Booking.QueryTimeout)

	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	registerRoutes(router, limiter)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func registerRoutes(mux *http.ServeMux, limiter *ratelimit.Limiter) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Booking routes
	mux.Handle("POST /api/v1/bookings/quote", limiter.Middleware(bookingRateLimitScope, http.HandlerFunc(bookings.HandleBookingQuote)))
	mux.Handle("POST /api/v1/bookings", limiter.Middleware(bookingRateLimitScope, http.HandlerFunc(bookings.HandleBookingCreate)))
	mux.HandleFunc("GET /api/v1/reservations/{id}", bookings.HandleReservationGet)
	mux.HandleFunc("PUT /api/v1/reservations/{id}/status", bookings.HandleReservationStatusUpdate)
	mux.HandleFunc("GET /api/v1/series/{id}", bookings.HandleSeriesGet)

	// Ground routes
	mux.HandleFunc("GET /api/v1/pitches/{id}/grounds", grounds.HandleGroundList)
	mux.HandleFunc("DELETE /api/v1/grounds/{id}", grounds.HandleGroundArchive)
	mux.HandleFunc("GET /api/v1/grounds/{id}/schedule", grounds.HandleGroundSchedule)
	mux.HandleFunc("PUT /api/v1/grounds/{id}/hours/{day_of_week}", grounds.HandleOperatingHoursUpdate)
	mux.HandleFunc("POST /api/v1/grounds/{id}/pricing/{day_of_week}/{hour}/advance", grounds.HandlePricingAdvance)
	mux.HandleFunc("POST /api/v1/combinations", grounds.HandleCombinationCreate)

	// Onboarding draft routes
	mux.HandleFunc("POST /api/v1/ground-drafts", grounds.HandleDraftCreate)
	mux.HandleFunc("PUT /api/v1/ground-drafts/{id}/{step}", grounds.HandleDraftStep)
	mux.HandleFunc("POST /api/v1/ground-drafts/{id}/publish", grounds.HandleDraftPublish)
}
