package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
)

const DefaultPhoneRegion = "US"

// ReservationWriter persists accepted bookings. It must enforce its own
// exclusion guard and report violations as bookingerr.OverlapConflictError.
type ReservationWriter interface {
	CreateReservations(ctx context.Context, reservations []models.Reservation) ([]models.Reservation, error)
}

type Contact struct {
	Name  string
	Phone string
}

// Service validates a booking and then records it.
type Service struct {
	validator *Validator
	writer    ReservationWriter
}

func NewService(validator *Validator, writer ReservationWriter) (*Service, error) {
	if validator == nil || writer == nil {
		return nil, errors.New("booking service requires a validator and a reservation writer")
	}
	return &Service{validator: validator, writer: writer}, nil
}

func (s *Service) Validator() *Validator {
	return s.validator
}

// Quote validates and prices without persisting anything.
func (s *Service) Quote(ctx context.Context, req Request) (Result, error) {
	return s.validator.ValidateAndPrice(ctx, req)
}

// Book validates req and stores one PENDING reservation per interval in a
// single write. A store-level overlap comes back as the same OVERLAP
// rejection the validator would have produced.
func (s *Service) Book(ctx context.Context, req Request, contact Contact) (Result, []models.Reservation, error) {
	result, err := s.validator.ValidateAndPrice(ctx, req)
	if err != nil || !result.OK() {
		return result, nil, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "booking_service").
		Str("target", req.Target.String()).
		Logger()

	accepted := result.Accepted
	var seriesID string
	if req.isSeries() {
		seriesID = uuid.NewString()
	}

	pending := make([]models.Reservation, 0, len(accepted.Intervals))
	for _, interval := range accepted.Intervals {
		pending = append(pending, models.Reservation{
			Target:       accepted.Target,
			GroundIDs:    accepted.GroundIDs,
			SeriesID:     seriesID,
			StartTime:    interval.Start,
			EndTime:      interval.End,
			Status:       models.StatusPending,
			ContactName:  strings.TrimSpace(contact.Name),
			ContactPhone: contact.Phone,
			Price:        interval.Price,
			Deposit:      interval.Deposit,
		})
	}

	created, err := s.writer.CreateReservations(ctx, pending)
	if err != nil {
		var overlapErr bookingerr.OverlapConflictError
		if errors.As(err, &overlapErr) {
			logger.Warn().Err(err).Msg("Reservation store rejected overlapping booking")
			rejected, _ := Reject(StageCheckedOverlap, overlapErr)
			return rejected, nil, nil
		}
		return Result{}, nil, fmt.Errorf("create reservations: %w", err)
	}

	logger.Info().
		Str("series_id", seriesID).
		Str("contact_phone", MaskPhone(contact.Phone)).
		Int("reservation_count", len(created)).
		Msg("Booking recorded")
	return result, created, nil
}

// NormalizePhone parses raw in defaultRegion and formats it as E.164.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if defaultRegion == "" {
		defaultRegion = DefaultPhoneRegion
	}
	number, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("phone number %q is not valid", raw)
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// MaskPhone keeps the last four digits of a phone number for logging.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) >= 4 {
		return "***" + phone[len(phone)-4:]
	}
	return "***"
}
