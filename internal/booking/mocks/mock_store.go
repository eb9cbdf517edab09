package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/models"
)

// MockGroundStore is a mock implementation of booking.GroundStore
type MockGroundStore struct {
	mock.Mock
}

func (m *MockGroundStore) GetGround(ctx context.Context, id int64) (models.Ground, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Ground), args.Error(1)
}

func (m *MockGroundStore) GetCombination(ctx context.Context, id int64) (models.Combination, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Combination), args.Error(1)
}

// MockReservationStore is a mock implementation of booking.ReservationStore
// and booking.ReservationWriter
type MockReservationStore struct {
	mock.Mock
}

func (m *MockReservationStore) FindOccupying(ctx context.Context, groundIDs []int64, interval booking.Interval) ([]models.Reservation, error) {
	args := m.Called(ctx, groundIDs, interval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationStore) CreateReservations(ctx context.Context, reservations []models.Reservation) ([]models.Reservation, error) {
	args := m.Called(ctx, reservations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}
