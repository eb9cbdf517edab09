package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/Pitchside/internal/db"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/schedule"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedPitch inserts a pitch and returns its id.
func SeedPitch(t *testing.T, database *db.DB, name string) int64 {
	t.Helper()

	id, err := database.Queries.CreatePitch(context.Background(), name)
	if err != nil {
		t.Fatalf("seed pitch: %v", err)
	}
	return id
}

// OpenGround returns an unsaved ground open every day from 06:00 to 24:00
// priced at basePrice, with Monday 20:00-22:00 as peak and Monday
// 06:00-08:00 as discount.
func OpenGround(pitchID int64, name string, basePrice int64) models.Ground {
	g := models.Ground{
		PitchID:        pitchID,
		Name:           name,
		Status:         models.GroundStatusActive,
		BasePrice:      basePrice,
		DepositFee:     basePrice / 10,
		PeakSurcharge:  basePrice / 2,
		DiscountAmount: basePrice / 5,
		PaymentMethods: []models.PaymentMethod{models.PaymentCash, models.PaymentCard},
		CancellationPolicy: models.CancellationPolicy{
			NoticeHours:      24,
			RefundPercentage: 50,
		},
	}
	open := schedule.RangesToMask([]schedule.TimeRange{{Start: 6, End: 24}})
	for day := time.Sunday; day <= time.Saturday; day++ {
		g.OperatingHours[day] = open
	}
	g.PeakHours[time.Monday] = schedule.RangesToMask([]schedule.TimeRange{{Start: 20, End: 22}})
	g.DiscountHours[time.Monday] = schedule.RangesToMask([]schedule.TimeRange{{Start: 6, End: 8}})
	return g
}

// SeedGrounds creates a pitch holding count grounds built by OpenGround.
func SeedGrounds(t *testing.T, database *db.DB, count int) []models.Ground {
	t.Helper()

	pitchID := SeedPitch(t, database, "Riverside")
	grounds := make([]models.Ground, 0, count)
	for i := 1; i <= count; i++ {
		g, err := database.CreateGround(context.Background(), OpenGround(pitchID, fmt.Sprintf("Ground %d", i), 5000))
		if err != nil {
			t.Fatalf("seed ground %d: %v", i, err)
		}
		grounds = append(grounds, g)
	}
	return grounds
}
