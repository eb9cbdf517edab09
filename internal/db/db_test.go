package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/Pitchside/internal/booking"
	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/onboarding"
	"github.com/codr1/Pitchside/internal/schedule"
	"github.com/codr1/Pitchside/internal/testutil"
)

var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func slot(start, end int) booking.Interval {
	return booking.Interval{
		Start: monday.Add(time.Duration(start) * time.Hour),
		End:   monday.Add(time.Duration(end) * time.Hour),
	}
}

func pending(g models.Ground, interval booking.Interval) models.Reservation {
	return models.Reservation{
		Target:      models.Target{Type: models.TargetGround, ID: g.ID},
		GroundIDs:   []int64{g.ID},
		StartTime:   interval.Start,
		EndTime:     interval.End,
		Status:      models.StatusPending,
		ContactName: "Sam",
		Price:       g.BasePrice,
		Deposit:     g.DepositFee,
	}
}

func TestGroundRoundTrip(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	grounds := testutil.SeedGrounds(t, database, 1)

	got, err := database.Queries.GetGround(ctx, grounds[0].ID)
	if err != nil {
		t.Fatalf("GetGround: %v", err)
	}
	if got.Name != "Ground 1" || got.BasePrice != 5000 || got.Status != models.GroundStatusActive {
		t.Fatalf("unexpected ground %+v", got)
	}
	if got.OperatingHours != grounds[0].OperatingHours || got.PeakHours != grounds[0].PeakHours {
		t.Fatalf("masks did not round trip: %v", got.OperatingHours)
	}
	if len(got.PaymentMethods) != 2 || got.CancellationPolicy.RefundPercentage != 50 {
		t.Fatalf("unexpected payment/policy: %+v", got)
	}

	if _, err := database.Queries.GetGround(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing ground err = %v", err)
	}
}

func TestSaveGroundDay(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	g.OperatingHours[time.Tuesday] = schedule.RangesToMask([]schedule.TimeRange{{Start: 10, End: 12}})
	if err := database.Queries.SaveGroundDay(ctx, g, time.Tuesday); err != nil {
		t.Fatalf("SaveGroundDay: %v", err)
	}
	got, err := database.Queries.GetGround(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGround: %v", err)
	}
	if got.OperatingHours[time.Tuesday].String() != "10:00-12:00" {
		t.Fatalf("tuesday = %s", got.OperatingHours[time.Tuesday])
	}

	g.PeakHours[time.Tuesday] = schedule.DayMask(0).Set(20)
	if err := database.Queries.SaveGroundDay(ctx, g, time.Tuesday); !bookingerr.IsInvariantViolation(err) {
		t.Fatalf("peak outside hours err = %v", err)
	}
}

func TestArchiveGround(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	if err := database.Queries.ArchiveGround(ctx, g.ID); err != nil {
		t.Fatalf("ArchiveGround: %v", err)
	}
	got, err := database.Queries.GetGround(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGround: %v", err)
	}
	if got.Bookable() {
		t.Fatalf("archived ground should not be bookable")
	}
	if err := database.Queries.ArchiveGround(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("archive missing err = %v", err)
	}
}

func TestCreateCombination(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	grounds := testutil.SeedGrounds(t, database, 2)

	c, err := database.CreateCombination(ctx, models.Combination{
		PitchID:   grounds[0].PitchID,
		Name:      " Full pitch ",
		GroundIDs: []int64{grounds[1].ID, grounds[0].ID, grounds[1].ID},
	})
	if err != nil {
		t.Fatalf("CreateCombination: %v", err)
	}
	got, err := database.Queries.GetCombination(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCombination: %v", err)
	}
	if got.Name != "Full pitch" || len(got.GroundIDs) != 2 || got.GroundIDs[0] != grounds[0].ID {
		t.Fatalf("unexpected combination %+v", got)
	}

	_, err = database.CreateCombination(ctx, models.Combination{
		PitchID:   grounds[0].PitchID,
		Name:      "Solo",
		GroundIDs: []int64{grounds[0].ID, grounds[0].ID},
	})
	if !bookingerr.IsInvariantViolation(err) {
		t.Fatalf("single ground combination err = %v", err)
	}

	otherPitch := testutil.SeedPitch(t, database, "Hilltop")
	other, err := database.CreateGround(ctx, testutil.OpenGround(otherPitch, "Hill 1", 3000))
	if err != nil {
		t.Fatalf("CreateGround: %v", err)
	}
	_, err = database.CreateCombination(ctx, models.Combination{
		PitchID:   grounds[0].PitchID,
		Name:      "Across",
		GroundIDs: []int64{grounds[0].ID, other.ID},
	})
	if !bookingerr.IsInvariantViolation(err) {
		t.Fatalf("cross pitch combination err = %v", err)
	}
}

func TestCreateReservationsAndFindOccupying(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	created, err := database.CreateReservations(ctx, []models.Reservation{pending(g, slot(14, 16))})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	if len(created) != 1 || created[0].ID == 0 {
		t.Fatalf("unexpected created %+v", created)
	}

	tests := []struct {
		name     string
		interval booking.Interval
		want     int
	}{
		{"overlapping", slot(15, 17), 1},
		{"touching after", slot(16, 18), 0},
		{"touching before", slot(12, 14), 0},
		{"containing", slot(10, 20), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := database.Queries.FindOccupying(ctx, []int64{g.ID}, tt.interval)
			if err != nil {
				t.Fatalf("FindOccupying: %v", err)
			}
			if len(found) != tt.want {
				t.Fatalf("found %d reservations, want %d", len(found), tt.want)
			}
			if tt.want > 0 && (found[0].GroundIDs[0] != g.ID || !found[0].StartTime.Equal(slot(14, 16).Start)) {
				t.Fatalf("unexpected reservation %+v", found[0])
			}
		})
	}
}

func TestOverlapGuardRejectsWholeBatch(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	if _, err := database.CreateReservations(ctx, []models.Reservation{pending(g, slot(14, 16))}); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	batch := []models.Reservation{pending(g, slot(9, 10)), pending(g, slot(15, 17))}
	_, err := database.CreateReservations(ctx, batch)
	var overlapErr bookingerr.OverlapConflictError
	if !errors.As(err, &overlapErr) {
		t.Fatalf("err = %v, want OverlapConflictError", err)
	}
	if len(overlapErr.GroundIDs) != 1 || overlapErr.GroundIDs[0] != g.ID {
		t.Fatalf("conflict grounds = %v", overlapErr.GroundIDs)
	}

	found, err := database.Queries.FindOccupying(ctx, []int64{g.ID}, slot(9, 10))
	if err != nil {
		t.Fatalf("FindOccupying: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("partial batch was stored: %+v", found)
	}
}

func TestCombinationReservationHoldsEveryGround(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	grounds := testutil.SeedGrounds(t, database, 2)

	r := pending(grounds[0], slot(9, 11))
	r.Target = models.Target{Type: models.TargetCombination, ID: 1}
	r.GroundIDs = []int64{grounds[0].ID, grounds[1].ID}
	if _, err := database.CreateReservations(ctx, []models.Reservation{r}); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	found, err := database.Queries.FindOccupying(ctx, []int64{grounds[1].ID}, slot(10, 11))
	if err != nil {
		t.Fatalf("FindOccupying: %v", err)
	}
	if len(found) != 1 || len(found[0].GroundIDs) != 2 {
		t.Fatalf("unexpected reservations %+v", found)
	}

	_, err = database.CreateReservations(ctx, []models.Reservation{pending(grounds[1], slot(10, 12))})
	var overlapErr bookingerr.OverlapConflictError
	if !errors.As(err, &overlapErr) {
		t.Fatalf("single ground booking over combination err = %v", err)
	}
}

func TestUpdateReservationStatusReleasesSlot(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	created, err := database.CreateReservations(ctx, []models.Reservation{pending(g, slot(14, 16))})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	id := created[0].ID

	if _, err := database.UpdateReservationStatus(ctx, id, models.StatusCompleted); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("PENDING -> COMPLETED err = %v", err)
	}

	updated, err := database.UpdateReservationStatus(ctx, id, models.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateReservationStatus: %v", err)
	}
	if updated.Status != models.StatusCancelled {
		t.Fatalf("status = %s", updated.Status)
	}

	found, err := database.Queries.FindOccupying(ctx, []int64{g.ID}, slot(14, 16))
	if err != nil {
		t.Fatalf("FindOccupying: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("cancelled reservation still occupies: %+v", found)
	}
	if _, err := database.CreateReservations(ctx, []models.Reservation{pending(g, slot(14, 16))}); err != nil {
		t.Fatalf("rebooking released slot: %v", err)
	}

	if _, err := database.UpdateReservationStatus(ctx, id, models.StatusPending); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("terminal status left: err = %v", err)
	}
	if _, err := database.UpdateReservationStatus(ctx, 999, models.StatusCancelled); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing reservation err = %v", err)
	}
}

func TestSweepReservations(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	created, err := database.CreateReservations(ctx, []models.Reservation{
		pending(g, slot(8, 9)),
		pending(g, slot(10, 11)),
		pending(g, slot(12, 14)),
		pending(g, slot(18, 19)),
	})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	for _, i := range []int{1, 2} {
		for _, status := range []models.ReservationStatus{models.StatusApproved, models.StatusConfirmed} {
			if _, err := database.UpdateReservationStatus(ctx, created[i].ID, status); err != nil {
				t.Fatalf("advance %d to %s: %v", i, status, err)
			}
		}
	}

	result, err := database.SweepReservations(ctx, monday.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("SweepReservations: %v", err)
	}
	if result.Expired != 1 || result.Completed != 1 || result.Started != 1 {
		t.Fatalf("sweep result = %+v", result)
	}

	want := []models.ReservationStatus{
		models.StatusExpired,
		models.StatusCompleted,
		models.StatusInProgress,
		models.StatusPending,
	}
	for i, r := range created {
		got, err := database.Queries.GetReservation(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetReservation: %v", err)
		}
		if got.Status != want[i] {
			t.Fatalf("reservation %d status = %s, want %s", i, got.Status, want[i])
		}
	}

	again, err := database.SweepReservations(ctx, monday.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("SweepReservations: %v", err)
	}
	if again.Total() != 0 {
		t.Fatalf("second sweep moved %+v", again)
	}
}

func TestSeriesListing(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	g := testutil.SeedGrounds(t, database, 1)[0]

	intervals, err := booking.ExpandWeekly(slot(18, 19), 3, booking.DefaultSeriesMin, booking.DefaultSeriesMax)
	if err != nil {
		t.Fatalf("ExpandWeekly: %v", err)
	}
	batch := make([]models.Reservation, len(intervals))
	for i, interval := range intervals {
		batch[i] = pending(g, interval)
		batch[i].SeriesID = "series-1"
	}
	if _, err := database.CreateReservations(ctx, batch); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	series, err := database.Queries.ListSeries(ctx, "series-1")
	if err != nil {
		t.Fatalf("ListSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("series length = %d", len(series))
	}
}

func TestDraftPublish(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	pitchID := testutil.SeedPitch(t, database, "Riverside")
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	d, err := onboarding.New("draft-1", pitchID, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := database.Queries.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if _, err := database.PublishDraft(ctx, d.ID); !errors.Is(err, onboarding.ErrStepOutOfOrder) {
		t.Fatalf("publishing unreviewed draft err = %v", err)
	}

	d, err = onboarding.ApplyDetails(d, onboarding.Details{Name: "Court 9", PaymentMethods: []string{"cash"}}, now)
	if err != nil {
		t.Fatalf("ApplyDetails: %v", err)
	}
	d, err = onboarding.ApplyHours(d, onboarding.Hours{Days: map[int][]schedule.TimeRange{1: {{Start: 8, End: 20}}}}, now)
	if err != nil {
		t.Fatalf("ApplyHours: %v", err)
	}
	d, err = onboarding.ApplyPricing(d, onboarding.Pricing{BasePrice: 2500}, now)
	if err != nil {
		t.Fatalf("ApplyPricing: %v", err)
	}
	d, err = onboarding.Review(d, now)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if err := database.Queries.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	loaded, err := database.Queries.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if loaded.NextStep() != "" {
		t.Fatalf("loaded draft next step = %q", loaded.NextStep())
	}

	g, err := database.PublishDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("PublishDraft: %v", err)
	}
	if g.ID == 0 || g.Name != "Court 9" {
		t.Fatalf("unexpected ground %+v", g)
	}
	if _, err := database.Queries.GetDraft(ctx, d.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("draft should be removed after publish, err = %v", err)
	}
}
