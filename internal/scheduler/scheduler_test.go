package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/Pitchside/internal/db"
)

type fakeSweeper struct {
	calls  []time.Time
	result db.SweepResult
	err    error
}

func (f *fakeSweeper) SweepReservations(_ context.Context, now time.Time) (db.SweepResult, error) {
	f.calls = append(f.calls, now)
	return f.result, f.err
}

func TestAddJobValidation(t *testing.T) {
	svc, err := New(clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Stop()

	if _, err := svc.AddJob("", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("empty name err = %v", err)
	}
	if _, err := svc.AddJob("job", " ", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("empty cron err = %v", err)
	}
	if _, err := svc.AddJob("job", "not a cron", func() {}); err == nil {
		t.Fatal("expected invalid cron expression to fail")
	}
	if _, err := svc.AddJob("job", "*/5 * * * *", func() {}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
}

func TestNilServiceIsNotInitialized(t *testing.T) {
	var svc *Service
	if _, err := svc.AddJob("job", "* * * * *", func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("AddJob on nil service err = %v", err)
	}
	if err := svc.Stop(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Stop on nil service err = %v", err)
	}
	if err := svc.RegisterLifecycleJob(&fakeSweeper{}, "* * * * *"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("RegisterLifecycleJob on nil service err = %v", err)
	}
}

func TestLifecycleTaskUsesClock(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	sweeper := &fakeSweeper{result: db.SweepResult{Expired: 2}}

	task := lifecycleTask(sweeper, clock)
	task()
	clock.Advance(5 * time.Minute)
	task()

	if len(sweeper.calls) != 2 {
		t.Fatalf("sweeper called %d times, want 2", len(sweeper.calls))
	}
	if !sweeper.calls[0].Equal(now) || !sweeper.calls[1].Equal(now.Add(5*time.Minute)) {
		t.Fatalf("sweep times = %v", sweeper.calls)
	}
}

func TestLifecycleTaskSurvivesErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("database is locked")}
	lifecycleTask(sweeper, clockwork.NewFakeClock())()
	if len(sweeper.calls) != 1 {
		t.Fatalf("sweeper called %d times", len(sweeper.calls))
	}
}

func TestRegisterLifecycleJob(t *testing.T) {
	svc, err := New(clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Stop()

	if err := svc.RegisterLifecycleJob(nil, "*/5 * * * *"); err == nil {
		t.Fatal("expected nil sweeper to be rejected")
	}
	if err := svc.RegisterLifecycleJob(&fakeSweeper{}, "*/5 * * * *"); err != nil {
		t.Fatalf("RegisterLifecycleJob: %v", err)
	}
}
