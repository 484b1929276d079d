package stats

import (
	"context"
	"testing"
	"time"

	"smartfarm/internal/model"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/store"
)

func TestStartStateAccumulatesWithinOneDay(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	day := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, day)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpIdle, day.Add(2*time.Hour))

	got := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-30", day.Add(2*time.Hour))
	if got[model.OpWorking] != 7200 {
		t.Errorf("expected 7200s of working, got %v", got[model.OpWorking])
	}
}

func TestStartStateSplitsAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	start := time.Date(2026, 7, 30, 22, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)

	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, start)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpIdle, end)

	day30 := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-30", end)
	day31 := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-31", end)
	day01 := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-08-01", end)

	if day30[model.OpWorking] != 2*3600 {
		t.Errorf("expected 2h on 2026-07-30, got %v", day30[model.OpWorking])
	}
	if day31[model.OpWorking] != 24*3600 {
		t.Errorf("expected a full 24h on 2026-07-31, got %v", day31[model.OpWorking])
	}
	if day01[model.OpWorking] != 2*3600 {
		t.Errorf("expected 2h on 2026-08-01, got %v", day01[model.OpWorking])
	}
}

func TestGetDailyStatsIncludesStillRunningInterval(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	start := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Minute)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, start)

	got := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-30", now)
	if got[model.OpWorking] != 5400 {
		t.Errorf("expected the open interval's 5400s to be counted, got %v", got[model.OpWorking])
	}
}

func TestGetDailyStatsOmitsOpenIntervalFromADifferentDay(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	start := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	now := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, start)

	got := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-31", now)
	if got[model.OpWorking] != 0 {
		t.Errorf("expected 0s for a date that doesn't match the open cursor, got %v", got[model.OpWorking])
	}
}

func TestGetDailyStatsFormattedComputesPercentages(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	day := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, day)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpIdle, day.Add(3*time.Hour))
	a.StartState(ctx, "smartfarm_x", "r1", model.OpCharging, day.Add(4*time.Hour))

	rows := a.GetDailyStatsFormatted(ctx, "smartfarm_x", "r1", "2026-07-30", day.Add(4*time.Hour))
	var total float64
	for _, r := range rows {
		total += r.Percentage
	}
	if total < 99.99 || total > 100.01 {
		t.Errorf("expected percentages to sum to ~100, got %v", total)
	}
}

func TestOnStatusChangeIgnoresErrorStatus(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	a.OnStatusChange(ctx, "smartfarm_x", "r1", robotstate.RobotStatusChange{
		Status: model.StatusError,
		At:     time.Now(),
	})

	if _, open := a.GetCurrentState(ctx, "smartfarm_x", "r1"); open {
		t.Error("expected ERROR status to never open a stats interval")
	}
}

func TestOnStatusChangeSkipsNoopTransition(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	t0 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	a.OnStatusChange(ctx, "smartfarm_x", "r1", robotstate.RobotStatusChange{
		Status: model.StatusWorking, At: t0,
	})
	cursorBefore, _ := a.GetCurrentState(ctx, "smartfarm_x", "r1")

	a.OnStatusChange(ctx, "smartfarm_x", "r1", robotstate.RobotStatusChange{
		Status: model.StatusReturn, At: t0.Add(time.Minute),
	})
	cursorAfter, _ := a.GetCurrentState(ctx, "smartfarm_x", "r1")

	if !cursorBefore.StartedAt.Equal(cursorAfter.StartedAt) {
		t.Error("expected WORKING->RETURN (both op state 'working') to not reopen the interval")
	}
}

func TestSweepMidnightClosesYesterdayAndReopensToday(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	start := time.Date(2026, 7, 30, 22, 0, 0, 0, time.UTC)
	a.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, start)

	midnight := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	swept, err := a.SweepMidnight(ctx, midnight)
	if err != nil {
		t.Fatalf("SweepMidnight: %v", err)
	}
	if swept != 1 {
		t.Errorf("expected 1 cursor swept, got %d", swept)
	}

	day30 := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-30", midnight)
	if day30[model.OpWorking] != 2*3600 {
		t.Errorf("expected 2h closed into 2026-07-30, got %v", day30[model.OpWorking])
	}

	cursor, open := a.GetCurrentState(ctx, "smartfarm_x", "r1")
	if !open || !cursor.StartedAt.Equal(midnight) {
		t.Error("expected a fresh cursor opened at midnight")
	}
}

func TestSweepMidnightIgnoresRobotsWithNoOpenCursor(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	swept, err := a.SweepMidnight(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepMidnight: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected 0 cursors swept on an empty store, got %d", swept)
	}
}

func TestOnStatusChangeOpensNewIntervalOnRealTransition(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemoryStore())

	t0 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	a.OnStatusChange(ctx, "smartfarm_x", "r1", robotstate.RobotStatusChange{
		Status: model.StatusWorking, At: t0,
	})
	a.OnStatusChange(ctx, "smartfarm_x", "r1", robotstate.RobotStatusChange{
		Status: model.StatusCharging, At: t0.Add(time.Hour),
	})

	got := a.GetDailyStats(ctx, "smartfarm_x", "r1", "2026-07-30", t0.Add(time.Hour))
	if got[model.OpWorking] != 3600 {
		t.Errorf("expected 3600s of working closed out, got %v", got[model.OpWorking])
	}
}
