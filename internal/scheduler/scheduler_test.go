package scheduler

import (
	"context"
	"testing"
	"time"

	"smartfarm/internal/model"
	"smartfarm/internal/stats"
	"smartfarm/internal/store"
)

func TestRunOnceSweepsOpenCursors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	acc := stats.New(s)

	start := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	acc.StartState(ctx, "smartfarm_x", "r1", model.OpWorking, start)
	acc.StartState(ctx, "smartfarm_x", "r2", model.OpCharging, start)

	sch := New(acc)
	swept, err := sch.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if swept != 2 {
		t.Errorf("expected 2 cursors swept, got %d", swept)
	}

	cursor, open := acc.GetCurrentState(ctx, "smartfarm_x", "r1")
	if !open {
		t.Fatal("expected r1's cursor to remain open after sweep")
	}
	if !cursor.StartedAt.After(start) {
		t.Error("expected the sweep to reopen the cursor at a later timestamp")
	}
}

type fakeAccumulator struct {
	swept int
	err   error
}

func (f *fakeAccumulator) SweepMidnight(_ context.Context, _ time.Time) (int, error) {
	return f.swept, f.err
}

func TestRunOnceDelegatesToAccumulator(t *testing.T) {
	fake := &fakeAccumulator{swept: 5}
	sch := New(fake)

	swept, err := sch.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swept != 5 {
		t.Errorf("expected 5, got %d", swept)
	}
}
