// Package stats implements the daily operating-time accumulator: a
// per-robot open interval ("current state cursor") that gets closed and
// split across calendar-day buckets as the robot's operation state
// changes or the scheduler ticks past midnight.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartfarm/internal/model"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/store"
)

const dateLayout = "2006-01-02"

// Accumulator owns the current-state cursor and day-bucket keys for
// every robot.
type Accumulator struct {
	store store.Store
}

// New constructs an Accumulator over the given Store.
func New(s store.Store) *Accumulator {
	return &Accumulator{store: s}
}

func cursorKey(mapName, robotID string) string {
	return fmt.Sprintf("robot:current_state:%s:%s", mapName, robotID)
}

func bucketKey(mapName, robotID, date string) string {
	return fmt.Sprintf("robot:daily_stats:%s:%s:%s", mapName, robotID, date)
}

const cursorKeyPrefix = "robot:current_state:"

func cursorIndexPattern() string {
	return cursorKeyPrefix + "*"
}

// parseCursorKey splits "robot:current_state:{map}:{robot}" back into its
// map and robot components: the text up to the first ':' after the prefix
// is the map and the rest is the robot id, so a robot id containing ':'
// survives the split but a map name containing ':' would not.
func parseCursorKey(key string) (mapName, robotID string, ok bool) {
	rest := key[len(cursorKeyPrefix):]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// GetCurrentState reads the open cursor, or a zero cursor if none has
// ever been opened for this robot.
func (a *Accumulator) GetCurrentState(ctx context.Context, mapName, robotID string) (model.CurrentStateCursor, bool) {
	raw := a.store.HGetAll(ctx, cursorKey(mapName, robotID))
	if raw == nil {
		return model.CurrentStateCursor{}, false
	}
	startedAt, _ := time.Parse(time.RFC3339Nano, raw["started_at"])
	nodeCount, _ := strconv.Atoi(raw["node_count"])
	return model.CurrentStateCursor{
		State:     model.RobotOperationState(raw["state"]),
		StartedAt: startedAt,
		NodeCount: nodeCount,
	}, true
}

// StartState closes the currently-open interval (if any), splitting its
// duration across every calendar day it spans, and opens a new interval
// for newState at t. Idempotent only when (state, started_at) matches the
// existing cursor exactly -- callers must guard against no-op churn by
// comparing the current cursor's state to newState before calling.
func (a *Accumulator) StartState(ctx context.Context, mapName, robotID string, newState model.RobotOperationState, t time.Time) {
	cursor, open := a.GetCurrentState(ctx, mapName, robotID)
	if open && cursor.State == newState && cursor.StartedAt.Equal(t) {
		return
	}
	if open && !cursor.StartedAt.IsZero() {
		a.splitAndAddDuration(ctx, mapName, robotID, cursor.State, cursor.StartedAt, t)
	}

	key := cursorKey(mapName, robotID)
	a.store.HSet(ctx, key, "state", string(newState))
	a.store.HSet(ctx, key, "started_at", t.Format(time.RFC3339Nano))
	a.store.HSet(ctx, key, "node_count", strconv.Itoa(cursor.NodeCount))
}

// SweepMidnight scans every open cursor across every map and robot and
// re-opens it at the same state and now -- the daily reset scheduler's
// midnight tick. Effect: closes yesterday's interval into yesterday's
// bucket and opens today's; a scheduler fire that was missed for one or
// more days is recovered lazily by StartState's own multi-day split the
// next time this (or any other transition) runs.
func (a *Accumulator) SweepMidnight(ctx context.Context, now time.Time) (int, error) {
	keys, err := a.store.Scan(ctx, cursorIndexPattern())
	if err != nil {
		return 0, fmt.Errorf("scanning current-state cursors: %w", err)
	}

	swept := 0
	for _, key := range keys {
		mapName, robotID, ok := parseCursorKey(key)
		if !ok {
			continue
		}
		cursor, open := a.GetCurrentState(ctx, mapName, robotID)
		if !open || cursor.State == "" {
			continue
		}
		a.StartState(ctx, mapName, robotID, cursor.State, now)
		swept++
	}
	return swept, nil
}

// splitAndAddDuration accumulates the [start, end) interval into each
// calendar-day bucket it overlaps, splitting exactly at local midnight
// boundaries -- the recovery path for a scheduler tick that was missed
// for one or more days.
func (a *Accumulator) splitAndAddDuration(ctx context.Context, mapName, robotID string, state model.RobotOperationState, start, end time.Time) {
	if state == "" || !end.After(start) {
		return
	}

	cursor := start
	for cursor.Before(end) {
		dayEnd := nextMidnight(cursor)
		segmentEnd := end
		if dayEnd.Before(end) {
			segmentEnd = dayEnd
		}
		a.addSeconds(ctx, mapName, robotID, cursor.Format(dateLayout), state, segmentEnd.Sub(cursor))
		cursor = segmentEnd
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func (a *Accumulator) addSeconds(ctx context.Context, mapName, robotID, date string, state model.RobotOperationState, d time.Duration) {
	if d <= 0 {
		return
	}
	key := bucketKey(mapName, robotID, date)
	existing, _ := a.store.HGet(ctx, key, string(state))
	cur, _ := strconv.ParseFloat(existing, 64) // existing == "" parses to 0, which is what we want
	a.store.HSet(ctx, key, string(state), strconv.FormatFloat(cur+d.Seconds(), 'f', -1, 64))
	a.store.Expire(ctx, key, 30*24*time.Hour)
}

// GetDailyStats reads the day bucket for date and, if the cursor's
// started_at falls on the same date, adds the still-running interval.
func (a *Accumulator) GetDailyStats(ctx context.Context, mapName, robotID, date string, now time.Time) map[model.RobotOperationState]float64 {
	raw := a.store.HGetAll(ctx, bucketKey(mapName, robotID, date))
	result := make(map[model.RobotOperationState]float64, len(raw)+1)
	for state, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			result[model.RobotOperationState(state)] = f
		}
	}

	cursor, open := a.GetCurrentState(ctx, mapName, robotID)
	if open && cursor.State != "" && cursor.StartedAt.Format(dateLayout) == date {
		result[cursor.State] += now.Sub(cursor.StartedAt).Seconds()
	}
	return result
}

// OnStatusChange implements robotstate.StateObserver: it maps the new
// RobotStatus to its daily-stats bucket and opens a new interval, unless
// the status doesn't roll up to one (ERROR) or the bucket hasn't actually
// changed from what's already open -- callers must not call StartState on
// every position update, only on genuine status transitions.
func (a *Accumulator) OnStatusChange(ctx context.Context, mapName, robotID string, change robotstate.RobotStatusChange) {
	newState, ok := model.DeriveOperationState(change.Status, change.BatteryState)
	if !ok {
		return
	}
	cursor, open := a.GetCurrentState(ctx, mapName, robotID)
	if open && cursor.State == newState {
		return
	}
	a.StartState(ctx, mapName, robotID, newState, change.At)
}

// FormattedStat is one row of the human-facing daily stats view.
type FormattedStat struct {
	State      model.RobotOperationState `json:"state"`
	Seconds    float64                   `json:"seconds"`
	Percentage float64                   `json:"percentage"`
}

// GetDailyStatsFormatted returns the same data as GetDailyStats plus each
// bucket's percentage share of the day's total tracked seconds -- a view
// the admin surface exposes directly rather than leaving percentage math
// to dashboard clients.
func (a *Accumulator) GetDailyStatsFormatted(ctx context.Context, mapName, robotID, date string, now time.Time) []FormattedStat {
	raw := a.GetDailyStats(ctx, mapName, robotID, date, now)

	var total float64
	for _, v := range raw {
		total += v
	}

	out := make([]FormattedStat, 0, len(raw))
	for state, seconds := range raw {
		pct := 0.0
		if total > 0 {
			pct = seconds / total * 100
		}
		out = append(out, FormattedStat{State: state, Seconds: seconds, Percentage: pct})
	}
	return out
}
