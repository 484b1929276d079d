// Package robotstate implements the per-robot live record: position,
// destination, battery, derived status, and the cumulative sub-step
// counter. Every mutator writes through to the store, recomputes derived
// status, notifies the stats accumulator of any state transition, and
// publishes a snapshot on the robot's change channel.
package robotstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartfarm/internal/model"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

const (
	fieldCurrentNode   = "current_node"
	fieldFinalNode     = "final_node"
	fieldBatteryState  = "battery_state"
	fieldChargingState = "charging_state"
	fieldStatus        = "status"
	fieldNodeCount     = "node_count"
)

// StateObserver is notified after every write to a robot's record with
// its current status, so the daily-stats accumulator can close the
// previous interval and open a new one when the status bucket changed,
// under the robot's serial queue.
type StateObserver interface {
	OnStatusChange(ctx context.Context, mapName, robotID string, newStatus RobotStatusChange)
}

// RobotStatusChange carries the information the stats accumulator needs
// to open a new interval.
type RobotStatusChange struct {
	Status       model.RobotStatus
	BatteryState float64
	At           time.Time
}

// Manager owns robot records for every map it serves.
type Manager struct {
	store    store.Store
	observer StateObserver
}

// New constructs a Manager. observer may be nil if stats accumulation is
// wired in separately (e.g. during tests).
func New(s store.Store, observer StateObserver) *Manager {
	return &Manager{store: s, observer: observer}
}

func robotKey(mapName, robotID string) string {
	return fmt.Sprintf("robot:%s:%s", mapName, robotID)
}

func robotIndexPattern(mapName string) string {
	return fmt.Sprintf("robot:%s:*", mapName)
}

func parseRobotIDFromKey(mapName, key string) (string, bool) {
	prefix := fmt.Sprintf("robot:%s:", mapName)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}

// ListRobots returns every robot currently on file for a map, for the
// admin surface and the debug terminal. Order is unspecified.
func (m *Manager) ListRobots(ctx context.Context, mapName string) ([]*model.Robot, error) {
	keys, err := m.store.Scan(ctx, robotIndexPattern(mapName))
	if err != nil {
		return nil, fmt.Errorf("scanning robots for map %s: %w", mapName, err)
	}

	robots := make([]*model.Robot, 0, len(keys))
	for _, key := range keys {
		robotID, ok := parseRobotIDFromKey(mapName, key)
		if !ok {
			continue
		}
		robots = append(robots, m.GetRobot(ctx, mapName, robotID))
	}
	return robots, nil
}

func changeChannel(mapName, robotID string) string {
	return fmt.Sprintf("%s/robot/%s/state", mapName, robotID)
}

// GetRobot returns the current snapshot of a robot's record. Missing
// fields default to their zero value -- readers must tolerate partial
// snapshots since writers only ever touch the fields they're updating.
func (m *Manager) GetRobot(ctx context.Context, mapName, robotID string) *model.Robot {
	raw := m.store.HGetAll(ctx, robotKey(mapName, robotID))
	r := &model.Robot{MapName: mapName, RobotID: robotID}
	if raw == nil {
		return r
	}
	if cur, err := model.ParseNodeRef(raw[fieldCurrentNode]); err == nil {
		r.CurrentNode = cur
	}
	if raw[fieldFinalNode] != "" {
		if final, err := model.ParseNodeRef(raw[fieldFinalNode]); err == nil {
			r.FinalNode = &final
		}
	}
	if v, err := strconv.ParseFloat(raw[fieldBatteryState], 64); err == nil {
		r.BatteryState = v
	}
	if v, err := strconv.Atoi(raw[fieldChargingState]); err == nil {
		r.ChargingState = v
	}
	r.Status = model.RobotStatus(raw[fieldStatus])
	if v, err := strconv.Atoi(raw[fieldNodeCount]); err == nil {
		r.NodeCount = v
	}
	return r
}

// UpdatePosition writes a new current_node, recomputes node_count and
// derived status, notifies the stats observer, and publishes the updated
// snapshot.
func (m *Manager) UpdatePosition(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, newNode model.NodeRef, now time.Time) *model.Robot {
	r := m.GetRobot(ctx, mapName, robotID)
	hadPrior := m.store.HExists(ctx, robotKey(mapName, robotID), fieldCurrentNode)

	if hadPrior {
		threshold := shared.DefaultNodeCountGlitchThreshold
		if mapCfg != nil && mapCfg.NodeCountGlitchThreshold > 0 {
			threshold = mapCfg.NodeCountGlitchThreshold
		}
		delta := movementDelta(r.CurrentNode, newNode)
		if delta > threshold {
			shared.DebugError(fmt.Errorf("discarding glitch movement delta %d for %s/%s", delta, mapName, robotID))
		} else {
			r.NodeCount += delta
		}
	}
	r.CurrentNode = newNode

	r.Status = deriveStatus(mapCfg, newNode, r.FinalNode, r.ChargingState)
	m.writeAndPublish(ctx, mapName, robotID, r, now)
	return r
}

// UpdateFinalNode persists a new destination without touching position.
func (m *Manager) UpdateFinalNode(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, final model.NodeRef, now time.Time) *model.Robot {
	r := m.GetRobot(ctx, mapName, robotID)
	r.FinalNode = &final
	r.Status = deriveStatus(mapCfg, r.CurrentNode, r.FinalNode, r.ChargingState)
	m.writeAndPublish(ctx, mapName, robotID, r, now)
	return r
}

// UpdateBattery writes battery_state/charging_state and, if the robot is
// sitting at the charging node, recomputes derived status by the same
// charging/waiting rule position updates use.
func (m *Manager) UpdateBattery(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, batteryPercent float64, chargingState int, now time.Time) *model.Robot {
	r := m.GetRobot(ctx, mapName, robotID)
	r.BatteryState = batteryPercent
	r.ChargingState = chargingState
	chargingNode := "1-0"
	if mapCfg != nil && mapCfg.ChargingNode != "" {
		chargingNode = mapCfg.ChargingNode
	}
	if r.CurrentNode.String() == chargingNode {
		r.Status = deriveStatus(mapCfg, r.CurrentNode, r.FinalNode, r.ChargingState)
	}
	m.writeAndPublish(ctx, mapName, robotID, r, now)
	return r
}

// MarkArrived sets status to DONE; only the arrive event may do this.
func (m *Manager) MarkArrived(ctx context.Context, mapName, robotID string, arrivedAt model.NodeRef, now time.Time) *model.Robot {
	r := m.GetRobot(ctx, mapName, robotID)
	r.CurrentNode = arrivedAt
	r.Status = model.StatusDone
	m.writeAndPublish(ctx, mapName, robotID, r, now)
	return r
}

// MarkError sets status to ERROR; only the robot_error event may do this.
func (m *Manager) MarkError(ctx context.Context, mapName, robotID string, now time.Time) *model.Robot {
	r := m.GetRobot(ctx, mapName, robotID)
	r.Status = model.StatusError
	m.writeAndPublish(ctx, mapName, robotID, r, now)
	return r
}

func (m *Manager) writeAndPublish(ctx context.Context, mapName, robotID string, r *model.Robot, now time.Time) {
	r.UpdatedAt = now
	key := robotKey(mapName, robotID)

	// A robot with no position yet (zero NodeRef; node ids start at 1)
	// leaves current_node unset, so its first UpdatePosition still starts
	// node_count at 0.
	if r.CurrentNode.Node != 0 || r.CurrentNode.HasSub() {
		m.store.HSet(ctx, key, fieldCurrentNode, r.CurrentNode.String())
	}
	if r.FinalNode != nil {
		m.store.HSet(ctx, key, fieldFinalNode, r.FinalNode.String())
	}
	m.store.HSet(ctx, key, fieldBatteryState, strconv.FormatFloat(r.BatteryState, 'f', -1, 64))
	m.store.HSet(ctx, key, fieldChargingState, strconv.Itoa(r.ChargingState))
	m.store.HSet(ctx, key, fieldStatus, string(r.Status))
	m.store.HSet(ctx, key, fieldNodeCount, strconv.Itoa(r.NodeCount))

	if m.observer != nil {
		m.observer.OnStatusChange(ctx, mapName, robotID, RobotStatusChange{
			Status:       r.Status,
			BatteryState: r.BatteryState,
			At:           now,
		})
	}

	snapshot, err := json.Marshal(robotSnapshot{
		RobotID:       robotID,
		CurrentNode:   r.CurrentNode.String(),
		FinalNode:     finalNodeDisplay(r.FinalNode),
		BatteryState:  r.BatteryState,
		ChargingState: r.ChargingState,
		Status:        r.Status,
		NodeCount:     r.NodeCount,
		UpdatedAt:     now,
	})
	if err != nil {
		shared.DebugError(fmt.Errorf("marshalling robot snapshot for %s/%s: %w", mapName, robotID, err))
		return
	}
	m.store.Publish(ctx, changeChannel(mapName, robotID), string(snapshot))
}

type robotSnapshot struct {
	RobotID       string            `json:"robot_id"`
	CurrentNode   string            `json:"current_node"`
	FinalNode     string            `json:"final_node,omitempty"`
	BatteryState  float64           `json:"battery_state"`
	ChargingState int               `json:"charging_state"`
	Status        model.RobotStatus `json:"status"`
	NodeCount     int               `json:"node_count"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func finalNodeDisplay(final *model.NodeRef) string {
	if final == nil {
		return ""
	}
	return final.String()
}

// deriveStatus implements the derived-status rules: at the charging
// node, CHARGING or WAITING depending on charging_state; elsewhere,
// RETURN if final_node is the charging node, else WORKING. DONE and
// ERROR are set only by their own dedicated mutators, never recomputed
// here.
func deriveStatus(mapCfg *shared.MapConfig, current model.NodeRef, final *model.NodeRef, chargingState int) model.RobotStatus {
	chargingNode := "1-0"
	if mapCfg != nil && mapCfg.ChargingNode != "" {
		chargingNode = mapCfg.ChargingNode
	}

	if current.String() == chargingNode {
		if chargingState == 1 {
			return model.StatusCharging
		}
		return model.StatusWaiting
	}

	if final != nil && final.String() == chargingNode {
		return model.StatusReturn
	}
	return model.StatusWorking
}

// movementDelta computes the node-count increment for a position update:
// same base node -> |delta sub|; different base node with both at
// sub-position 0 -> 5 (a full skipped segment, the return-path
// convention); any other base-node change -> 1.
func movementDelta(prev, next model.NodeRef) int {
	if prev.SameBase(next) {
		d := next.Sub - prev.Sub
		if d < 0 {
			d = -d
		}
		return d
	}
	if prev.Sub == 0 && next.Sub == 0 {
		return 5
	}
	return 1
}
