// Package devicebus decodes robot-to-server topic events, drives the
// graph/robot-state/stats components, and emits the matching
// server-to-robot responses. One Handler serves every map; admission is
// checked per message since a single wildcard subscription spans every
// map prefix.
package devicebus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"smartfarm/internal/bus"
	"smartfarm/internal/graph"
	"smartfarm/internal/model"
	"smartfarm/internal/planner"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

const (
	cmdPathPlan   = "path_plan"
	cmdBattery    = "battery"
	cmdArrive     = "arrive"
	cmdRemovePath = "remove_path"
	cmdNext       = "next"
	cmdRobotError = "robot_error"
)

// Handler decodes device-bus messages and dispatches them against the
// core components.
type Handler struct {
	graph   *graph.Graph
	planner *planner.Planner
	robots  *robotstate.Manager
	store   store.Store
	publish bus.Publisher
}

// New constructs a Handler over the core components and a Publisher used
// to emit server-to-device responses.
func New(g *graph.Graph, p *planner.Planner, r *robotstate.Manager, s store.Store, publish bus.Publisher) *Handler {
	return &Handler{graph: g, planner: p, robots: r, store: s, publish: publish}
}

// HandleMessage decodes a single "{map}/{robot}/robot/{command}" message
// and dispatches it. mapName admission is checked first; every other
// failure (unknown command, malformed payload, unknown robot) is logged
// and dropped -- one bad message never takes the process down.
func (h *Handler) HandleMessage(ctx context.Context, mapName, robotID, command string, payload []byte) {
	if err := shared.ValidateMapName(mapName); err != nil {
		shared.DebugPrint("dropping device-bus message for rejected map %q: %v", mapName, err)
		return
	}

	mapCfg, ok := shared.GetMapConfig(mapName)
	if !ok {
		shared.DebugPrint("dropping device-bus message for unconfigured map %q", mapName)
		return
	}

	now := time.Now()
	switch command {
	case cmdPathPlan:
		h.handlePathPlan(ctx, mapName, robotID, mapCfg, payload, now)
	case cmdBattery:
		h.handleBattery(ctx, mapName, robotID, mapCfg, payload, now)
	case cmdArrive:
		h.handleArrive(ctx, mapName, robotID, payload, now)
	case cmdRemovePath:
		h.handleRemovePath(ctx, mapName, robotID, payload)
	case cmdNext:
		h.handleNext(ctx, mapName, robotID, payload)
	case cmdRobotError:
		h.handleRobotError(ctx, mapName, robotID, now)
	default:
		shared.DebugPrint("dropping device-bus message with unknown command %q for %s/%s", command, mapName, robotID)
	}
}

type pathPlanPayload struct {
	CurrentNode string `json:"current_node"`
	FinalNode   string `json:"final_node"`
}

func (h *Handler) handlePathPlan(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, raw []byte, now time.Time) {
	var payload pathPlanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: path_plan payload for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	currentRef, err := model.ParseNodeRef(payload.CurrentNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: path_plan current_node for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	chargingRef, err := model.ParseNodeRef(mapCfg.ChargingNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("invalid charging node configured for map %s: %v", mapName, err))
		return
	}

	// An explicit sub-position final_node (typically the charging
	// sub-position a server->robot button nudge just sent) always drives
	// fine-grained expansion, whether or not it happens to target the
	// charging node.
	if strings.Contains(payload.FinalNode, "-") {
		targetRef, err := model.ParseNodeRef(payload.FinalNode)
		if err != nil {
			shared.DebugError(fmt.Errorf("%w: path_plan final_node for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
			return
		}
		isReturn := targetRef.BaseID() == chargingRef.BaseID()
		h.robots.UpdateFinalNode(ctx, mapName, robotID, mapCfg, targetRef, now)

		path, err := h.planner.PlanSubPath(ctx, mapName, currentRef, targetRef, targetRef.BaseID(), isReturn)
		if err != nil {
			shared.DebugError(fmt.Errorf("sub-path planning for %s/%s: %v", mapName, robotID, err))
			return
		}
		h.respondPathPlan(ctx, mapName, robotID, path)
		return
	}

	finalBase, err := strconv.Atoi(payload.FinalNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: path_plan final_node for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	destination := finalBase
	isReturn := finalBase == 0 || finalBase == chargingRef.BaseID()
	persistedFinal := model.NewBaseRef(destination)
	if isReturn {
		destination = chargingRef.BaseID()
		persistedFinal = chargingRef
	}
	h.robots.UpdateFinalNode(ctx, mapName, robotID, mapCfg, persistedFinal, now)

	if currentRef.HasSub() && !isReturn {
		rewrittenTarget := model.NewSubRef(destination, 4)
		path, err := h.planner.PlanSubPath(ctx, mapName, currentRef, rewrittenTarget, destination, false)
		if err != nil {
			shared.DebugError(fmt.Errorf("rewritten sub-path planning for %s/%s: %v", mapName, robotID, err))
			return
		}
		h.respondPathPlan(ctx, mapName, robotID, path)
		return
	}

	plan, err := h.planner.PlanPath(ctx, mapName, currentRef.BaseID(), destination, robotID)
	if err != nil {
		shared.DebugError(fmt.Errorf("path planning for %s/%s: %v", mapName, robotID, err))
		return
	}
	h.respondPathPlanWithStatus(ctx, mapName, robotID, plan.Path, string(plan.Status))
}

func (h *Handler) respondPathPlan(ctx context.Context, mapName, robotID, path string) {
	status := "success"
	if strings.Contains(path, "!/d~") {
		status = "blocked"
	}
	h.respondPathPlanWithStatus(ctx, mapName, robotID, path, status)
}

func (h *Handler) respondPathPlanWithStatus(ctx context.Context, mapName, robotID, path, status string) {
	body, _ := json.Marshal(map[string]string{"path": path})
	h.publish.Publish(ctx, bus.ServerTopic(mapName, robotID, "path_plan"), body)

	key := pathKey(mapName, robotID)
	h.store.HSet(ctx, key, "path", path)
	h.store.HSet(ctx, key, "status", status)
}

func pathKey(mapName, robotID string) string {
	return fmt.Sprintf("robot:path:%s:%s", mapName, robotID)
}

type batteryPayload struct {
	BatteryState         string `json:"battery_state"`
	BatteryChargingState int    `json:"battery_charging_state"`
	RobotID              string `json:"robot_id"`
	MapName              string `json:"map_name"`
}

const (
	batteryMaxVolts = 16.5
	batteryMinVolts = 13.5
)

// voltsToPercent converts a raw voltage reading to a 0..100 battery
// percentage, adjusting the reading down while charging (the charger's
// own voltage otherwise reads high relative to true charge level).
func voltsToPercent(v float64, charging bool) float64 {
	if charging {
		v -= (batteryMaxVolts - v) * 0.07
	}
	raw := (v - batteryMinVolts) / (batteryMaxVolts - batteryMinVolts) * 100
	// Drop float noise before rounding half up: 14.895 V computes to
	// 46.4999... rather than 46.5.
	percent := math.Round(math.Round(raw*1e6) / 1e6)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent
}

func (h *Handler) handleBattery(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, raw []byte, now time.Time) {
	var payload batteryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: battery payload for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	volts, err := strconv.ParseFloat(payload.BatteryState, 64)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: battery_state %q for %s/%s: %v", shared.ErrMalformedPayload, payload.BatteryState, mapName, robotID, err))
		return
	}

	percent := voltsToPercent(volts, payload.BatteryChargingState == 1)
	h.robots.UpdateBattery(ctx, mapName, robotID, mapCfg, percent, payload.BatteryChargingState, now)
}

type arrivePayload struct {
	CurrentNode string `json:"current_node"`
}

func (h *Handler) handleArrive(ctx context.Context, mapName, robotID string, raw []byte, now time.Time) {
	var payload arrivePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: arrive payload for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	node, err := model.ParseNodeRef(payload.CurrentNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: arrive current_node for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	h.robots.MarkArrived(ctx, mapName, robotID, node, now)

	marker, _ := json.Marshal(model.ArriveMarker{RobotID: robotID, Node: payload.CurrentNode, At: now})
	h.store.Set(ctx, arriveKey(mapName, robotID), string(marker), shared.ArriveMarkerTTL)

	h.graph.ReleaseAll(ctx, mapName, robotID)

	body, _ := json.Marshal(map[string]string{"yes_or_no": "yes"})
	h.publish.Publish(ctx, bus.ServerTopic(mapName, robotID, "arrive"), body)
}

func arriveKey(mapName, robotID string) string {
	return fmt.Sprintf("robot:arrive:%s:%s", mapName, robotID)
}

type removePathPayload struct {
	CurrentNode string `json:"current_node"`
}

func (h *Handler) handleRemovePath(ctx context.Context, mapName, robotID string, raw []byte) {
	var payload removePathPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: remove_path payload for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	node, err := model.ParseNodeRef(payload.CurrentNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: remove_path current_node for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	h.graph.Release(ctx, mapName, node.BaseID(), robotID)

	event, _ := json.Marshal(map[string]string{"event": "REMOVE", "map_name": mapName, "robot_id": robotID, "node": payload.CurrentNode})
	h.store.Publish(ctx, shared.RobotEventChannel, string(event))
}

type nextPayload struct {
	CurrentNode string `json:"current_node"`
	SubPosition *int   `json:"sub_position,omitempty"`
	Direction   string `json:"direction"`
}

func (h *Handler) handleNext(ctx context.Context, mapName, robotID string, raw []byte) {
	var payload nextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		shared.DebugError(fmt.Errorf("%w: next payload for %s/%s: %v", shared.ErrMalformedPayload, mapName, robotID, err))
		return
	}

	curNode, err := strconv.Atoi(payload.CurrentNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("%w: next current_node %q for %s/%s: %v", shared.ErrMalformedPayload, payload.CurrentNode, mapName, robotID, err))
		return
	}

	dir := model.Direction(payload.Direction)
	curSub := 0
	if payload.SubPosition != nil {
		curSub = *payload.SubPosition
	}

	var nextNode, nextSub int
	if payload.SubPosition == nil || curSub == 4 {
		node, ok := h.graph.GetNode(ctx, mapName, curNode)
		if !ok {
			shared.DebugPrint("next: node %d not found in map %s", curNode, mapName)
			return
		}
		neighbour := node.Neighbour(dir)
		if neighbour == 0 {
			shared.DebugPrint("next: node %d has no neighbour in direction %s", curNode, dir)
			return
		}
		nextNode, nextSub = neighbour, 0
	} else {
		nextNode, nextSub = curNode, curSub+1
	}

	path := planner.NextStepPath(nextNode, nextSub, dir, curNode, curSub)
	h.respondPathPlan(ctx, mapName, robotID, path)
}

func (h *Handler) handleRobotError(ctx context.Context, mapName, robotID string, now time.Time) {
	h.robots.MarkError(ctx, mapName, robotID, now)

	event, _ := json.Marshal(map[string]string{"event": "ERROR", "map_name": mapName, "robot_id": robotID})
	h.store.Publish(ctx, shared.RobotEventChannel, string(event))
}
