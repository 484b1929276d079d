// Package operatorbus decodes operator commands received on the shared
// operator channel and turns them into final-node nudges published on
// the server-to-device button topic. The robot itself re-asks the
// device-bus path_plan command once it reacts to a button message --
// there is no ordering guarantee, and none is needed, between the two
// buses.
package operatorbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartfarm/internal/bus"
	"smartfarm/internal/graph"
	"smartfarm/internal/model"
	"smartfarm/internal/robotstate"
	"smartfarm/shared"
)

const (
	cmdStart  = "start"
	cmdNext   = "next"
	cmdReturn = "return"
)

// command is the decoded operator payload. It accepts either "mapName"
// or "farmName" on ingress -- different operator clients in the wild use
// either key -- but only ever publishes "map_name" downstream.
type command struct {
	Type    string
	MapName string
	RobotID string
}

func (c *command) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string `json:"type"`
		MapName  string `json:"mapName"`
		FarmName string `json:"farmName"`
		RobotID  string `json:"robotId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = raw.Type
	c.RobotID = raw.RobotID
	c.MapName = raw.MapName
	if c.MapName == "" {
		c.MapName = raw.FarmName
	}
	return nil
}

// Handler decodes operator-channel messages and dispatches them.
type Handler struct {
	graph   *graph.Graph
	robots  *robotstate.Manager
	publish bus.Publisher
}

// New constructs a Handler over the core components and a Publisher used
// to emit button nudges.
func New(g *graph.Graph, r *robotstate.Manager, publish bus.Publisher) *Handler {
	return &Handler{graph: g, robots: r, publish: publish}
}

// HandleMessage decodes a single operator-channel payload and dispatches
// it. Admission, unknown command, and malformed-payload failures are
// logged and dropped.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		shared.DebugError(fmt.Errorf("%w: operator command: %v", shared.ErrMalformedPayload, err))
		return
	}

	if err := shared.ValidateMapName(cmd.MapName); err != nil {
		shared.DebugPrint("dropping operator command for rejected map %q: %v", cmd.MapName, err)
		return
	}
	mapCfg, ok := shared.GetMapConfig(cmd.MapName)
	if !ok {
		shared.DebugPrint("dropping operator command for unconfigured map %q", cmd.MapName)
		return
	}
	if cmd.RobotID == "" {
		shared.DebugPrint("dropping operator command with empty robotId for map %q", cmd.MapName)
		return
	}

	now := time.Now()
	switch cmd.Type {
	case cmdStart:
		h.handleStart(ctx, cmd.MapName, cmd.RobotID)
	case cmdNext:
		h.handleNext(ctx, cmd.MapName, cmd.RobotID)
	case cmdReturn:
		h.handleReturn(ctx, cmd.MapName, cmd.RobotID, mapCfg, now)
	default:
		shared.DebugPrint("dropping operator command with unknown type %q", cmd.Type)
	}
}

// HandleCompatMessage decodes a payload received on the legacy
// "robot:command" channel and dispatches it only if the payload's map
// has opted in via MapConfig.CompatRobotCommand -- that flag is off by
// default, so an unconfigured or non-opted-in map's messages are
// dropped here before ever reaching HandleMessage.
func (h *Handler) HandleCompatMessage(ctx context.Context, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		shared.DebugError(fmt.Errorf("%w: compat operator command: %v", shared.ErrMalformedPayload, err))
		return
	}
	mapCfg, ok := shared.GetMapConfig(cmd.MapName)
	if !ok || !mapCfg.CompatRobotCommand {
		shared.DebugPrint("dropping robot:command payload for map %q: compat channel not enabled", cmd.MapName)
		return
	}
	h.HandleMessage(ctx, raw)
}

func (h *Handler) handleStart(ctx context.Context, mapName, robotID string) {
	r := h.robots.GetRobot(ctx, mapName, robotID)
	node, ok := h.graph.GetNode(ctx, mapName, r.CurrentNode.BaseID())
	if !ok {
		shared.DebugPrint("start: current node %d not found for %s/%s", r.CurrentNode.BaseID(), mapName, robotID)
		return
	}
	neighbour := node.Neighbour(model.Left)
	if neighbour == 0 {
		shared.DebugPrint("start: node %d has no left neighbour in map %s", node.ID, mapName)
		return
	}
	h.publishButton(ctx, mapName, robotID, neighbour)
}

func (h *Handler) handleNext(ctx context.Context, mapName, robotID string) {
	r := h.robots.GetRobot(ctx, mapName, robotID)
	n := r.CurrentNode.BaseID()
	sub := r.CurrentNode.Sub

	node, ok := h.graph.GetNode(ctx, mapName, n)
	if !ok {
		shared.DebugPrint("next: current node %d not found for %s/%s", n, mapName, robotID)
		return
	}
	left := node.Neighbour(model.Left)

	var next string
	switch {
	case sub == 0:
		if left == 0 {
			shared.DebugPrint("next: node %d has no left neighbour, ignoring at sub 0", n)
			return
		}
		next = fmt.Sprintf("%d-1", n)
	case sub > 0 && sub < 4:
		next = fmt.Sprintf("%d-%d", n, sub+1)
	default: // sub == 4
		if left == 0 {
			shared.DebugPrint("next: node %d has no left neighbour, ignoring at sub 4", n)
			return
		}
		next = fmt.Sprintf("%d-0", left)
	}

	body, _ := json.Marshal(map[string]string{"final_node": next})
	h.publish.Publish(ctx, bus.ServerTopic(mapName, robotID, "button"), body)
}

func (h *Handler) handleReturn(ctx context.Context, mapName, robotID string, mapCfg *shared.MapConfig, now time.Time) {
	chargingRef, err := model.ParseNodeRef(mapCfg.ChargingNode)
	if err != nil {
		shared.DebugError(fmt.Errorf("invalid charging node configured for map %s: %v", mapName, err))
		return
	}

	body, _ := json.Marshal(map[string]string{"final_node": chargingRef.String()})
	h.publish.Publish(ctx, bus.ServerTopic(mapName, robotID, "button"), body)

	// The robot hasn't physically moved yet -- only its destination has
	// changed -- so this updates final_node rather than current_node;
	// derived status recomputes to RETURN since final_node now equals
	// the charging node.
	h.robots.UpdateFinalNode(ctx, mapName, robotID, mapCfg, chargingRef, now)
}

func (h *Handler) publishButton(ctx context.Context, mapName, robotID string, nodeID int) {
	body, _ := json.Marshal(map[string]int{"final_node": nodeID})
	h.publish.Publish(ctx, bus.ServerTopic(mapName, robotID, "button"), body)
}
