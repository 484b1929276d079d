package planner

import (
	"context"
	"fmt"

	"smartfarm/internal/graph"
	"smartfarm/internal/model"
)

// PlanStatus reports whether a plan reached its destination or was cut
// short by occupancy/missing nodes.
type PlanStatus string

const (
	StatusSuccess PlanStatus = "success"
	StatusBlocked PlanStatus = "blocked"
)

// Plan is the result of planning a plain node-to-node path.
type Plan struct {
	Path   string
	Status PlanStatus
	// CutAtNode is set when Status == StatusBlocked and truncation
	// stopped at a real (existing) node rather than running off the
	// known graph entirely.
	CutAtNode int
}

// Planner ties BFS, occupancy truncation and path encoding to a live
// Graph, taking a fresh snapshot for every plan so cutting is always a
// pure function of one point-in-time view.
type Planner struct {
	graph *graph.Graph
}

// New constructs a Planner over the given Graph.
func New(g *graph.Graph) *Planner {
	return &Planner{graph: g}
}

// PlanPath runs bfs + cut_path + format_path for a plain (non
// sub-position) request and returns the encoded response plus its
// outcome.
func (p *Planner) PlanPath(ctx context.Context, mapName string, start, end int, robot string) (Plan, error) {
	snapshot, err := p.graph.GetAllNodes(ctx, mapName)
	if err != nil {
		return Plan{}, fmt.Errorf("snapshotting map %s: %w", mapName, err)
	}

	nodes, dirs := BFS(snapshot, start, end)
	if len(nodes) == 0 {
		return Plan{Path: Sentinel(end, start), Status: StatusBlocked}, nil
	}

	cutNodes, cutDirs := CutPath(nodes, dirs, robot, snapshot)
	if Blocked(cutNodes) {
		return Plan{Path: Sentinel(end, start), Status: StatusBlocked, CutAtNode: lastOf(cutNodes)}, nil
	}

	if len(cutNodes) < len(nodes) {
		cutEnd := cutNodes[len(cutNodes)-1]
		return Plan{Path: FormatPath(cutEnd, cutNodes, cutDirs), Status: StatusBlocked, CutAtNode: cutEnd}, nil
	}

	return Plan{Path: FormatPath(end, nodes, dirs), Status: StatusSuccess}, nil
}

func lastOf(nodes []int) int {
	if len(nodes) == 0 {
		return 0
	}
	return nodes[len(nodes)-1]
}

// PlanSubPath runs the sub-position expansion for a request where either
// endpoint carries a sub-position, or for a return trip, and returns the
// encoded fine-grained response.
func (p *Planner) PlanSubPath(ctx context.Context, mapName string, current model.NodeRef, target model.NodeRef, robotFinalBase int, isReturn bool) (string, error) {
	snapshot, err := p.graph.GetAllNodes(ctx, mapName)
	if err != nil {
		return "", fmt.Errorf("snapshotting map %s: %w", mapName, err)
	}

	startDisplay := current.String()

	if isReturn {
		baseNodes, dirsBase := BFS(snapshot, current.BaseID(), target.BaseID())
		if len(baseNodes) == 0 {
			return Sentinel(target.BaseID(), current.BaseID()), nil
		}
		moves := ReturnHomeMoves(baseNodes, dirsBase, current.Sub)
		return FormatMoves(startDisplay, moves), nil
	}

	if current.BaseID() == target.BaseID() {
		dir := SameNodeDirection(snapshot, current.BaseID(), robotFinalBase)
		moves := []Move{{Node: current.BaseID(), Sub: current.Sub, Dir: dir}}
		return FormatMoves(startDisplay, moves), nil
	}

	baseNodes, dirsBase := BFS(snapshot, current.BaseID(), target.BaseID())
	if len(baseNodes) == 0 {
		return Sentinel(target.BaseID(), current.BaseID()), nil
	}
	moves := ExpandSubPositions(baseNodes, dirsBase, current.Sub, target.Sub)
	return FormatMoves(startDisplay, moves), nil
}
