// Package planner implements breadth-first shortest path over the node
// graph, occupancy-aware truncation, and the path string encoders (both
// the plain node-to-node form and the fine-grained sub-position form used
// near a robot's current cell).
package planner

import (
	"smartfarm/internal/model"
)

// neighbourOrder is the fixed deterministic tie-break order the source
// uses for its grid search; reproducing it matters because it decides
// which of several equal-length paths a robot is handed.
var neighbourOrder = model.DirectionOrder

// BFS runs breadth-first shortest path over snapshot, a point-in-time
// view of a map's nodes (so the search is a pure function of the
// snapshot it is given -- callers take a fresh GetAllNodes snapshot
// before planning and before cutting, never re-reading mid-search).
//
// Returns (nodes, dirs) with len(dirs) == len(nodes)-1, dirs[i] being the
// direction taken from nodes[i] to nodes[i+1]. Returns (nil, nil) if
// start or end is not a known node, or no path exists. BFS(a, a) returns
// ([a], nil).
func BFS(snapshot map[int]*model.Node, start, end int) ([]int, []model.Direction) {
	if _, ok := snapshot[start]; !ok {
		return nil, nil
	}
	if _, ok := snapshot[end]; !ok {
		return nil, nil
	}
	if start == end {
		return []int{start}, nil
	}

	type step struct {
		node int
		dir  model.Direction
	}
	cameFrom := map[int]step{start: {}}
	queue := []int{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node := snapshot[cur]
		if node == nil {
			continue
		}
		for _, dir := range neighbourOrder {
			next := node.Neighbour(dir)
			if next == 0 {
				continue
			}
			if _, visited := cameFrom[next]; visited {
				continue
			}
			cameFrom[next] = step{node: cur, dir: dir}
			if next == end {
				queue = nil
				break
			}
			queue = append(queue, next)
		}
	}

	if _, reached := cameFrom[end]; !reached {
		return nil, nil
	}

	var nodes []int
	var dirs []model.Direction
	for n := end; ; {
		nodes = append([]int{n}, nodes...)
		s := cameFrom[n]
		if n == start {
			break
		}
		dirs = append([]model.Direction{s.dir}, dirs...)
		n = s.node
	}
	return nodes, dirs
}
