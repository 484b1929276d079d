package planner

import "smartfarm/internal/model"

// CutPath truncates a BFS result against an occupancy snapshot. Scanning
// from index 1, the start node is never rejected even if it shows
// self-occupation -- that is deliberate: a robot sitting on a node it
// already holds must be allowed to leave it. The first index whose node
// either does not exist in the snapshot or is occupied by a different
// robot stops the scan; everything before that index is returned
// unchanged, everything from it on is dropped.
//
// CutPath is a pure function of (nodes, dirs, robot, snapshot); calling
// it twice against the same snapshot yields the same result.
func CutPath(nodes []int, dirs []model.Direction, robot string, snapshot map[int]*model.Node) ([]int, []model.Direction) {
	if len(nodes) == 0 {
		return nodes, dirs
	}

	cut := len(nodes)
	for i := 1; i < len(nodes); i++ {
		n, ok := snapshot[nodes[i]]
		if !ok {
			cut = i
			break
		}
		if n.Occupied() && n.OccupiedBy != robot {
			cut = i
			break
		}
	}

	if cut == len(nodes) {
		return nodes, dirs
	}

	outNodes := make([]int, cut)
	copy(outNodes, nodes[:cut])

	dirCount := cut - 1
	if dirCount < 0 {
		dirCount = 0
	}
	outDirs := make([]model.Direction, dirCount)
	copy(outDirs, dirs[:dirCount])

	return outNodes, outDirs
}

// Blocked reports whether a (possibly cut) path means "cannot move": zero
// or one node, i.e. the robot has nowhere to go.
func Blocked(nodes []int) bool {
	return len(nodes) <= 1
}
