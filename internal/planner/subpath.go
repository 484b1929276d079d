package planner

import (
	"fmt"

	"smartfarm/internal/model"
)

// Move is one step of a fine-grained sub-position sequence: arriving at
// (Node, Sub) via Dir.
type Move struct {
	Node int
	Sub  int
	Dir  model.Direction
}

func (m Move) display() string {
	return fmt.Sprintf("%d-%d", m.Node, m.Sub)
}

// SameNodeDirection implements step 1 of the sub-position algorithm: the
// robot's current and target node coincide, so there is no path to walk,
// only a facing direction to report. robotFinal is the robot's stored
// final_node base id, or -1 if unset.
func SameNodeDirection(snapshot map[int]*model.Node, current, robotFinal int) model.Direction {
	if robotFinal >= 0 && robotFinal != current {
		if _, dirs := BFS(snapshot, current, robotFinal); len(dirs) > 0 {
			return dirs[0]
		}
	}
	if n, ok := snapshot[current]; ok {
		for _, dir := range neighbourOrder {
			if n.Neighbour(dir) != 0 {
				return dir
			}
		}
	}
	return model.Left
}

// ExpandSubPositions implements step 2 of the sub-position algorithm: run
// BFS on base node ids, then expand each visited node into its five
// sub-positions. The first node expands from startSub to 4; intermediate
// nodes expand 0 to 4; the last node expands 0 to endSub.
//
// dirPerNode[i] is the direction used for sub-position transitions while
// on baseNodes[i] -- the direction of the outgoing edge toward
// baseNodes[i+1] for every node except the last, which has none and
// reuses the direction it was entered by.
func ExpandSubPositions(baseNodes []int, dirsBase []model.Direction, startSub, endSub int) []Move {
	if len(baseNodes) == 0 {
		return nil
	}

	dirPerNode := make([]model.Direction, len(baseNodes))
	for i := range baseNodes {
		switch {
		case i < len(dirsBase):
			dirPerNode[i] = dirsBase[i]
		case len(dirsBase) > 0:
			dirPerNode[i] = dirsBase[len(dirsBase)-1]
		}
	}

	var moves []Move
	last := len(baseNodes) - 1

	for s := startSub + 1; s <= 4; s++ {
		moves = append(moves, Move{Node: baseNodes[0], Sub: s, Dir: dirPerNode[0]})
	}

	for i := 1; i < last; i++ {
		for s := 0; s <= 4; s++ {
			moves = append(moves, Move{Node: baseNodes[i], Sub: s, Dir: dirPerNode[i]})
		}
	}

	if last > 0 {
		for s := 0; s <= endSub; s++ {
			moves = append(moves, Move{Node: baseNodes[last], Sub: s, Dir: dirPerNode[last-1]})
		}
	}

	return moves
}

// ReturnHomeMoves implements the return-home shaping rule: when
// currentSub > 0, the robot first walks its current node's sub-positions
// downward from currentSub-1 to 0 (same direction), then proceeds
// node-by-node at sub-position 0 only -- sub-positions 1-4 are skipped on
// every node visited after the first. When currentSub == 0 the sequence
// is node-by-node at sub-position 0 directly.
func ReturnHomeMoves(baseNodes []int, dirsBase []model.Direction, currentSub int) []Move {
	if len(baseNodes) == 0 {
		return nil
	}

	var moves []Move
	if currentSub > 0 {
		homeDir := model.Left
		if len(dirsBase) > 0 {
			homeDir = dirsBase[0]
		}
		for s := currentSub - 1; s >= 0; s-- {
			moves = append(moves, Move{Node: baseNodes[0], Sub: s, Dir: homeDir})
		}
	}

	for i := 1; i < len(baseNodes); i++ {
		dir := model.Left
		if i-1 < len(dirsBase) {
			dir = dirsBase[i-1]
		}
		moves = append(moves, Move{Node: baseNodes[i], Sub: 0, Dir: dir})
	}

	return moves
}

// FormatMoves renders a start position plus its moves through
// FormatSubPath.
func FormatMoves(startDisplay string, moves []Move) string {
	positions := make([]string, 0, len(moves)+1)
	dirs := make([]model.Direction, 0, len(moves))
	positions = append(positions, startDisplay)
	for _, m := range moves {
		positions = append(positions, m.display())
		dirs = append(dirs, m.Dir)
	}
	if len(dirs) == 0 {
		return positions[0] + "/d~" + positions[0] + "!" + positions[0] + ",d/"
	}
	return FormatSubPath(positions, dirs)
}
