package planner

import (
	"reflect"
	"testing"

	"smartfarm/internal/model"
)

func lineSnapshot(n int) map[int]*model.Node {
	snap := make(map[int]*model.Node, n)
	for i := 1; i <= n; i++ {
		node := &model.Node{ID: i, Neighbours: map[model.Direction]int{}}
		if i > 1 {
			node.Neighbours[model.Left] = i - 1
		}
		if i < n {
			node.Neighbours[model.Right] = i + 1
		}
		snap[i] = node
	}
	return snap
}

func TestBFSSameNode(t *testing.T) {
	snap := lineSnapshot(3)
	nodes, dirs := BFS(snap, 2, 2)
	if !reflect.DeepEqual(nodes, []int{2}) || len(dirs) != 0 {
		t.Errorf("BFS(a,a) = %v, %v; want ([a], [])", nodes, dirs)
	}
}

func TestBFSShortestPath(t *testing.T) {
	snap := lineSnapshot(10)
	nodes, dirs := BFS(snap, 5, 10)
	wantNodes := []int{5, 6, 7, 8, 9, 10}
	wantDirs := []model.Direction{model.Right, model.Right, model.Right, model.Right, model.Right}
	if !reflect.DeepEqual(nodes, wantNodes) {
		t.Errorf("nodes = %v, want %v", nodes, wantNodes)
	}
	if !reflect.DeepEqual(dirs, wantDirs) {
		t.Errorf("dirs = %v, want %v", dirs, wantDirs)
	}
	if len(dirs) != len(nodes)-1 {
		t.Errorf("len(dirs)=%d != len(nodes)-1=%d", len(dirs), len(nodes)-1)
	}
}

func TestBFSUnknownEndpoint(t *testing.T) {
	snap := lineSnapshot(3)
	nodes, dirs := BFS(snap, 1, 99)
	if nodes != nil || dirs != nil {
		t.Errorf("expected empty result for unknown endpoint, got %v %v", nodes, dirs)
	}
}

func TestBFSNoPath(t *testing.T) {
	snap := lineSnapshot(3)
	snap[4] = &model.Node{ID: 4, Neighbours: map[model.Direction]int{}}
	nodes, dirs := BFS(snap, 1, 4)
	if nodes != nil || dirs != nil {
		t.Errorf("expected empty result when no path exists, got %v %v", nodes, dirs)
	}
}

func TestBFSNeighbourTieBreak(t *testing.T) {
	// Node 1 has both an 'l' and a 'u' route reaching node 3 in two hops;
	// visit order l,r,u,d means the 'l' branch must win.
	snap := map[int]*model.Node{
		1: {ID: 1, Neighbours: map[model.Direction]int{model.Left: 2, model.Up: 4}},
		2: {ID: 2, Neighbours: map[model.Direction]int{model.Right: 3}},
		4: {ID: 4, Neighbours: map[model.Direction]int{model.Down: 3}},
		3: {ID: 3, Neighbours: map[model.Direction]int{}},
	}
	nodes, dirs := BFS(snap, 1, 3)
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(nodes, want) {
		t.Errorf("expected tie-break to prefer the 'l' branch, got nodes=%v dirs=%v", nodes, dirs)
	}
}
