package graph

import (
	"context"
	"testing"

	"smartfarm/internal/model"
	"smartfarm/internal/store"
)

func seedLine(t *testing.T, g *Graph, ctx context.Context, mapName string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		neighbours := map[model.Direction]int{}
		if i > 1 {
			neighbours[model.Left] = i - 1
		}
		if i < n {
			neighbours[model.Right] = i + 1
		}
		if !g.SeedNode(ctx, mapName, i, neighbours) {
			t.Fatalf("seed node %d failed", i)
		}
	}
}

func TestGetNodeRoundTrips(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore())
	seedLine(t, g, ctx, "farm1", 3)

	n, ok := g.GetNode(ctx, "farm1", 2)
	if !ok {
		t.Fatal("expected node 2 to exist")
	}
	if n.Neighbour(model.Left) != 1 || n.Neighbour(model.Right) != 3 {
		t.Errorf("unexpected neighbours: %+v", n.Neighbours)
	}
	if n.Occupied() {
		t.Error("freshly seeded node should not be occupied")
	}
}

func TestGetNodeMissing(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore())
	if _, ok := g.GetNode(ctx, "farm1", 99); ok {
		t.Error("expected missing node to report not-found")
	}
}

func TestOccupyThenReleaseAll(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore())
	seedLine(t, g, ctx, "farm1", 3)

	ok, err := g.Occupy(ctx, "farm1", 1, "r1")
	if err != nil || !ok {
		t.Fatalf("expected occupy to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = g.Occupy(ctx, "farm1", 1, "r2")
	if err != nil || ok {
		t.Fatalf("expected second occupy to fail, got ok=%v err=%v", ok, err)
	}

	occupied, err := g.ListOccupied(ctx, "farm1")
	if err != nil {
		t.Fatalf("list occupied: %v", err)
	}
	if occupied[1] != "r1" {
		t.Errorf("expected node 1 occupied by r1, got %v", occupied)
	}

	count := g.ReleaseAll(ctx, "farm1", "r1")
	if count != 1 {
		t.Errorf("expected 1 node released, got %d", count)
	}
	if n, _ := g.GetNode(ctx, "farm1", 1); n.Occupied() {
		t.Error("expected node 1 to be free after release-all")
	}
}

func TestReleaseRejectsWrongRobot(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore())
	seedLine(t, g, ctx, "farm1", 1)

	g.Occupy(ctx, "farm1", 1, "r1")
	if g.Release(ctx, "farm1", 1, "r2") {
		t.Error("expected release by non-owner to fail")
	}
	if !g.Release(ctx, "farm1", 1, "r1") {
		t.Error("expected release by owner to succeed")
	}
}
