package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestOccupyNodeConcurrentRace verifies that concurrent OccupyNode(n, A)
// and OccupyNode(n, B) on a free node have exactly one succeed, and the
// loser observes occupied_by == the winner's id.
func TestOccupyNodeConcurrentRace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.HSet(ctx, "node:1", "occupied_by", "")

	var wg sync.WaitGroup
	results := make([]bool, 2)
	robots := []string{"A", "B"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.OccupyNode(ctx, "node:1", "occupied_by", robots[i])
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("expected exactly one winner, got results %v", results)
	}

	winner := robots[0]
	if results[1] {
		winner = robots[1]
	}

	got, _ := s.HGet(ctx, "node:1", "occupied_by")
	if got != winner {
		t.Errorf("expected occupied_by=%s, got %s", winner, got)
	}
}

func TestOccupyNodeRequiresExistingNode(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ok, err := s.OccupyNode(ctx, "node:missing", "occupied_by", "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected OccupyNode on a missing node to fail")
	}
}

func TestReleaseNodeRequiresMatchingRobot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.HSet(ctx, "node:1", "occupied_by", "A")

	ok, err := s.ReleaseNode(ctx, "node:1", "occupied_by", "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected release by non-owning robot to fail")
	}

	ok, err = s.ReleaseNode(ctx, "node:1", "occupied_by", "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected release by the owning robot to succeed")
	}
}

func TestSetExpires(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Set(ctx, "k", "v", 10*time.Millisecond)

	if _, ok := s.Get(ctx, "k"); !ok {
		t.Fatal("expected value to be present immediately after Set")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expected value to have expired")
	}
}

func TestPublishSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	received := make(chan string, 1)
	unsub, err := s.Subscribe(ctx, "smartfarm_x/robot/*/state", func(channel, message string) {
		received <- message
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	s.Publish(ctx, "smartfarm_x/robot/r1/state", `{"status":"WORKING"}`)

	select {
	case msg := <-received:
		if msg != `{"status":"WORKING"}` {
			t.Errorf("unexpected message: %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
