package devicebus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"smartfarm/internal/graph"
	"smartfarm/internal/model"
	"smartfarm/internal/planner"
	"smartfarm/internal/robotstate"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]byte // topic -> last payload
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{msgs: make(map[string][]byte)}
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs[topic] = payload
	return true
}

func (p *recordingPublisher) last(topic string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.msgs[topic])
}

// seedLine seeds a 1..n line graph, node i's Left neighbour is i+1 (so
// plain paths from a low id to a higher one travel 'l').
func seedLine(t *testing.T, g *graph.Graph, ctx context.Context, mapName string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		right := 0
		if i > 1 {
			right = i - 1
		}
		left := 0
		if i < n {
			left = i + 1
		}
		ok := g.SeedNode(ctx, mapName, i, map[model.Direction]int{model.Left: left, model.Right: right})
		if !ok {
			t.Fatalf("seeding node %d", i)
		}
	}
}

func setupHandler(t *testing.T, mapName string) (*Handler, *graph.Graph, *recordingPublisher, store.Store) {
	t.Helper()
	shared.AppConfig.AdmissionPrefix = "smartfarm_"
	shared.RegisterMap(&shared.MapConfig{Name: mapName, ChargingNode: "1-0", NodeCountGlitchThreshold: 10})

	s := store.NewMemoryStore()
	g := graph.New(s)
	pl := planner.New(g)
	rs := robotstate.New(s, nil)
	pub := newRecordingPublisher()
	return New(g, pl, rs, s, pub), g, pub, s
}

func TestHandlePathPlanPlainRoute(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, _ := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)

	payload, _ := json.Marshal(map[string]string{"current_node": "5", "final_node": "10"})
	h.HandleMessage(ctx, mapName, "r1", cmdPathPlan, payload)

	var resp struct{ Path string `json:"path"` }
	if err := json.Unmarshal([]byte(pub.last("smartfarm_x/r1/server/path_plan")), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Path != "10!5,l/6,l/7,l/8,l/9,l/" {
		t.Errorf("unexpected path: %s", resp.Path)
	}
}

func TestHandlePathPlanTruncatedByOccupancy(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, _ := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)
	if ok, _ := g.Occupy(ctx, mapName, 8, "r2"); !ok {
		t.Fatal("expected to occupy node 8")
	}

	payload, _ := json.Marshal(map[string]string{"current_node": "5", "final_node": "10"})
	h.HandleMessage(ctx, mapName, "r1", cmdPathPlan, payload)

	var resp struct{ Path string `json:"path"` }
	json.Unmarshal([]byte(pub.last("smartfarm_x/r1/server/path_plan")), &resp)
	if resp.Path != "7!5,l/6,l/" {
		t.Errorf("unexpected truncated path: %s", resp.Path)
	}
}

func TestHandlePathPlanReturnRewritesToSubPosition(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, _ := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)

	payload, _ := json.Marshal(map[string]string{"current_node": "5-3", "final_node": "1-0"})
	h.HandleMessage(ctx, mapName, "r1", cmdPathPlan, payload)

	var resp struct{ Path string `json:"path"` }
	json.Unmarshal([]byte(pub.last("smartfarm_x/r1/server/path_plan")), &resp)
	if !strings.HasPrefix(resp.Path, "1-0/r~1-0!5-3,r/") {
		t.Errorf("unexpected return sub-path: %s", resp.Path)
	}
}

func TestVoltsToPercentChargingExample(t *testing.T) {
	got := voltsToPercent(15.0, true)
	if got != 47 {
		t.Errorf("expected 47, got %v", got)
	}
}

func TestVoltsToPercentClampsToRange(t *testing.T) {
	if got := voltsToPercent(30, false); got != 100 {
		t.Errorf("expected clamp to 100, got %v", got)
	}
	if got := voltsToPercent(0, false); got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
}

func TestHandleArriveReleasesAllAndPublishesYes(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, s := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)
	g.Occupy(ctx, mapName, 6, "r1")
	g.Occupy(ctx, mapName, 7, "r1")
	g.Occupy(ctx, mapName, 8, "r1")

	payload, _ := json.Marshal(map[string]string{"current_node": "8"})
	h.HandleMessage(ctx, mapName, "r1", cmdArrive, payload)

	for _, n := range []int{6, 7, 8} {
		node, _ := g.GetNode(ctx, mapName, n)
		if node.OccupiedBy != "" {
			t.Errorf("expected node %d released, still occupied by %s", n, node.OccupiedBy)
		}
	}

	if _, ok := s.Get(ctx, "robot:arrive:smartfarm_x:r1"); !ok {
		t.Error("expected an arrive marker to be stored")
	}

	if pub.last("smartfarm_x/r1/server/arrive") != `{"yes_or_no":"yes"}` {
		t.Errorf("unexpected arrive response: %s", pub.last("smartfarm_x/r1/server/arrive"))
	}
}

func TestHandleNextAdvancesSubPosition(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, _ := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)

	sub := 2
	payload, _ := json.Marshal(map[string]interface{}{"current_node": "5", "sub_position": sub, "direction": "l"})
	h.HandleMessage(ctx, mapName, "r1", cmdNext, payload)

	var resp struct{ Path string `json:"path"` }
	json.Unmarshal([]byte(pub.last("smartfarm_x/r1/server/path_plan")), &resp)
	if resp.Path != "5-3/l~5-3!5-2,l/" {
		t.Errorf("unexpected next-step path: %s", resp.Path)
	}
}

func TestHandleNextCrossesToNextNodeAtSubFour(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, pub, _ := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)

	sub := 4
	payload, _ := json.Marshal(map[string]interface{}{"current_node": "5", "sub_position": sub, "direction": "l"})
	h.HandleMessage(ctx, mapName, "r1", cmdNext, payload)

	var resp struct{ Path string `json:"path"` }
	json.Unmarshal([]byte(pub.last("smartfarm_x/r1/server/path_plan")), &resp)
	if resp.Path != "6-0/l~6-0!5-4,l/" {
		t.Errorf("unexpected cross-node next path: %s", resp.Path)
	}
}

func TestHandleRemovePathReleasesAndPublishesEvent(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, g, _, s := setupHandler(t, mapName)
	seedLine(t, g, ctx, mapName, 10)
	g.Occupy(ctx, mapName, 6, "r1")

	received := make(chan string, 1)
	unsub, _ := s.Subscribe(ctx, shared.RobotEventChannel, func(_, message string) { received <- message })
	defer unsub()

	payload, _ := json.Marshal(map[string]string{"current_node": "6"})
	h.HandleMessage(ctx, mapName, "r1", cmdRemovePath, payload)

	node, _ := g.GetNode(ctx, mapName, 6)
	if node.OccupiedBy != "" {
		t.Error("expected node 6 released")
	}

	select {
	case msg := <-received:
		if !strings.Contains(msg, `"event":"REMOVE"`) {
			t.Errorf("expected a REMOVE event, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Error("expected a REMOVE event to be published")
	}
}

func TestHandleRobotErrorPublishesErrorEvent(t *testing.T) {
	ctx := context.Background()
	mapName := "smartfarm_x"
	h, _, _, s := setupHandler(t, mapName)

	received := make(chan string, 1)
	unsub, _ := s.Subscribe(ctx, shared.RobotEventChannel, func(_, message string) { received <- message })
	defer unsub()

	h.HandleMessage(ctx, mapName, "r1", cmdRobotError, []byte(`{}`))

	select {
	case msg := <-received:
		if !strings.Contains(msg, `"event":"ERROR"`) {
			t.Errorf("expected an ERROR event, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Error("expected an ERROR event to be published")
	}
}

func TestHandlePathPlanDropsMessageForUnadmittedMap(t *testing.T) {
	ctx := context.Background()
	h, _, pub, _ := setupHandler(t, "smartfarm_x")

	payload, _ := json.Marshal(map[string]string{"current_node": "5", "final_node": "10"})
	h.HandleMessage(ctx, "otherfarm_x", "r1", cmdPathPlan, payload)

	if len(pub.msgs) != 0 {
		t.Error("expected no response published for a map that fails admission")
	}
}
