// Package graph implements the per-map node table (4-neighbour adjacency)
// plus the occupied_by column, with CAS semantics for occupancy. The
// store-key-per-entity shape is adapted from MongoDB documents to Redis
// hashes per the Store interface.
package graph

import (
	"context"
	"fmt"
	"strconv"

	"smartfarm/internal/model"
	"smartfarm/internal/store"
	"smartfarm/shared"
)

const (
	fieldLeft       = "l"
	fieldRight      = "r"
	fieldUp         = "u"
	fieldDown       = "d"
	fieldOccupiedBy = "occupied_by"
)

var fieldByDirection = map[model.Direction]string{
	model.Left:  fieldLeft,
	model.Right: fieldRight,
	model.Up:    fieldUp,
	model.Down:  fieldDown,
}

// Graph is the per-map node-table accessor. One Graph instance is shared
// across all maps; map_name scopes every key.
type Graph struct {
	store store.Store
}

// New constructs a Graph over the given Store.
func New(s store.Store) *Graph {
	return &Graph{store: s}
}

func nodeKey(mapName string, id int) string {
	return fmt.Sprintf("graph:node:%s:%d", mapName, id)
}

func nodeIndexPattern(mapName string) string {
	return fmt.Sprintf("graph:node:%s:*", mapName)
}

// SeedNode writes a node's adjacency into the store. Grid authoring (the
// initial node graph) happens elsewhere; this is the write path that
// authoring data flows through at startup. SeedNode overwrites any
// existing occupancy to free -- nodes are seeded once and persist for
// the process lifetime of the map.
func (g *Graph) SeedNode(ctx context.Context, mapName string, id int, neighbours map[model.Direction]int) bool {
	key := nodeKey(mapName, id)
	ok := true
	for dir, field := range fieldByDirection {
		ok = g.store.HSet(ctx, key, field, strconv.Itoa(neighbours[dir])) && ok
	}
	ok = g.store.HSet(ctx, key, fieldOccupiedBy, "") && ok
	return ok
}

// GetNode returns the node's neighbours and occupied_by verbatim.
// Returns ok=false if the node does not exist.
func (g *Graph) GetNode(ctx context.Context, mapName string, id int) (*model.Node, bool) {
	key := nodeKey(mapName, id)
	raw := g.store.HGetAll(ctx, key)
	if raw == nil {
		return nil, false
	}
	return decodeNode(mapName, id, raw), true
}

// GetAllNodes returns every node in the map, keyed by node id.
func (g *Graph) GetAllNodes(ctx context.Context, mapName string) (map[int]*model.Node, error) {
	keys, err := g.store.Scan(ctx, nodeIndexPattern(mapName))
	if err != nil {
		return nil, fmt.Errorf("scanning nodes for map %s: %w", mapName, err)
	}

	nodes := make(map[int]*model.Node, len(keys))
	for _, key := range keys {
		id, ok := parseNodeIDFromKey(mapName, key)
		if !ok {
			continue
		}
		raw := g.store.HGetAll(ctx, key)
		if raw == nil {
			continue
		}
		nodes[id] = decodeNode(mapName, id, raw)
	}
	return nodes, nil
}

func decodeNode(mapName string, id int, raw map[string]string) *model.Node {
	n := &model.Node{
		MapName:    mapName,
		ID:         id,
		Neighbours: make(map[model.Direction]int, 4),
		OccupiedBy: raw[fieldOccupiedBy],
	}
	for dir, field := range fieldByDirection {
		v, _ := strconv.Atoi(raw[field])
		n.Neighbours[dir] = v
	}
	return n
}

func parseNodeIDFromKey(mapName, key string) (int, bool) {
	prefix := fmt.Sprintf("graph:node:%s:", mapName)
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return 0, false
	}
	id, err := strconv.Atoi(key[len(prefix):])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Occupy succeeds iff the node exists and its occupied_by is unset; on
// success, sets occupied_by = robot. Uses the store's CAS primitive so
// concurrent racers never both succeed.
func (g *Graph) Occupy(ctx context.Context, mapName string, id int, robotID string) (bool, error) {
	ok, err := g.store.OccupyNode(ctx, nodeKey(mapName, id), fieldOccupiedBy, robotID)
	if err != nil {
		shared.DebugError(fmt.Errorf("occupy node %d in map %s: %w", id, mapName, err))
		return false, shared.ErrAtomicFailure
	}
	return ok, nil
}

// Release clears occupancy if the node is occupied by robotID (or robotID
// is "", meaning unconditional release). Returns false otherwise.
func (g *Graph) Release(ctx context.Context, mapName string, id int, robotID string) bool {
	ok, err := g.store.ReleaseNode(ctx, nodeKey(mapName, id), fieldOccupiedBy, robotID)
	if err != nil {
		shared.DebugError(fmt.Errorf("release node %d in map %s: %w", id, mapName, err))
		return false
	}
	return ok
}

// ReleaseAll sweeps every node in the map and clears any occupied by
// robotID, returning the count released. Linearisable with Occupy: each
// release goes through the same per-node CAS primitive, so a release can
// never clear an entry a concurrent Occupy just took for a different
// robot (the CAS compares against robotID, not "any occupant").
func (g *Graph) ReleaseAll(ctx context.Context, mapName string, robotID string) int {
	keys, err := g.store.Scan(ctx, nodeIndexPattern(mapName))
	if err != nil {
		shared.DebugError(fmt.Errorf("scanning nodes for release-all in map %s: %w", mapName, err))
		return 0
	}

	count := 0
	for _, key := range keys {
		ok, err := g.store.ReleaseNode(ctx, key, fieldOccupiedBy, robotID)
		if err != nil {
			shared.DebugError(fmt.Errorf("release-all node %s: %w", key, err))
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

// ListOccupied returns every occupied node in the map as id -> robotID.
func (g *Graph) ListOccupied(ctx context.Context, mapName string) (map[int]string, error) {
	nodes, err := g.GetAllNodes(ctx, mapName)
	if err != nil {
		return nil, err
	}
	occupied := make(map[int]string)
	for id, n := range nodes {
		if n.Occupied() {
			occupied[id] = n.OccupiedBy
		}
	}
	return occupied, nil
}
