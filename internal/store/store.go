// Package store provides the abstract key/value capability the controller
// core requires: hash maps, string values with TTL, and pub/sub fan-out.
// Connection loss is tolerated -- every mutator returns a boolean success;
// readers return the zero value on failure. Messages are best-effort: no
// persistence, no cross-channel ordering.
package store

import (
	"context"
	"time"
)

// Store is the abstract capability every core component depends on
// instead of a concrete client. Grounded on USA-RedDragon/DMRHub's
// internal/kv + internal/pubsub split, collapsed into one interface since
// the hash and pub/sub surfaces are always needed together here.
type Store interface {
	// Hash operations.
	HGet(ctx context.Context, key, field string) (string, bool)
	HSet(ctx context.Context, key, field, value string) bool
	HGetAll(ctx context.Context, key string) map[string]string
	HDel(ctx context.Context, key, field string) bool
	HExists(ctx context.Context, key, field string) bool

	// String operations.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Get(ctx context.Context, key string) (string, bool)
	Delete(ctx context.Context, key string) bool
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	// Scan iterates keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Pub/sub.
	Publish(ctx context.Context, channel, message string) bool
	Subscribe(ctx context.Context, pattern string, handler func(channel, message string)) (unsubscribe func(), err error)

	// OccupyNode implements the compare-and-set primitive occupancy
	// requires: it succeeds iff the node hash exists and its
	// occupied_by field is unset, atomically setting it to robotID.
	// Implementations MUST use a true CAS primitive (e.g. a server-side
	// script), not a client-side read-modify-write.
	OccupyNode(ctx context.Context, nodeKey, occupiedByField, robotID string) (bool, error)

	// ReleaseNode clears occupied_by iff it currently equals robotID (or
	// robotID is empty, meaning "release unconditionally"). Returns false
	// if the node was not occupied by robotID.
	ReleaseNode(ctx context.Context, nodeKey, occupiedByField, robotID string) (bool, error)

	// Close shuts down the underlying client connection.
	Close() error
}
