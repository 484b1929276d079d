// Package shared defines custom error types for the smartfarm controller.
//
// Errors are grouped by functional area so each component's failures are
// distinguishable without string matching.
package shared

import "errors"

// Admission errors -- map_name failed the configured prefix check.
var ErrAdmissionRejected = errors.New("map name rejected by admission policy")

// Planner errors.

// ErrRouteMissing indicates bfs found no path between the requested
// endpoints (unknown node, or no connecting path exists).
var ErrRouteMissing = errors.New("no route between requested nodes")

// ErrRouteBlocked indicates occupancy truncation reduced the path to a
// single node -- the robot cannot move.
var ErrRouteBlocked = errors.New("route blocked by node occupancy")

// Graph/occupancy errors.

var ErrNodeNotFound = errors.New("node not found")
var ErrNodeOccupied = errors.New("node already occupied")
var ErrAtomicFailure = errors.New("occupancy compare-and-set lost the race")

// Store errors.

var ErrStoreUnavailable = errors.New("key/value store unavailable")

// Bus errors.

var ErrBrokerUnavailable = errors.New("message broker unavailable")
var ErrMalformedPayload = errors.New("malformed message payload")

// General errors.

var ErrInvalidInput = errors.New("invalid input provided")
var ErrRobotNotFound = errors.New("robot not found")
var ErrMapNotFound = errors.New("map not found")
