package model

import "time"

// Robot is the per-robot live record: position, destination, battery,
// status, and the cumulative sub-step counter.
type Robot struct {
	MapName string
	RobotID string

	CurrentNode NodeRef
	FinalNode   *NodeRef // nil when unset

	BatteryState  float64 // 0..100
	ChargingState int     // 0 or 1

	Status RobotStatus

	NodeCount int

	UpdatedAt time.Time
}

// CurrentStateCursor marks the open interval for the daily-stats
// accumulator.
type CurrentStateCursor struct {
	State     RobotOperationState
	StartedAt time.Time
	NodeCount int
}

// ArriveMarker records a robot's last arrival node.
type ArriveMarker struct {
	RobotID string
	Node    string
	At      time.Time
}

// ConnectionRecord tracks a broker client's last connect/disconnect.
type ConnectionRecord struct {
	Device         string
	MapName        string
	DeviceID       string
	LastConnectAt  time.Time
	IP             string
	DisconnectedAt *time.Time
}
