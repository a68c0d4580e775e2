package model

import "time"

// ProcessInfo describes one process control block.
type ProcessInfo struct {
	PID       uint32        `json:"pid" yaml:"pid"`
	ParentPID uint32        `json:"parentPid,omitempty" yaml:"parentPid,omitempty"`
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	State     string        `json:"state" yaml:"state"`
	Priority  uint32        `json:"priority" yaml:"priority"`
	Quantum   time.Duration `json:"quantum" yaml:"quantum"`
	CPUTime   time.Duration `json:"cpuTime" yaml:"cpuTime"`
	CreatedAt time.Time     `json:"createdAt" yaml:"createdAt"`
}

// SemaphoreInfo describes one counting semaphore.
type SemaphoreInfo struct {
	ID        uint32 `json:"id" yaml:"id"`
	Value     int    `json:"value" yaml:"value"`
	Max       int    `json:"max" yaml:"max"`
	Waiters   int    `json:"waiters" yaml:"waiters"`
	Destroyed bool   `json:"destroyed,omitempty" yaml:"destroyed,omitempty"`
}

// ChannelInfo describes one named channel of either flavor.
type ChannelInfo struct {
	Name           string `json:"name" yaml:"name"`
	Kind           string `json:"kind" yaml:"kind"`
	Size           int    `json:"size" yaml:"size"`
	Capacity       int    `json:"capacity" yaml:"capacity"`
	Readers        int    `json:"readers" yaml:"readers"`
	Writers        int    `json:"writers" yaml:"writers"`
	BlockedReaders int    `json:"blockedReaders" yaml:"blockedReaders"`
	BlockedWriters int    `json:"blockedWriters" yaml:"blockedWriters"`
	Messages       int    `json:"messages,omitempty" yaml:"messages,omitempty"`
	LaneCounts     []int  `json:"laneCounts,omitempty" yaml:"laneCounts,omitempty"`
}

// Counters aggregates scheduler activity.
type Counters struct {
	Spawned         int `json:"spawned" yaml:"spawned"`
	Terminated      int `json:"terminated" yaml:"terminated"`
	ContextSwitches int `json:"contextSwitches" yaml:"contextSwitches"`
	Blocked         int `json:"blocked" yaml:"blocked"`
	Unblocked       int `json:"unblocked" yaml:"unblocked"`
	Yields          int `json:"yields" yaml:"yields"`
}

// Snapshot is a consistent-enough dump of the kernel objects taken at one
// instant. Each section is collected under its own lock, so the sections may
// be a few operations apart.
type Snapshot struct {
	ID         string           `json:"id" yaml:"id"`
	TakenAt    time.Time        `json:"takenAt" yaml:"takenAt"`
	Current    uint32           `json:"current" yaml:"current"`
	Processes  []*ProcessInfo   `json:"processes" yaml:"processes"`
	Semaphores []*SemaphoreInfo `json:"semaphores" yaml:"semaphores"`
	Channels   []*ChannelInfo   `json:"channels" yaml:"channels"`
	Counters   Counters         `json:"counters" yaml:"counters"`
	AllocInUse int64            `json:"allocInUse" yaml:"allocInUse"`
}
