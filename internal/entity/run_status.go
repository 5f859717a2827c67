package entity

import "time"

// State is the pipeline controller's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateSeeding  State = "seeding"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// Batch scopes one pipeline run. Every persisted record carries ID as part
// of its store key.
type Batch struct {
	ID    string
	RunID string
	Total int
}

// Tally holds the aggregate counters of one run. Done == OK + NG at all times.
type Tally struct {
	Done    int
	OK      int
	NG      int
	Stored  int // records handed to the store
	Flushes int // successful upsert calls
}

// Progress is a point-in-time view published while a run is in flight.
type Progress struct {
	RunID   string    `json:"run_id"`
	BatchID string    `json:"batch_id"`
	State   State     `json:"state"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	OK      int       `json:"ok"`
	NG      int       `json:"ng"`
	At      time.Time `json:"at"`
}

// RunReport is the externally observable outcome of a run.
type RunReport struct {
	RunID      string
	BatchID    string
	State      State
	Total      int
	OK         int
	NG         int
	Stored     int
	Flushes    int
	Workers    int
	StartedAt  time.Time
	FinishedAt time.Time
}
