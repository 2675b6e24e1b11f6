package state

import "time"

// Transaction statuses recorded in the log.
const (
	StatusSuccess       = "success"
	StatusFailed        = "failed"
	StatusRestoreFailed = "restore_failed"
)

// Transaction is the log entry for one snapshot/mutate/restore cycle.
// It records the outcome only, never file contents.
type Transaction struct {
	ID         string        `json:"id"`
	Task       string        `json:"task"`
	Root       string        `json:"root"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	Status     string        `json:"status"`
	Files      int           `json:"files"`
	Rewritten  int           `json:"rewritten"`
	Error      string        `json:"error,omitempty"`
	Unrestored []string      `json:"unrestored,omitempty"` // files left mutated
}

// State is the on-disk document.
type State struct {
	Version string        `json:"version"`
	LastRun time.Time     `json:"last_run"`
	History []Transaction `json:"history,omitempty"`
}

func NewState() *State {
	return &State{
		Version: "1.0",
	}
}
