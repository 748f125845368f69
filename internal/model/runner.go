package model

import (
	"fmt"
	"time"
)

// RunnerOnlineTTL is how long after the last heartbeat a runner is still
// considered online. Online-ness is derived, never stored.
const RunnerOnlineTTL = 90 * time.Second

// Runner is a user-registered local execution worker. It is created on its
// first heartbeat and updated on every subsequent one; it is never hard
// deleted, only disabled.
type Runner struct {
	ID           string
	UserID       int
	Name         string
	Disabled     bool
	Capabilities map[string]interface{}
	Workspaces   []interface{}
	LastSeenAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the runner.
func (r *Runner) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("runner id is required: %w", ErrNotValid)
	}
	return nil
}

// Online reports whether the runner heartbeated recently enough to be
// considered reachable at the given instant.
func (r *Runner) Online(now time.Time) bool {
	return now.Sub(r.LastSeenAt) <= RunnerOnlineTTL
}
