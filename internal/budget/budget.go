// Package budget bounds how much work a tool-driven run may do, in planner
// steps and in wall-clock time.
package budget

import (
	"fmt"
	"time"
)

// Config defines the guardrails for one run. A zero MaxTime leaves the run
// bounded by steps only.
type Config struct {
	MaxSteps int
	MaxTime  time.Duration
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive")
	}
	if c.MaxTime < 0 {
		return fmt.Errorf("max_time cannot be negative")
	}
	return nil
}

// IsZero reports whether the config defines no explicit limits.
func (c Config) IsZero() bool {
	return c.MaxSteps == 0 && c.MaxTime == 0
}

// ErrExceeded reports which limit a run ran into.
type ErrExceeded struct {
	Kind  string
	Usage string
	Limit string
}

func (e ErrExceeded) Error() string {
	return fmt.Sprintf("%s budget exhausted: used %s of %s", e.Kind, e.Usage, e.Limit)
}
