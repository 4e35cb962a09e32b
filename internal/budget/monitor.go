package budget

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks steps taken and time elapsed against a Config.
type Monitor struct {
	config    Config
	stepsUsed int
	startTime time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewMonitor starts tracking usage against cfg.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{config: cfg, startTime: time.Now(), now: time.Now}
}

// Spend claims one step. It fails without claiming when either the step or
// the time limit is already reached.
func (m *Monitor) Spend() error {
	if err := m.CheckTime(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.MaxSteps > 0 && m.stepsUsed >= m.config.MaxSteps {
		return ErrExceeded{
			Kind:  "steps",
			Usage: fmt.Sprintf("%d steps", m.stepsUsed),
			Limit: fmt.Sprintf("%d steps", m.config.MaxSteps),
		}
	}
	m.stepsUsed++
	return nil
}

// CheckTime verifies elapsed time against the configured limit.
func (m *Monitor) CheckTime() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.MaxTime <= 0 {
		return nil
	}
	elapsed := m.now().Sub(m.startTime)
	if elapsed >= m.config.MaxTime {
		return ErrExceeded{
			Kind:  "time",
			Usage: elapsed.Round(time.Millisecond).String(),
			Limit: m.config.MaxTime.String(),
		}
	}
	return nil
}

// Remaining is the number of steps left, not counting any in progress.
func (m *Monitor) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.MaxSteps <= 0 {
		return 0
	}
	return m.config.MaxSteps - m.stepsUsed
}

// Usage returns the accumulated metrics.
func (m *Monitor) Usage() (steps int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepsUsed, m.now().Sub(m.startTime)
}
