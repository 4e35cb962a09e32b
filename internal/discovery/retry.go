package discovery

// RetryController bounds the number of relax-and-retry cycles.
type RetryController struct {
	Max int
}

// ShouldRetry reports whether another retry is allowed after count retries.
func (r RetryController) ShouldRetry(count int) bool { return count < r.Max }

// Increment returns the next retry count, never exceeding Max.
func (r RetryController) Increment(count int) int {
	if count >= r.Max {
		return r.Max
	}
	return count + 1
}
