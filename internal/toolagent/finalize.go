package toolagent

import (
	"fmt"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

// Finalize applies the finalize contract to the planner's supplier list. An
// empty list is an error the planner must recover from, more than n keeps
// the first n and fewer than n is accepted with a warning.
func Finalize(cands []discovery.Candidate, n int) ([]discovery.Candidate, string, error) {
	if len(cands) == 0 {
		return nil, "", discovery.ErrNoSuppliers
	}
	if n <= 0 {
		return cands, "", nil
	}
	if len(cands) > n {
		return cands[:n], "", nil
	}
	if len(cands) < n {
		return cands, fmt.Sprintf("only %d suppliers found, fewer than the requested %d", len(cands), n), nil
	}
	return cands, "", nil
}
