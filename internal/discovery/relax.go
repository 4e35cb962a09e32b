package discovery

import "sort"

// Relaxer widens range constraints between retries. Increments maps a field
// to the amount its upper bound grows per relaxation. A range that only has a
// lower bound is widened by lowering it, never below zero.
type Relaxer struct {
	Increments map[string]float64
}

// Relax returns a widened copy of reqs. Point constraints, absent fields and
// fields without a configured increment are left untouched.
func (r Relaxer) Relax(reqs Requirements) (Requirements, []string) {
	out := reqs.Clone()
	var widened []string
	for field, inc := range r.Increments {
		c, ok := out[field]
		if !ok || !c.IsRange() || inc <= 0 {
			continue
		}
		switch {
		case c.Max != nil:
			v := *c.Max + inc
			c.Max = &v
		case c.Min != nil && *c.Min > 0:
			v := *c.Min - inc
			if v < 0 {
				v = 0
			}
			c.Min = &v
		default:
			continue
		}
		out[field] = c
		widened = append(widened, field)
	}
	sort.Strings(widened)
	return out, widened
}
