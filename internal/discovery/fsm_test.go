package discovery

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	rc := RetryController{Max: 3}
	cases := []struct {
		name   string
		from   State
		step   Step
		to     State
		status Status
	}{
		{"parse always explores", StateParse, Step{}, StateExplore, ""},
		{"empty explore reports", StateExplore, Step{Candidates: 0}, StateReport, StatusNoCandidates},
		{"non-empty explore evaluates", StateExplore, Step{Candidates: 2}, StateEvaluate, ""},
		{"accept reports success", StateEvaluate, Step{Feedback: FeedbackAccept, Retries: 3}, StateReport, StatusSuccess},
		{"reject with budget adjusts", StateEvaluate, Step{Feedback: FeedbackReject, Retries: 2}, StateAdjust, ""},
		{"reject without budget fails", StateEvaluate, Step{Feedback: FeedbackReject, Retries: 3}, StateReport, StatusFailed},
		{"adjust retries", StateAdjust, Step{}, StateRetry, ""},
		{"retry parses", StateRetry, Step{}, StateParse, ""},
		{"report ends", StateReport, Step{}, StateEnd, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			to, status := Transition(tc.from, tc.step, rc)
			assert.Equal(t, tc.to, to)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestRetryController(t *testing.T) {
	rc := RetryController{Max: 3}
	count := 0
	for rc.ShouldRetry(count) {
		count = rc.Increment(count)
	}
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, rc.Increment(3), "counter never exceeds the cap")
	assert.False(t, RetryController{Max: 0}.ShouldRetry(0))
}

// Walks the table with always-reject feedback and checks the loop terminates
// in a failed report after exactly Max retries.
func TestTransitionAlwaysRejectTerminates(t *testing.T) {
	for max := 0; max <= 5; max++ {
		rc := RetryController{Max: max}
		state, retries, status := StateParse, 0, Status("")
		for i := 0; state != StateEnd; i++ {
			require.Less(t, i, 100, "workflow did not terminate")
			step := Step{Candidates: 1, Feedback: FeedbackReject, Retries: retries}
			if state == StateRetry {
				retries = rc.Increment(retries)
			}
			var s Status
			state, s = Transition(state, step, rc)
			if s != "" {
				status = s
			}
		}
		assert.Equal(t, StatusFailed, status)
		assert.Equal(t, max, retries)
	}
}

func TestRelaxWidensOnlyConfiguredRanges(t *testing.T) {
	r := Relaxer{Increments: map[string]float64{"delivery_time_days": 5, "price": 10, "lead_floor": 3}}
	in := Requirements{
		"material":           Point("zinc"),
		"delivery_time_days": AtMost(15),
		"price":              Point(20.0),
		"moq":                AtMost(100),
		"lead_floor":         AtLeast(2),
	}
	out, widened := r.Relax(in)

	assert.Equal(t, []string{"delivery_time_days", "lead_floor"}, widened)
	assert.Equal(t, 20.0, *out["delivery_time_days"].Max)
	assert.Equal(t, 0.0, *out["lead_floor"].Min)
	assert.Equal(t, Point(20.0), out["price"], "point constraints are immutable")
	assert.Equal(t, 100.0, *out["moq"].Max, "fields without an increment are untouched")
	assert.Equal(t, Point("zinc"), out["material"])
	assert.Equal(t, 15.0, *in["delivery_time_days"].Max, "input is not mutated")

	_, widened = r.Relax(Requirements{"material": Point("zinc")})
	assert.Empty(t, widened)
}

func TestRelaxIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		incs := map[string]float64{"a": 1 + rng.Float64()*10, "b": 1 + rng.Float64()*10}
		r := Relaxer{Increments: incs}
		reqs := Requirements{
			"a": Between(rng.Float64()*10, 10+rng.Float64()*10),
			"b": AtLeast(rng.Float64() * 20),
			"c": Point("fixed"),
		}
		for step := 0; step < 5; step++ {
			next, _ := r.Relax(reqs)
			for field, before := range reqs {
				after := next[field]
				require.Equal(t, before.Kind, after.Kind)
				if before.Max != nil {
					assert.GreaterOrEqual(t, *after.Max, *before.Max, "upper bound narrowed")
				}
				if before.Min != nil {
					assert.LessOrEqual(t, *after.Min, *before.Min, "lower bound narrowed")
				}
				if before.Kind == PointConstraint {
					assert.Equal(t, before, after)
				}
			}
			reqs = next
		}
	}
}
