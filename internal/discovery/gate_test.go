package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateCandidates() []Candidate {
	rating := 4.2
	return []Candidate{
		{Name: "Asia Metals Ltd", Provenance: ProvenanceStore, Rating: &rating},
		{Name: "Green Copper Co", Provenance: ProvenanceStore},
		{Name: "Copper Hub", Provenance: ProvenanceWeb},
	}
}

func TestParseEvaluationAccept(t *testing.T) {
	ev, err := ParseEvaluation(acceptResponse("Green Copper Co", "asia  metals ltd"), gateCandidates(), 10)
	require.NoError(t, err)
	assert.Equal(t, FeedbackAccept, ev.Feedback)
	require.Len(t, ev.Ranked, 2)
	assert.Equal(t, "Green Copper Co", ev.Ranked[0].Name)
	assert.Equal(t, "Asia Metals Ltd", ev.Ranked[1].Name, "names resolve to the stored candidate")
	assert.Equal(t, 4.2, *ev.Ranked[1].Candidate.Rating)
	assert.Equal(t, "ranked by price and lead time", ev.Notes)
}

func TestParseEvaluationLegacyFeedback(t *testing.T) {
	ev, err := ParseEvaluation([]byte(`{"evaluation_feedback":"good","top_suppliers":[{"name":"Copper Hub","score":70,"reasons":["stock"],"warnings":[]}]}`), gateCandidates(), 10)
	require.NoError(t, err)
	assert.Equal(t, FeedbackAccept, ev.Feedback)

	ev, err = ParseEvaluation([]byte(`{"evaluation_feedback":"not good enough","top_suppliers":[{"name":"Copper Hub","score":10,"reasons":[],"warnings":["slow"]}]}`), gateCandidates(), 10)
	require.NoError(t, err)
	assert.Equal(t, FeedbackReject, ev.Feedback)
	assert.Empty(t, ev.Ranked, "reject never carries candidates")
}

func TestParseEvaluationCodeFence(t *testing.T) {
	raw := "```json\n" + string(acceptResponse("Copper Hub")) + "\n```"
	ev, err := ParseEvaluation([]byte(raw), gateCandidates(), 10)
	require.NoError(t, err)
	assert.Len(t, ev.Ranked, 1)
}

func TestParseEvaluationMalformed(t *testing.T) {
	eleven := make([]string, 11)
	cands := make([]Candidate, 11)
	for i := range eleven {
		eleven[i] = "Supplier " + string(rune('A'+i))
		cands[i] = Candidate{Name: eleven[i]}
	}
	cases := map[string]struct {
		raw   string
		cands []Candidate
	}{
		"not json":           {raw: "Sure! Here are the suppliers", cands: gateCandidates()},
		"missing feedback":   {raw: `{"top_suppliers":[]}`, cands: gateCandidates()},
		"unknown feedback":   {raw: `{"evaluation_feedback":"maybe","top_suppliers":[]}`, cands: gateCandidates()},
		"score out of range": {raw: `{"evaluation_feedback":"accept","top_suppliers":[{"name":"Copper Hub","score":140,"reasons":[],"warnings":[]}]}`, cands: gateCandidates()},
		"missing reasons":    {raw: `{"evaluation_feedback":"accept","top_suppliers":[{"name":"Copper Hub","score":40,"warnings":[]}]}`, cands: gateCandidates()},
		"invented candidate": {raw: string(acceptResponse("Imaginary Metals")), cands: gateCandidates()},
		"duplicate":          {raw: string(acceptResponse("Copper Hub", "Copper Hub")), cands: gateCandidates()},
		"accept empty":       {raw: `{"evaluation_feedback":"accept","top_suppliers":[]}`, cands: gateCandidates()},
		"too many":           {raw: string(acceptResponse(eleven...)), cands: cands},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvaluation([]byte(tc.raw), tc.cands, 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEvaluation), err.Error())
		})
	}
}

func TestParseEvaluationFlagsRating(t *testing.T) {
	raw := `{"evaluation_feedback":"accept","top_suppliers":[
		{"name":"Copper Hub","score":80,"rating":7.5,"reasons":["fast"],"warnings":[]},
		{"name":"Green Copper Co","score":60,"rating":4,"reasons":[],"warnings":[]}
	]}`
	ev, err := ParseEvaluation([]byte(raw), gateCandidates(), 10)
	require.NoError(t, err, "out of range ratings are tolerated")
	require.Len(t, ev.Ranked, 2)
	assert.Equal(t, []string{FlagRatingOutOfRange}, ev.Ranked[0].Flags)
	assert.Empty(t, ev.Ranked[1].Flags)
}

func TestGateDegradesToReject(t *testing.T) {
	cases := map[string]*fakeEvaluator{
		"invocation error": {err: errors.New("503 from provider")},
		"garbage":          {responses: [][]byte{[]byte("<html>rate limited</html>")}},
		"timeout":          {block: true},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			g := NewGate(ev, 20*time.Millisecond, 10, NewMetrics(nil), nil)
			got := g.Evaluate(context.Background(), scenarioInput(), gateCandidates())
			assert.Equal(t, FeedbackReject, got.Feedback)
			assert.Empty(t, got.Ranked)
			assert.Equal(t, "test-evaluator", got.Model)
		})
	}
}

func TestEvaluationSchemaCompiles(t *testing.T) {
	s, err := EvaluationSchema()
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripCodeFence([]byte("```json\n{\"a\":1}\n```"))))
	assert.Equal(t, `{"a":1}`, string(stripCodeFence([]byte("  {\"a\":1} "))))
	assert.True(t, strings.HasPrefix(string(stripCodeFence([]byte("```\n[1]\n```"))), "["))
}
