package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/sourcer/config"
)

type memHistory struct {
	mu    sync.Mutex
	turns []Turn
	err   error
}

func (h *memHistory) Append(_ context.Context, sessionID, role, content string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.turns = append(h.turns, Turn{ID: fmt.Sprintf("%s-%d", sessionID, len(h.turns)), SessionID: sessionID, Role: role, Content: content, Timestamp: at})
	return nil
}

// SearchRelevant scores by the number of query words in the content, then recency.
func (h *memHistory) SearchRelevant(_ context.Context, text, role string, limit int) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	words := strings.Fields(strings.ToLower(text))
	var out []Turn
	for _, t := range h.turns {
		if role != "" && t.Role != role {
			continue
		}
		score := 0.0
		lc := strings.ToLower(t.Content)
		for _, w := range words {
			if strings.Contains(lc, w) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		t.Score = score
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memHistory) roles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.turns))
	for i, t := range h.turns {
		out[i] = t.Role
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	results []Candidate
	err     error
	delay   time.Duration
	filters []Filter
}

func (s *fakeStore) Query(ctx context.Context, f Filter) ([]Candidate, error) {
	s.mu.Lock()
	s.filters = append(s.filters, f)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]Candidate(nil), s.results...), nil
}

func (s *fakeStore) lastFilter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters[len(s.filters)-1]
}

type fakeWeb struct {
	leads   []Lead
	err     error
	queries []string
	mu      sync.Mutex
}

func (w *fakeWeb) Search(_ context.Context, q string) ([]Lead, error) {
	w.mu.Lock()
	w.queries = append(w.queries, q)
	w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	return w.leads, nil
}

func (w *fakeWeb) Extract(_ context.Context, urls []string) ([]Fragment, error) {
	return nil, errors.New("not used")
}

type fakeEvaluator struct {
	mu        sync.Mutex
	responses [][]byte
	err       error
	block     bool
	calls     int
	seen      []Requirements
}

func (e *fakeEvaluator) Invoke(ctx context.Context, reqs Requirements, _ []Candidate) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	e.seen = append(e.seen, reqs.Clone())
	idx := e.calls - 1
	e.mu.Unlock()
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	if idx >= len(e.responses) {
		idx = len(e.responses) - 1
	}
	return e.responses[idx], nil
}

func (e *fakeEvaluator) Model() string { return "test-evaluator" }

type memReports struct {
	mu      sync.Mutex
	entries map[string][][]byte
}

func (r *memReports) AppendReport(_ context.Context, sessionID string, report []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = map[string][][]byte{}
	}
	r.entries[sessionID] = append(r.entries[sessionID], append([]byte(nil), report...))
	return nil
}

func (r *memReports) latest(sessionID string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func testNormalizer() Normalizer {
	d := config.DiscoveryConfig{}.Normalize()
	return Normalizer{Reference: d.ReferenceCurrency, Rates: d.CurrencyRates}
}

func storeCandidates(names ...string) []Candidate {
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		out = append(out, Candidate{Name: n, Location: "Colombo", PriceRange: "$10-20", LeadTime: "7-10 days"})
	}
	return out
}

func acceptResponse(names ...string) []byte {
	type supplier struct {
		Name     string   `json:"name"`
		Score    float64  `json:"score"`
		Reasons  []string `json:"reasons"`
		Warnings []string `json:"warnings"`
	}
	body := struct {
		Feedback string     `json:"evaluation_feedback"`
		Notes    string     `json:"evaluation_notes"`
		Top      []supplier `json:"top_suppliers"`
	}{Feedback: "accept", Notes: "ranked by price and lead time"}
	for i, n := range names {
		body.Top = append(body.Top, supplier{Name: n, Score: float64(90 - i), Reasons: []string{"meets lead time"}, Warnings: []string{}})
	}
	b, _ := json.Marshal(body)
	return b
}

var rejectResponse = []byte(`{"evaluation_feedback":"reject","top_suppliers":[]}`)

func scenarioInput() Requirements {
	return Requirements{
		"material":           Point("zinc"),
		"region":             Point("sri lanka"),
		"delivery_time_days": AtMost(15),
	}
}

type harness struct {
	history   *memHistory
	store     *fakeStore
	web       *fakeWeb
	evaluator *fakeEvaluator
	reports   *memReports
	orch      *Orchestrator
}

func newHarness(maxRetries int) *harness {
	h := &harness{
		history:   &memHistory{},
		store:     &fakeStore{},
		web:       &fakeWeb{},
		evaluator: &fakeEvaluator{responses: [][]byte{rejectResponse}},
		reports:   &memReports{},
	}
	merger := NewMerger(h.history, 5, time.Second, nil)
	agg := NewAggregator(h.store, h.web, testNormalizer(), AggregatorOptions{StoreTimeout: time.Second, WebTimeout: time.Second}, nil, nil)
	gate := NewGate(h.evaluator, time.Second, 10, nil, nil)
	relaxer := Relaxer{Increments: map[string]float64{"delivery_time_days": 5}}
	h.orch = NewOrchestrator(merger, agg, gate, relaxer, h.history, h.reports, Options{MaxRetries: maxRetries}, nil, nil)
	return h
}
