package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Fields that hold lists in the candidate store and are matched by membership.
var listFields = map[string]bool{"certifications": true, "specialties": true}

// PreferenceField is the store field an optional qualitative preference is matched against.
const PreferenceField = "esg_score"

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	StoreTimeout time.Duration
	WebTimeout   time.Duration
	// QueryFields are the requirement fields joined into the web query, in order.
	QueryFields []string
}

// Aggregator gathers candidates from the candidate store and web research.
type Aggregator struct {
	store      CandidateStore
	web        WebResearch
	normalizer Normalizer
	opts       AggregatorOptions
	metrics    *Metrics
	log        *zap.Logger
}

func NewAggregator(store CandidateStore, web WebResearch, normalizer Normalizer, opts AggregatorOptions, metrics *Metrics, logger *zap.Logger) *Aggregator {
	if len(opts.QueryFields) == 0 {
		opts.QueryFields = []string{"material", "region"}
	}
	return &Aggregator{store: store, web: web, normalizer: normalizer, opts: opts, metrics: metrics, log: logging.OrNop(logger).Named("aggregator")}
}

// Explore queries both sources concurrently and returns the concatenation of
// store results followed by web results, normalized and tagged with
// provenance. A failing source contributes zero candidates.
func (a *Aggregator) Explore(ctx context.Context, reqs Requirements, preference string) []Candidate {
	ctx, span := tracer.Start(ctx, "discovery.explore")
	defer span.End()

	var (
		wg        sync.WaitGroup
		fromStore []Candidate
		fromWeb   []Candidate
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fromStore = a.queryStore(ctx, reqs, preference)
	}()
	go func() {
		defer wg.Done()
		fromWeb = a.searchWeb(ctx, reqs)
	}()
	wg.Wait()

	merged := make([]Candidate, 0, len(fromStore)+len(fromWeb))
	merged = append(merged, fromStore...)
	merged = append(merged, fromWeb...)
	out, dropped := a.normalizer.NormalizeAll(merged)
	for _, err := range dropped {
		a.log.Info("drop candidate", zap.Error(err))
	}
	a.metrics.droppedCandidates(len(dropped))
	span.SetAttributes(
		attribute.Int("candidates.store", len(fromStore)),
		attribute.Int("candidates.web", len(fromWeb)),
		attribute.Int("candidates.dropped", len(dropped)),
	)
	return out
}

func (a *Aggregator) queryStore(ctx context.Context, reqs Requirements, preference string) []Candidate {
	if a.store == nil {
		return nil
	}
	ctx, cancel := withTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()
	got, err := a.store.Query(ctx, BuildFilter(reqs, preference))
	if err != nil {
		a.metrics.sourceFailure(ProvenanceStore)
		a.log.Warn("candidate store query failed", zap.Error(err))
		return nil
	}
	for i := range got {
		got[i].Provenance = ProvenanceStore
	}
	return got
}

func (a *Aggregator) searchWeb(ctx context.Context, reqs Requirements) []Candidate {
	if a.web == nil {
		return nil
	}
	query := WebQuery(reqs, a.opts.QueryFields)
	if query == "" {
		return nil
	}
	ctx, cancel := withTimeout(ctx, a.opts.WebTimeout)
	defer cancel()
	leads, err := a.web.Search(ctx, query)
	if err != nil {
		a.metrics.sourceFailure(ProvenanceWeb)
		a.log.Warn("web search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	out := make([]Candidate, 0, len(leads))
	for _, l := range leads {
		name := strings.TrimSpace(l.Title)
		if name == "" {
			name = l.URL
		}
		if name == "" {
			continue
		}
		c := Candidate{Name: name, Provenance: ProvenanceWeb, SourceURL: l.URL}
		if l.Summary != "" {
			c.Extra = map[string]any{"summary": l.Summary}
		}
		out = append(out, c)
	}
	return out
}

// BuildFilter translates requirements into a store predicate. Scalar point
// constraints become equality, list fields membership and ranges bounds. A
// non-empty preference is matched against PreferenceField.
func BuildFilter(reqs Requirements, preference string) Filter {
	f := Filter{
		Equals:  map[string]any{},
		In:      map[string][]string{},
		AtMost:  map[string]float64{},
		AtLeast: map[string]float64{},
	}
	for field, c := range reqs {
		switch c.Kind {
		case RangeConstraint:
			if c.Max != nil {
				f.AtMost[field] = *c.Max
			}
			if c.Min != nil {
				f.AtLeast[field] = *c.Min
			}
		case PointConstraint:
			if list, ok := c.Value.([]string); ok {
				f.In[field] = list
				continue
			}
			if listFields[field] {
				f.In[field] = []string{c.Text()}
				continue
			}
			f.Equals[field] = c.Value
		}
	}
	if p := strings.TrimSpace(preference); p != "" {
		f.Equals[PreferenceField] = p
	}
	return f
}

// WebQuery builds "<material> suppliers in <region>" style text from the
// dominant requirement fields.
func WebQuery(reqs Requirements, fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	head := reqs.String(fields[0])
	var rest string
	if len(fields) > 1 {
		rest = reqs.SearchText(fields[1:]...)
	}
	switch {
	case head != "" && rest != "":
		return head + " suppliers in " + rest
	case head != "":
		return head + " suppliers"
	case rest != "":
		return "suppliers in " + rest
	default:
		return ""
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
