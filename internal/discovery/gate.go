package discovery

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

//go:embed evaluation_schema.json
var evaluationSchemaJSON string

// ErrMalformedEvaluation marks an evaluator response that failed parsing or validation.
var ErrMalformedEvaluation = errors.New("malformed evaluation")

// Feedback is the evaluation signal.
type Feedback string

const (
	FeedbackAccept Feedback = "accept"
	FeedbackReject Feedback = "reject"
)

// Flags attached to ranked candidates by tolerant validation.
const (
	FlagRatingOutOfRange = "rating_out_of_range"
)

// RatingBounds is the declared range of rating-like fields.
var RatingBounds = Range{Min: 0, Max: 5}

// RankedCandidate is one evaluator-selected candidate.
type RankedCandidate struct {
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Rating    *float64  `json:"rating,omitempty"`
	Reasons   []string  `json:"reasons"`
	Warnings  []string  `json:"warnings"`
	Flags     []string  `json:"flags,omitempty"`
	Candidate Candidate `json:"candidate"`
}

// Evaluation is the gate's decision.
type Evaluation struct {
	Feedback Feedback
	Ranked   []RankedCandidate
	Model    string
	Notes    string
}

type rawEvaluation struct {
	Feedback     string `json:"evaluation_feedback"`
	Notes        string `json:"evaluation_notes"`
	TopSuppliers []struct {
		Name     string   `json:"name"`
		Score    float64  `json:"score"`
		Rating   *float64 `json:"rating"`
		Reasons  []string `json:"reasons"`
		Warnings []string `json:"warnings"`
	} `json:"top_suppliers"`
}

var (
	compileOnce      sync.Once
	evaluationSchema *jsonschema.Schema
	compileErr       error
)

// EvaluationSchema returns the compiled schema for evaluator responses.
func EvaluationSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("evaluation_schema.json", strings.NewReader(evaluationSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("evaluation_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile evaluation schema: %w", err)
			return
		}
		evaluationSchema = schema
	})
	return evaluationSchema, compileErr
}

// Gate invokes the evaluator and turns its untrusted output into a decision.
type Gate struct {
	evaluator Evaluator
	timeout   time.Duration
	topN      int
	metrics   *Metrics
	log       *zap.Logger
}

func NewGate(evaluator Evaluator, timeout time.Duration, topN int, metrics *Metrics, logger *zap.Logger) *Gate {
	if topN <= 0 {
		topN = 10
	}
	return &Gate{evaluator: evaluator, timeout: timeout, topN: topN, metrics: metrics, log: logging.OrNop(logger).Named("gate")}
}

// Evaluate never fails: invocation errors, timeouts and malformed responses
// all yield a reject with no candidates.
func (g *Gate) Evaluate(ctx context.Context, reqs Requirements, candidates []Candidate) Evaluation {
	ctx, span := tracer.Start(ctx, "discovery.evaluate")
	defer span.End()

	model := g.evaluator.Model()
	reject := Evaluation{Feedback: FeedbackReject, Model: model}

	cctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	raw, err := g.evaluator.Invoke(cctx, reqs, candidates)
	if err != nil {
		g.log.Warn("evaluator invocation failed", zap.Error(err))
		g.metrics.evaluation("error")
		span.SetAttributes(attribute.String("evaluation.outcome", "error"))
		return reject
	}
	ev, err := ParseEvaluation(raw, candidates, g.topN)
	if err != nil {
		g.log.Warn("evaluator output rejected", zap.Error(err))
		g.metrics.evaluation("malformed")
		span.SetAttributes(attribute.String("evaluation.outcome", "malformed"))
		return reject
	}
	ev.Model = model
	g.metrics.evaluation(string(ev.Feedback))
	span.SetAttributes(
		attribute.String("evaluation.outcome", string(ev.Feedback)),
		attribute.Int("evaluation.ranked", len(ev.Ranked)),
	)
	return ev
}

// ParseEvaluation validates an evaluator response against the schema and the
// current candidate set. Every ranked name must refer to an existing
// candidate, names may not repeat, at most topN may be returned and an accept
// must carry at least one candidate. Out-of-range ratings are flagged, not
// rejected. A reject always comes back with an empty list.
func ParseEvaluation(raw []byte, candidates []Candidate, topN int) (Evaluation, error) {
	body := stripCodeFence(raw)
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}
	schema, err := EvaluationSchema()
	if err != nil {
		return Evaluation{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}
	var parsed rawEvaluation
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}

	fb := normalizeFeedback(parsed.Feedback)
	if fb == FeedbackReject {
		return Evaluation{Feedback: FeedbackReject, Notes: parsed.Notes}, nil
	}
	if len(parsed.TopSuppliers) == 0 {
		return Evaluation{}, fmt.Errorf("%w: accept without candidates", ErrMalformedEvaluation)
	}
	if len(parsed.TopSuppliers) > topN {
		return Evaluation{}, fmt.Errorf("%w: %d candidates exceeds limit %d", ErrMalformedEvaluation, len(parsed.TopSuppliers), topN)
	}

	byName := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		key := candidateKey(c.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = c
		}
	}
	seen := map[string]bool{}
	ranked := make([]RankedCandidate, 0, len(parsed.TopSuppliers))
	for _, s := range parsed.TopSuppliers {
		key := candidateKey(s.Name)
		c, ok := byName[key]
		if !ok {
			return Evaluation{}, fmt.Errorf("%w: unknown candidate %q", ErrMalformedEvaluation, s.Name)
		}
		if seen[key] {
			return Evaluation{}, fmt.Errorf("%w: duplicate candidate %q", ErrMalformedEvaluation, s.Name)
		}
		seen[key] = true
		rc := RankedCandidate{
			Name:      c.Name,
			Score:     s.Score,
			Rating:    s.Rating,
			Reasons:   nonNil(s.Reasons),
			Warnings:  nonNil(s.Warnings),
			Candidate: c,
		}
		if outOfRange(s.Rating) || outOfRange(c.Rating) {
			rc.Flags = append(rc.Flags, FlagRatingOutOfRange)
		}
		ranked = append(ranked, rc)
	}
	return Evaluation{Feedback: FeedbackAccept, Ranked: ranked, Notes: parsed.Notes}, nil
}

func normalizeFeedback(s string) Feedback {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "good":
		return FeedbackAccept
	default:
		return FeedbackReject
	}
}

func outOfRange(r *float64) bool {
	return r != nil && (*r < RatingBounds.Min || *r > RatingBounds.Max)
}

func candidateKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
