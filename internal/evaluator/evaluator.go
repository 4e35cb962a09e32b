// Package evaluator ranks supplier candidates with a chat-completion model.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/mohammad-safakhou/sourcer/provider"
)

const systemPrompt = `You are a world-class supply-chain analyst. You rank supplier candidates against a buyer's requirements.
Only rank suppliers that appear in the candidate list and copy their name exactly.
Score each ranked supplier from 0 to 100. Ratings, when given, use a 0-5 scale.
Answer with a single JSON object and nothing else.`

// LLMEvaluator implements discovery.Evaluator over a Provider.
type LLMEvaluator struct {
	provider provider.Provider
	topN     int
	logger   *zap.Logger
}

func New(p provider.Provider, topN int, logger *zap.Logger) *LLMEvaluator {
	if topN <= 0 {
		topN = 10
	}
	return &LLMEvaluator{provider: p, topN: topN, logger: logging.OrNop(logger).Named("evaluator")}
}

func (e *LLMEvaluator) Model() string { return e.provider.Model() }

// Invoke asks the model to rank candidates and returns its raw reply.
func (e *LLMEvaluator) Invoke(ctx context.Context, reqs discovery.Requirements, candidates []discovery.Candidate) ([]byte, error) {
	prompt, err := BuildPrompt(reqs, candidates, e.topN)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("invoking evaluator", zap.Int("candidates", len(candidates)), zap.String("model", e.provider.Model()))
	out, err := e.provider.Complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("evaluator completion: %w", err)
	}
	return []byte(out), nil
}

// BuildPrompt renders requirements and candidates as JSON alongside the
// expected response contract.
func BuildPrompt(reqs discovery.Requirements, candidates []discovery.Candidate, topN int) (string, error) {
	r, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode requirements: %w", err)
	}
	c, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	var b strings.Builder
	b.WriteString("REQUIREMENTS:\n")
	b.Write(r)
	b.WriteString("\n\nCANDIDATES:\n")
	b.Write(c)
	fmt.Fprintf(&b, `

Return JSON: {"evaluation_feedback":"accept"|"reject","evaluation_notes":string,"top_suppliers":[{"name":string,"score":number,"rating":number,"reasons":[string],"warnings":[string]}]}
- "accept" only when at least one candidate satisfies the requirements; list at most %d suppliers, best first.
- "reject" when no candidate is good enough; top_suppliers may then be empty.
- Ranges in REQUIREMENTS use {"$gte": min, "$lte": max}.`, topN)
	return b.String(), nil
}
