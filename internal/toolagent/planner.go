package toolagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/mohammad-safakhou/sourcer/provider"
	"github.com/mohammad-safakhou/sourcer/utils"
)

var ErrInvalidAction = errors.New("invalid planner action")

// Action is a single planner decision.
type Action struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Reason string         `json:"reason"`
}

// ChatMessage is a prior conversation turn supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// Observation records the outcome of one step and is fed back to the planner.
type Observation struct {
	Step    int    `json:"step"`
	Tool    string `json:"tool"`
	Reason  string `json:"reason,omitempty"`
	Result  any    `json:"result,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PlannerInput is everything the planner sees before choosing an action.
type PlannerInput struct {
	Query          string        `json:"query"`
	TopN           int           `json:"top_n"`
	Tools          []Tool        `json:"tools"`
	ChatHistory    []ChatMessage `json:"chat_history,omitempty"`
	Observations   []Observation `json:"observations"`
	RemainingSteps int           `json:"remaining_steps"`
}

// Planner chooses the next action.
type Planner interface {
	Next(ctx context.Context, in PlannerInput) (Action, error)
}

const plannerSystemPrompt = `You are a supplier sourcing assistant that finds and ranks suppliers by calling tools.
- Call exactly one tool per reply.
- Start with query_store, then use web_search and web_extract to fill gaps.
- Use validate_supplier_data to check records before finalizing.
- Only report suppliers you found through tools; never invent contact details.
- Call finalize_supplier_search before remaining_steps reaches zero, even with fewer suppliers than requested.
- Always include a short reason.`

const actionContract = `Return JSON: {"tool":string,"args":object,"reason":string}`

// LLMPlanner asks a chat-completion model for the next action in JSON mode.
type LLMPlanner struct {
	provider         provider.Provider
	maxObservations  int
	observationChars int
	logger           *zap.Logger
}

func NewLLMPlanner(p provider.Provider, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{
		provider:         p,
		maxObservations:  12,
		observationChars: 24000,
		logger:           logging.OrNop(logger).Named("planner"),
	}
}

func (p *LLMPlanner) Next(ctx context.Context, in PlannerInput) (Action, error) {
	if len(in.Observations) > p.maxObservations {
		in.Observations = in.Observations[len(in.Observations)-p.maxObservations:]
	}
	b, err := json.Marshal(in)
	if err != nil {
		return Action{}, fmt.Errorf("encode planner input: %w", err)
	}
	user := "INPUT:\n" + utils.Truncate(string(b), p.observationChars) + "\n" + actionContract
	out, err := p.provider.Complete(ctx, plannerSystemPrompt, user, true)
	if err != nil {
		return Action{}, fmt.Errorf("planner completion: %w", err)
	}
	a, err := ParseAction(out)
	if err != nil {
		p.logger.Debug("unusable planner reply", zap.String("reply", utils.Truncate(out, 500)), zap.Error(err))
		return Action{}, err
	}
	return a, nil
}

// ParseAction decodes a planner reply, tolerating a markdown code fence.
func ParseAction(raw string) (Action, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var a Action
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	a.Tool = strings.TrimSpace(a.Tool)
	if a.Tool == "" {
		return Action{}, fmt.Errorf("%w: missing tool", ErrInvalidAction)
	}
	if a.Args == nil {
		a.Args = map[string]any{}
	}
	return a, nil
}
