// Package toolagent is the tool-driven discovery mode: a planner picks store
// queries, web searches, extractions and completeness checks until it
// finalizes a supplier list or runs out of steps.
package toolagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/budget"
	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
)

var tracer = otel.Tracer("github.com/mohammad-safakhou/sourcer/internal/toolagent")

var ErrInvalidQuery = errors.New("invalid query")

// CandidateWriter persists finalized suppliers.
type CandidateWriter interface {
	SaveCandidates(ctx context.Context, cands []discovery.Candidate) (int, error)
}

// Options configures an Agent. MaxDuration of zero bounds a run by steps only.
type Options struct {
	StepBudget     int
	MaxDuration    time.Duration
	TopN           int
	MaxQueryLength int
	SaveTimeout    time.Duration
}

// Result is the outcome of a run. Suppliers is empty unless Status is success.
type Result struct {
	Suppliers []discovery.Candidate `json:"suppliers"`
	Status    discovery.Status      `json:"status"`
	Warnings  []string              `json:"warnings,omitempty"`
	Steps     int                   `json:"steps"`
}

type Agent struct {
	planner Planner
	tools   *Toolbox
	writer  CandidateWriter
	opts    Options
	metrics *Metrics
	log     *zap.Logger
}

func New(planner Planner, tools *Toolbox, writer CandidateWriter, opts Options, metrics *Metrics, logger *zap.Logger) *Agent {
	if opts.StepBudget <= 0 {
		opts.StepBudget = 25
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = 2000
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	return &Agent{
		planner: planner,
		tools:   tools,
		writer:  writer,
		opts:    opts,
		metrics: metrics,
		log:     logging.OrNop(logger).Named("toolagent"),
	}
}

// Run drives the planner until it finalizes or the step or time budget is spent.
// Only an invalid query is returned as an error; everything else ends in a
// success or incomplete result.
func (a *Agent) Run(ctx context.Context, query string, history []ChatMessage) (Result, error) {
	query = strings.TrimSpace(query)
	if n := utf8.RuneCountInString(query); n == 0 || n > a.opts.MaxQueryLength {
		return Result{}, fmt.Errorf("%w: length must be between 1 and %d characters", ErrInvalidQuery, a.opts.MaxQueryLength)
	}
	ctx, span := tracer.Start(ctx, "toolagent.run")
	defer span.End()

	catalogue := a.tools.Catalogue()
	mon := budget.NewMonitor(budget.Config{MaxSteps: a.opts.StepBudget, MaxTime: a.opts.MaxDuration})
	var (
		observations []Observation
		warnings     []string
		steps        int
	)
	for {
		if ctx.Err() != nil {
			a.log.Warn("run cancelled", zap.Int("steps", steps), zap.Error(ctx.Err()))
			break
		}
		if err := mon.Spend(); err != nil {
			a.log.Warn("run out of budget", zap.Int("steps", steps), zap.Error(err))
			break
		}
		steps++
		action, err := a.planner.Next(ctx, PlannerInput{
			Query:          query,
			TopN:           a.opts.TopN,
			Tools:          catalogue,
			ChatHistory:    history,
			Observations:   observations,
			RemainingSteps: mon.Remaining() + 1,
		})
		if err != nil {
			a.log.Warn("planner failed", zap.Int("step", steps), zap.Error(err))
			observations = append(observations, Observation{Step: steps, Tool: "planner", Error: err.Error()})
			continue
		}

		out, err := a.tools.Call(ctx, action)
		a.metrics.toolCall(toolLabel(action.Tool), err)
		obs := Observation{Step: steps, Tool: action.Tool, Reason: action.Reason, Result: out.Result, Warning: out.Warning}
		if out.Warning != "" {
			warnings = append(warnings, out.Warning)
		}
		if err != nil {
			a.log.Info("tool failed", zap.Int("step", steps), zap.String("tool", action.Tool), zap.Error(err))
			obs.Error = err.Error()
			observations = append(observations, obs)
			continue
		}
		a.log.Debug("tool called", zap.Int("step", steps), zap.String("tool", action.Tool), zap.String("reason", action.Reason))

		if action.Tool == ToolFinalize {
			suppliers := out.Final
			a.save(ctx, suppliers)
			span.SetAttributes(attribute.String("toolagent.status", string(discovery.StatusSuccess)), attribute.Int("toolagent.steps", steps))
			a.metrics.run(discovery.StatusSuccess, steps)
			a.log.Info("run finalized", zap.Int("steps", steps), zap.Int("suppliers", len(suppliers)))
			return Result{Suppliers: suppliers, Status: discovery.StatusSuccess, Warnings: warnings, Steps: steps}, nil
		}
		observations = append(observations, obs)
	}

	span.SetAttributes(attribute.String("toolagent.status", string(discovery.StatusIncomplete)), attribute.Int("toolagent.steps", steps))
	a.metrics.run(discovery.StatusIncomplete, steps)
	a.log.Warn("run ended without finalize", zap.Int("steps", steps))
	return Result{Suppliers: []discovery.Candidate{}, Status: discovery.StatusIncomplete, Warnings: warnings, Steps: steps}, nil
}

// save writes finalized suppliers back to the store. Failures are logged only.
func (a *Agent) save(ctx context.Context, suppliers []discovery.Candidate) {
	if a.writer == nil {
		return
	}
	rows := make([]discovery.Candidate, len(suppliers))
	for i, s := range suppliers {
		s.Provenance = discovery.ProvenanceWeb
		rows[i] = s
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.SaveTimeout)
	defer cancel()
	n, err := a.writer.SaveCandidates(sctx, rows)
	if err != nil {
		a.log.Error("save finalized suppliers", zap.Error(err))
		return
	}
	a.log.Info("saved finalized suppliers", zap.Int("rows", n))
}

func toolLabel(name string) string {
	switch name {
	case ToolQueryStore, ToolWebSearch, ToolWebExtract, ToolValidate, ToolFinalize:
		return name
	default:
		return "unknown"
	}
}
