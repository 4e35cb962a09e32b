package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/mohammad-safakhou/sourcer/internal/discovery")

// Options configures an Orchestrator.
type Options struct {
	MaxRetries     int
	SessionTimeout time.Duration
	PersistTimeout time.Duration
}

// Orchestrator runs the fixed discovery workflow. It holds no per-session
// state and is safe for concurrent use.
type Orchestrator struct {
	merger     *Merger
	aggregator *Aggregator
	gate       *Gate
	relaxer    Relaxer
	retry      RetryController
	history    HistoryStore
	reports    ReportStore
	opts       Options
	metrics    *Metrics
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewOrchestrator(merger *Merger, aggregator *Aggregator, gate *Gate, relaxer Relaxer, history HistoryStore, reports ReportStore, opts Options, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	return &Orchestrator{
		merger:     merger,
		aggregator: aggregator,
		gate:       gate,
		relaxer:    relaxer,
		retry:      RetryController{Max: opts.MaxRetries},
		history:    history,
		reports:    reports,
		opts:       opts,
		metrics:    metrics,
		log:        logging.OrNop(logger).Named("orchestrator"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// session is the mutable state of one run. It never leaves RunDiscovery.
type session struct {
	id           string
	preference   string
	input        Requirements
	requirements Requirements
	retries      int
	parsed       bool
	candidates   []Candidate
	evaluation   Evaluation
	status       Status
}

// RunDiscovery drives one session from PARSE to END and always returns a
// terminal report. An empty sessionID gets a generated one.
func (o *Orchestrator) RunDiscovery(ctx context.Context, sessionID string, input Requirements, preference string) Report {
	if sessionID == "" {
		sessionID = o.newID()
	}
	started := o.now()
	ctx, span := tracer.Start(ctx, "discovery.run", otelSession(sessionID))
	defer span.End()
	if o.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SessionTimeout)
		defer cancel()
	}

	s := &session{id: sessionID, preference: preference, input: input.Clone()}
	log := o.log.With(zap.String("session_id", sessionID))

	var report Report
	state := StateParse
	for state != StateEnd {
		if state != StateReport && ctx.Err() != nil {
			log.Warn("session cancelled", zap.String("state", string(state)), zap.Error(ctx.Err()))
			s.status = StatusRetryExhausted
			state = StateReport
		}
		var step Step
		switch state {
		case StateParse:
			if !s.parsed {
				s.requirements = o.merger.Merge(ctx, s.id, s.input)
				s.parsed = true
			} else {
				s.requirements = o.merger.Refill(ctx, s.id, s.requirements)
			}
		case StateExplore:
			s.candidates = o.aggregator.Explore(ctx, s.requirements, s.preference)
			step.Candidates = len(s.candidates)
			log.Info("explored", zap.Int("candidates", len(s.candidates)), zap.Int("retries", s.retries))
		case StateEvaluate:
			s.evaluation = o.gate.Evaluate(ctx, s.requirements, s.candidates)
			step.Feedback = s.evaluation.Feedback
			step.Retries = s.retries
			log.Info("evaluated", zap.String("feedback", string(s.evaluation.Feedback)), zap.Int("ranked", len(s.evaluation.Ranked)))
		case StateAdjust:
			var widened []string
			s.requirements, widened = o.relaxer.Relax(s.requirements)
			log.Info("relaxed requirements", zap.Strings("fields", widened))
		case StateRetry:
			s.retries = o.retry.Increment(s.retries)
		case StateReport:
			report = o.finish(ctx, s)
		}
		// A stage cut short by the session deadline sees empty or degraded
		// results, which must not be reported as a genuine outcome.
		if state != StateReport && ctx.Err() != nil && !(state == StateEvaluate && step.Feedback == FeedbackAccept) {
			log.Warn("session cancelled", zap.String("state", string(state)), zap.Error(ctx.Err()))
			s.status = StatusRetryExhausted
			state = StateReport
			continue
		}
		next, status := Transition(state, step, o.retry)
		if next == StateReport && s.status == "" {
			s.status = status
		}
		state = next
	}

	span.SetAttributes(attribute.String("discovery.status", string(report.Status)), attribute.Int("discovery.retries", report.Retries))
	o.metrics.run(report.Status, report.Retries, o.now().Sub(started).Seconds())
	return report
}

// finish builds the report, persists it and logs it as an assistant turn.
// Persistence runs detached from session cancellation and its failures are
// logged only.
func (o *Orchestrator) finish(ctx context.Context, s *session) Report {
	at := o.now()
	report := newReport(o.newID(), s.id, s.status, s.requirements, s.retries, s.evaluation, at)
	payload, err := EncodeReport(report)
	if err != nil {
		o.log.Error("encode report", zap.String("session_id", s.id), zap.Error(err))
		return report
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	if o.reports != nil {
		if err := o.reports.AppendReport(pctx, s.id, payload, report.CreatedAt); err != nil {
			o.log.Error("persist report", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	if o.history != nil {
		content, err := EncodeReportTurn(payload)
		if err == nil {
			err = o.history.Append(pctx, s.id, RoleAssistant, content, report.CreatedAt)
		}
		if err != nil {
			o.log.Error("log report turn", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	o.log.Info("session finished", zap.String("session_id", s.id), zap.String("status", string(report.Status)), zap.Int("retries", report.Retries))
	return report
}

func otelSession(id string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("discovery.session_id", id))
}
