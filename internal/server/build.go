package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/config"
	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/evaluator"
	"github.com/mohammad-safakhou/sourcer/internal/history"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/mohammad-safakhou/sourcer/internal/research"
	research_cache "github.com/mohammad-safakhou/sourcer/internal/research/cache"
	"github.com/mohammad-safakhou/sourcer/internal/research/cache/inmemory"
	redis_cache "github.com/mohammad-safakhou/sourcer/internal/research/cache/redis"
	"github.com/mohammad-safakhou/sourcer/internal/store"
	"github.com/mohammad-safakhou/sourcer/internal/toolagent"
	"github.com/mohammad-safakhou/sourcer/provider"
	"github.com/mohammad-safakhou/sourcer/tools/web_fetch"
	"github.com/mohammad-safakhou/sourcer/tools/web_search"
)

// App is the fully wired service.
type App struct {
	Store        *store.Store
	History      discovery.HistoryStore
	Orchestrator *discovery.Orchestrator
	Agent        *toolagent.Agent
	Registry     *prometheus.Registry

	closers []io.Closer
	logger  *zap.Logger
}

// Build wires storage, web research, the evaluator and both operating modes
// from configuration. Missing web research credentials degrade to a store-only
// setup; a missing LLM key is fatal.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	log := logging.OrNop(logger)
	app := &App{Registry: prometheus.NewRegistry(), logger: log}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN(), log)
	if err != nil {
		return nil, err
	}
	app.Store = st
	app.closers = append(app.closers, st)

	hist, err := buildHistory(cfg.Storage.History, st, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.History = hist
	if h, ok := hist.(*history.Store); ok {
		app.closers = append(app.closers, h)
	}

	researcher := buildResearch(ctx, cfg, log)

	llm, err := provider.NewProvider(cfg.LLM, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	d := cfg.Discovery
	normalizer := discovery.Normalizer{Reference: d.ReferenceCurrency, Rates: d.CurrencyRates}
	metrics := discovery.NewMetrics(app.Registry)
	merger := discovery.NewMerger(hist, d.HistoryLimit, d.HistoryTimeout, log)
	aggregator := discovery.NewAggregator(st, researcher, normalizer, discovery.AggregatorOptions{
		StoreTimeout: d.StoreTimeout,
		WebTimeout:   d.WebTimeout,
	}, metrics, log)
	gate := discovery.NewGate(evaluator.New(llm, d.TopN, log), d.EvaluatorTimeout, d.TopN, metrics, log)
	app.Orchestrator = discovery.NewOrchestrator(merger, aggregator, gate, discovery.Relaxer{Increments: d.RelaxIncrements}, hist, st, discovery.Options{
		MaxRetries:     d.MaxRetries,
		SessionTimeout: d.SessionTimeout,
	}, metrics, log)

	tools := toolagent.NewToolbox(st, researcher, normalizer, toolagent.ToolboxOptions{TopN: d.TopN, MaxExtractURLs: d.MaxExtractURLs})
	app.Agent = toolagent.New(toolagent.NewLLMPlanner(llm, log), tools, st, toolagent.Options{
		StepBudget:     d.StepBudget,
		MaxDuration:    d.AgentTimeout,
		TopN:           d.TopN,
		MaxQueryLength: d.MaxQueryLength,
	}, toolagent.NewMetrics(app.Registry), log)

	log.Info("application built",
		zap.String("history_backend", cfg.Storage.History.Backend),
		zap.String("search_provider", cfg.Sources.WebSearch.Provider),
		zap.String("fetcher", cfg.Sources.WebFetch.Fetcher),
		zap.String("model", llm.Model()))
	return app, nil
}

func buildHistory(cfg config.HistoryConfig, st *store.Store, log *zap.Logger) (discovery.HistoryStore, error) {
	if cfg.Backend != "bleve" {
		return st, nil
	}
	h, err := history.New(cfg.BlevePath, log)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// buildResearch never fails: an unconfigured searcher or fetcher leaves that
// capability returning research.ErrNoProvider, which the aggregator absorbs.
func buildResearch(ctx context.Context, cfg *config.Config, log *zap.Logger) *research.Researcher {
	ws := cfg.Sources.WebSearch
	searcher, err := web_search.NewWebSearcher(web_search.Provider(ws.Provider), ws.APIKey(), ws.Timeout)
	if err != nil {
		log.Warn("web search disabled", zap.String("provider", ws.Provider), zap.Error(err))
	}
	wf := cfg.Sources.WebFetch
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(wf.Fetcher), wf.Timeout, wf.MaxChars, ws.TavilyAPIKey)
	if err != nil {
		log.Warn("web extract disabled", zap.String("fetcher", wf.Fetcher), zap.Error(err))
	}
	return research.New(searcher, fetcher, buildCache(ctx, cfg, log), research.Options{
		MaxResults: ws.MaxResults,
		CacheTTL:   ws.CacheTTL,
	}, log)
}

func buildCache(ctx context.Context, cfg *config.Config, log *zap.Logger) research_cache.Store {
	r := cfg.Storage.Redis
	if r.Enabled() {
		c := redis_cache.NewRedisStore(r.Addr(), r.Password, r.DB)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_, _, err := c.Get(pctx, "ping")
		if err == nil {
			return c
		}
		log.Warn("redis unavailable, using in-process research cache", zap.String("addr", r.Addr()), zap.Error(err))
	}
	return inmemory.NewInMemoryStore(cfg.Sources.WebSearch.CacheTTL)
}

// Routes returns the HTTP surface of the app.
func (a *App) Routes(timeout time.Duration) Routes {
	return Routes{
		Handler: &DiscoveryHandler{
			Discovery:       a.Orchestrator,
			Recommendations: a.Agent,
			Reports:         a.Store,
			Timeout:         timeout,
			Logger:          a.logger,
		},
		Health:  a.Store.Ping,
		Metrics: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	}
}

// Close releases every resource Build opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
