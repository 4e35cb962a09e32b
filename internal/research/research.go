// Package research implements web lead discovery and page extraction on top
// of the configured search and fetch providers.
package research

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/mohammad-safakhou/sourcer/internal/research/cache"
	"github.com/mohammad-safakhou/sourcer/tools/web_fetch"
	"github.com/mohammad-safakhou/sourcer/tools/web_search"
)

// ErrNoProvider is returned when a capability was not configured.
var ErrNoProvider = errors.New("research provider not configured")

type Options struct {
	MaxResults  int
	Sites       []string
	Recency     int
	CacheTTL    time.Duration
	Concurrency int
}

// Researcher implements discovery.WebResearch.
type Researcher struct {
	searcher web_search.WebSearcher
	fetcher  web_fetch.WebFetcher
	cache    cache.Store
	opts     Options
	logger   *zap.Logger
}

// New builds a Researcher. The cache may be nil.
func New(searcher web_search.WebSearcher, fetcher web_fetch.WebFetcher, c cache.Store, opts Options, logger *zap.Logger) *Researcher {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 8
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	return &Researcher{searcher: searcher, fetcher: fetcher, cache: c, opts: opts, logger: logging.OrNop(logger).Named("research")}
}

// Search returns web leads for the query, served from cache when possible.
func (r *Researcher) Search(ctx context.Context, query string) ([]discovery.Lead, error) {
	if r.searcher == nil {
		return nil, ErrNoProvider
	}
	query = strings.TrimSpace(query)
	key := cacheKey("search", query)
	if leads, ok := r.cached(ctx, key); ok {
		r.logger.Debug("search cache hit", zap.String("query", query))
		return leads, nil
	}

	results, err := r.searcher.Discover(ctx, query, r.opts.MaxResults, r.opts.Sites, r.opts.Recency)
	if err != nil {
		return nil, err
	}
	leads := make([]discovery.Lead, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		title, link := plainText(res.Title), strings.TrimSpace(res.URL)
		if link == "" && title == "" {
			continue
		}
		if key, err := CanonicalURL(link); err == nil {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		leads = append(leads, discovery.Lead{Title: title, URL: link, Summary: plainText(res.Snippet)})
	}
	r.store(ctx, key, leads)
	r.logger.Info("web search", zap.String("query", query), zap.Int("leads", len(leads)))
	return leads, nil
}

// Extract fetches each distinct URL concurrently. Pages that fail to load
// are left out; the error is only returned when nothing could be extracted.
func (r *Researcher) Extract(ctx context.Context, urls []string) ([]discovery.Fragment, error) {
	if r.fetcher == nil {
		return nil, ErrNoProvider
	}
	urls = dedupeURLs(urls)
	slots := make([]*discovery.Fragment, len(urls))
	var firstErr error
	errs := make([]error, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := r.fetcher.Exec(gctx, u)
			if err != nil {
				errs[i] = err
				return nil
			}
			if !res.OK() {
				return nil
			}
			slots[i] = &discovery.Fragment{URL: u, Title: plainText(res.Title), Content: res.Text, Fields: SniffFields(res.Text)}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]discovery.Fragment, 0, len(urls))
	for i, f := range slots {
		if f != nil {
			out = append(out, *f)
			continue
		}
		if errs[i] != nil {
			r.logger.Warn("extract failed", zap.String("url", urls[i]), zap.Error(errs[i]))
			if firstErr == nil {
				firstErr = errs[i]
			}
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (r *Researcher) cached(ctx context.Context, key string) ([]discovery.Lead, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var leads []discovery.Lead
	if err := json.Unmarshal(raw, &leads); err != nil {
		return nil, false
	}
	return leads, true
}

func (r *Researcher) store(ctx context.Context, key string, leads []discovery.Lead) {
	if r.cache == nil || len(leads) == 0 {
		return
	}
	raw, err := json.Marshal(leads)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.opts.CacheTTL); err != nil {
		r.logger.Warn("cache write failed", zap.Error(err))
	}
}

func cacheKey(kind, s string) string {
	h := sha1.Sum([]byte(strings.ToLower(s)))
	return kind + ":" + hex.EncodeToString(h[:])
}
