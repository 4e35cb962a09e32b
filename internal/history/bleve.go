// Package history provides an embedded, relevance-ranked conversation log.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
)

const (
	fieldSession   = "session_id"
	fieldRole      = "role"
	fieldContent   = "content"
	fieldTimestamp = "timestamp"
)

// Store is a bleve-backed discovery.HistoryStore. With an empty path the
// index lives in memory only.
type Store struct {
	index  bleve.Index
	mu     sync.RWMutex
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) (*Store, error) {
	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(indexMapping())
	case exists(path):
		index, err = bleve.Open(path)
	default:
		index, err = bleve.New(path, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open history index: %w", err)
	}
	return &Store{index: index, logger: logging.OrNop(logger).Named("history")}, nil
}

func indexMapping() mapping.IndexMapping {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	ts := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldSession, kw)
	doc.AddFieldMappingsAt(fieldRole, kw)
	doc.AddFieldMappingsAt(fieldContent, text)
	doc.AddFieldMappingsAt(fieldTimestamp, ts)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func (s *Store) Append(_ context.Context, sessionID, role, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Index(uuid.NewString(), map[string]any{
		fieldSession:   sessionID,
		fieldRole:      role,
		fieldContent:   content,
		fieldTimestamp: at.UTC(),
	})
}

// SearchRelevant ranks turns of the given role by BM25-style relevance to
// text, breaking ties by recency. Turns from every session are eligible.
func (s *Store) SearchRelevant(ctx context.Context, text, role string, limit int) ([]discovery.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var match query.Query
	if strings.TrimSpace(text) == "" {
		match = bleve.NewMatchAllQuery()
	} else {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(fieldContent)
		match = mq
	}
	q := match
	if role != "" {
		tq := bleve.NewTermQuery(role)
		tq.SetField(fieldRole)
		q = bleve.NewConjunctionQuery(match, tq)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldSession, fieldRole, fieldContent, fieldTimestamp}
	req.SortBy([]string{"-_score", "-" + fieldTimestamp})

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}

	out := make([]discovery.Turn, 0, len(res.Hits))
	for _, hit := range res.Hits {
		t := discovery.Turn{
			ID:        hit.ID,
			SessionID: fieldString(hit.Fields, fieldSession),
			Role:      fieldString(hit.Fields, fieldRole),
			Content:   fieldString(hit.Fields, fieldContent),
			Score:     hit.Score,
		}
		if ts, err := time.Parse(time.RFC3339, fieldString(hit.Fields, fieldTimestamp)); err == nil {
			t.Timestamp = ts
		}
		out = append(out, t)
	}
	s.logger.Debug("history search", zap.String("role", role), zap.Int("hits", len(out)), zap.Uint64("total", res.Total))
	return out, nil
}

// Count reports the number of indexed turns.
func (s *Store) Count() (uint64, error) { return s.index.DocCount() }

func (s *Store) Close() error { return s.index.Close() }

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
