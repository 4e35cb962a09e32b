package discovery

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one logged conversation entry.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score,omitempty"`
}

// HistoryStore is the append-only conversation log. SearchRelevant ranks by
// text relevance then recency and may return turns from any session.
type HistoryStore interface {
	Append(ctx context.Context, sessionID, role, content string, at time.Time) error
	SearchRelevant(ctx context.Context, text, role string, limit int) ([]Turn, error)
}

// Filter is a store-native predicate built from requirement fields.
type Filter struct {
	Equals  map[string]any
	In      map[string][]string
	AtMost  map[string]float64
	AtLeast map[string]float64
	Text    string
	Limit   int
}

func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && len(f.In) == 0 && len(f.AtMost) == 0 && len(f.AtLeast) == 0 && f.Text == ""
}

// CandidateStore is the structured supplier repository.
type CandidateStore interface {
	Query(ctx context.Context, f Filter) ([]Candidate, error)
}

// Lead is an unstructured web search hit.
type Lead struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// Fragment is content extracted from a single URL.
type Fragment struct {
	URL     string         `json:"url"`
	Title   string         `json:"title,omitempty"`
	Content string         `json:"content"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// WebResearch searches the web and extracts page content.
type WebResearch interface {
	Search(ctx context.Context, query string) ([]Lead, error)
	Extract(ctx context.Context, urls []string) ([]Fragment, error)
}

// Evaluator ranks candidates against requirements. The response is expected
// to be a JSON object but is not trusted.
type Evaluator interface {
	Invoke(ctx context.Context, reqs Requirements, candidates []Candidate) ([]byte, error)
	Model() string
}

// ReportStore persists encoded reports.
type ReportStore interface {
	AppendReport(ctx context.Context, sessionID string, report []byte, at time.Time) error
}
