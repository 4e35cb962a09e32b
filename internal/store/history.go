package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

// Append implements discovery.HistoryStore.
func (s *Store) Append(ctx context.Context, sessionID, role, content string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO chat_history (id, session_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`, uuid.NewString(), sessionID, role, content, at.UTC())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// SearchRelevant ranks turns by ts_rank over an OR of the text's terms,
// then by recency. With no usable terms it returns the most recent turns.
func (s *Store) SearchRelevant(ctx context.Context, text, role string, limit int) ([]discovery.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	tsq := orTSQuery(text)
	var (
		q    string
		args []any
	)
	if tsq == "" {
		q = `
SELECT id, session_id, role, content, created_at, 0::float8 AS score
FROM chat_history
WHERE ($1 = '' OR role = $1)
ORDER BY created_at DESC
LIMIT $2
`
		args = []any{role, limit}
	} else {
		q = `
SELECT id, session_id, role, content, created_at, ts_rank(content_tsv, q)::float8 AS score
FROM chat_history, to_tsquery('english', $1) q
WHERE ($2 = '' OR role = $2) AND content_tsv @@ q
ORDER BY score DESC, created_at DESC
LIMIT $3
`
		args = []any{tsq, role, limit}
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()
	var out []discovery.Turn
	for rows.Next() {
		var t discovery.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Timestamp, &t.Score); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var termRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// orTSQuery turns free text into a to_tsquery expression that matches any term.
func orTSQuery(text string) string {
	terms := termRe.FindAllString(strings.ToLower(text), -1)
	seen := map[string]bool{}
	var out []string
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return strings.Join(out, " | ")
}
