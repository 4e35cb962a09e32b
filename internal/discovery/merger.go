package discovery

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"go.uber.org/zap"
)

// Merger combines new input with relevant requirement history.
type Merger struct {
	history HistoryStore
	limit   int
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewMerger(history HistoryStore, limit int, timeout time.Duration, logger *zap.Logger) *Merger {
	if limit <= 0 {
		limit = 5
	}
	return &Merger{history: history, limit: limit, timeout: timeout, now: time.Now, log: logging.OrNop(logger).Named("merger")}
}

// Merge logs input as a user turn and then fills fields absent from input
// with values from the most relevant historical requirement turns. History
// errors never fail the merge.
func (m *Merger) Merge(ctx context.Context, sessionID string, input Requirements) Requirements {
	content, err := EncodeRequirementsTurn(input)
	if err != nil {
		m.log.Warn("encode requirements turn", zap.String("session_id", sessionID), zap.Error(err))
	} else if m.history != nil {
		actx, cancel := m.callContext(ctx)
		err = m.history.Append(actx, sessionID, RoleUser, content, m.now().UTC())
		cancel()
		if err != nil {
			m.log.Warn("append user turn", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return m.fill(ctx, sessionID, input, content)
}

// Refill re-applies history to an already logged requirement set without
// appending a new turn. Used when re-entering PARSE after a relaxation.
func (m *Merger) Refill(ctx context.Context, sessionID string, reqs Requirements) Requirements {
	content, _ := EncodeRequirementsTurn(reqs)
	return m.fill(ctx, sessionID, reqs, content)
}

func (m *Merger) fill(ctx context.Context, sessionID string, input Requirements, self string) Requirements {
	merged := input.Clone()
	if m.history == nil {
		return merged
	}
	query := input.SearchText()
	if query == "" {
		return merged
	}
	sctx, cancel := m.callContext(ctx)
	defer cancel()
	turns, err := m.history.SearchRelevant(sctx, query, RoleUser, m.limit+1)
	if err != nil {
		m.log.Warn("search history", zap.String("session_id", sessionID), zap.Error(err))
		return merged
	}
	used := 0
	for _, t := range turns {
		if used == m.limit {
			break
		}
		if t.Content == self {
			continue
		}
		used++
		past, err := DecodeRequirementsTurn(t.Content)
		if err != nil {
			m.log.Debug("skip history turn", zap.String("turn_id", t.ID), zap.Error(err))
			continue
		}
		if n := merged.Fill(past); n > 0 {
			m.log.Debug("filled from history", zap.String("turn_id", t.ID), zap.Int("fields", n))
		}
	}
	return merged
}

func (m *Merger) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}
