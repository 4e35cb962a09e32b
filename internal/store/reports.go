package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

// AppendReport implements discovery.ReportStore. The payload is stored
// byte-for-byte; id and status are lifted out for indexing.
func (s *Store) AppendReport(ctx context.Context, sessionID string, report []byte, at time.Time) error {
	id, status := uuid.NewString(), ""
	if r, err := discovery.DecodeReport(report); err == nil {
		if r.ID != "" {
			id = r.ID
		}
		status = string(r.Status)
	} else {
		s.log().Warn("report payload not decodable", zap.String("session_id", sessionID), zap.Error(err))
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO reports (id, session_id, status, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
`, id, sessionID, status, report, at.UTC())
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report payload for a session.
func (s *Store) LatestReport(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT payload
FROM reports
WHERE session_id=$1
ORDER BY created_at DESC
LIMIT 1
`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return payload, nil
}
