package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/logging"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the Postgres persistence layer. It implements the candidate,
// history and report ports of the discovery engine.
type Store struct {
	DB     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an open handle.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, logger: logging.OrNop(logger).Named("store"), now: time.Now}
}

func (s *Store) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }
