// Package journal persists dispatch outcomes to SQLite so operators can
// audit which handler served a capability and why fallbacks happened.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// createdAtLayout is fixed-width so lexicographic order on the created_at
// column is chronological order. RFC3339Nano trims trailing fractional
// zeros, which would sort whole-second timestamps after fractional ones in
// the same second.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Outcomes recorded per dispatch.
const (
	OutcomeSuccess     = "success"
	OutcomeExhausted   = "exhausted"
	OutcomeUnsupported = "unsupported"
)

// Record is one dispatch audit row.
type Record struct {
	RequestID  string        `json:"request_id"`
	Capability string        `json:"capability"`
	Outcome    string        `json:"outcome"`
	Handler    string        `json:"handler,omitempty"`
	Attempts   int           `json:"attempts"`
	LastError  *string       `json:"last_error,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store reads and writes dispatch records.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one dispatch outcome.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_log (request_id, capability, outcome, handler, attempts, last_error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Capability,
		rec.Outcome,
		nullable(rec.Handler),
		rec.Attempts,
		rec.LastError,
		rec.Duration.Milliseconds(),
		rec.CreatedAt.Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, capability, outcome, handler, attempts, last_error, duration_ms, created_at
		 FROM dispatch_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			handler    sql.NullString
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&rec.RequestID, &rec.Capability, &rec.Outcome, &handler,
			&rec.Attempts, &rec.LastError, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dispatch record: %w", err)
		}
		if handler.Valid {
			rec.Handler = handler.String
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records older than retention. Returns the number removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(createdAtLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dispatch records: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
