package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidQuery is returned for a history query without a register name
// or with an inverted time range.
var ErrInvalidQuery = errors.New("history: invalid query")

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Sample is one recorded register value.
type Sample struct {
	Register   string    `json:"register"`
	Value      any       `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Query selects samples of one register, newest first.
type Query struct {
	Register string
	Since    time.Time // optional, inclusive
	Until    time.Time // optional, exclusive
	Limit    int       // default 100, max 1000
}

// Repository stores register samples.
type Repository interface {
	Record(ctx context.Context, samples []Sample) error
	History(ctx context.Context, q Query) ([]Sample, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository keeps samples in the register_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts samples in one transaction.
func (r *SQLiteRepository) Record(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting history transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO register_history (register, value, recorded_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		value, err := json.Marshal(s.Value)
		if err != nil {
			return fmt.Errorf("encoding %s value: %w", s.Register, err)
		}
		at := s.RecordedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, s.Register, string(value), at.UnixMilli()); err != nil {
			return fmt.Errorf("inserting %s sample: %w", s.Register, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// History returns samples matching q, newest first.
func (r *SQLiteRepository) History(ctx context.Context, q Query) ([]Sample, error) {
	if q.Register == "" {
		return nil, fmt.Errorf("%w: register is required", ErrInvalidQuery)
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return nil, fmt.Errorf("%w: since must be before until", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	query := "SELECT value, recorded_at FROM register_history WHERE register = ?"
	args := []any{q.Register}
	if !q.Since.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		query += " AND recorded_at < ?"
		args = append(args, q.Until.UnixMilli())
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := []Sample{}
	for rows.Next() {
		var raw string
		var ms int64
		if err := rows.Scan(&raw, &ms); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		s := Sample{Register: q.Register, RecordedAt: time.UnixMilli(ms).UTC()}
		if err := json.Unmarshal([]byte(raw), &s.Value); err != nil {
			return nil, fmt.Errorf("decoding %s value: %w", q.Register, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}

// Prune deletes samples recorded before the given time.
//
// Returns:
//   - int64: Number of rows removed
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM register_history WHERE recorded_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, nil
}
