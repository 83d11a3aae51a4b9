package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nordvolt/wallbox-core/internal/infrastructure/database"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Entry is one completed charging session.
type Entry struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	EnergyKWh float64   `json:"energy_kwh"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists completed charging sessions in the transactions table.
type Store struct {
	db *database.DB
}

// NewStore creates a history store over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record appends one completed session.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - start: Session start, stored in UTC
//   - end: Session end, stored in UTC
//   - energyKWh: Delivered energy in kWh
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Record(ctx context.Context, start, end time.Time, energyKWh float64) error {
	if end.Before(start) {
		return fmt.Errorf("history: end time %v precedes start time %v", end, start)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transactions (start_time, end_time, energy_kwh) VALUES (?, ?, ?)",
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		energyKWh,
	)
	if err != nil {
		return fmt.Errorf("history: inserting transaction: %w", err)
	}
	return nil
}

// Recent returns sessions ordered newest first by end time.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []Entry: Sessions ordered by end_time DESC
//   - error: nil on success, otherwise the underlying query error
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_time, end_time, energy_kwh, created_at
		 FROM transactions
		 ORDER BY end_time DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var start, end, created string

		if err := rows.Scan(&entry.ID, &start, &end, &entry.EnergyKWh, &created); err != nil {
			return nil, fmt.Errorf("history: scanning transaction: %w", err)
		}

		if entry.StartTime, err = parseStoredTime(start); err != nil {
			return nil, err
		}
		if entry.EndTime, err = parseStoredTime(end); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseStoredTime(created); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating transactions: %w", err)
	}
	return entries, nil
}

// Prune deletes sessions that ended before the retention window.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window; sessions ending before now-olderThan are deleted
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention window must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE end_time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: pruning transactions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: counting pruned rows: %w", err)
	}
	return deleted, nil
}

// parseStoredTime accepts the RFC 3339 form this store writes plus
// SQLite's CURRENT_TIMESTAMP form used for created_at defaults.
func parseStoredTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("history: unparseable stored timestamp %q", value)
}
