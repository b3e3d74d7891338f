package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryEntry is one recorded status change.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	State     State     `json:"state"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves status change history.
type HistoryRepository interface {
	// Record appends one change.
	Record(ctx context.Context, change Change) error

	// History returns up to limit entries for key, newest first.
	History(ctx context.Context, key string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on status_history.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteHistoryRepository creates a history repository over db.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, now: time.Now}
}

// Record inserts a status_history row for change.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - change: The accepted change; its UpdatedAt becomes created_at
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Record(ctx context.Context, change Change) error {
	if change.Status.Key == "" {
		return ErrInvalidKey
	}
	source := change.Source
	if source == "" {
		source = SourceBus
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO status_history (device_id, status, source, created_at) VALUES (?, ?, ?, ?)",
		change.Status.Key,
		string(change.Status.State),
		string(source),
		change.Status.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

// History returns recent entries for key, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - key: Device key
//   - limit: Maximum entries (default 50, max 500)
func (r *SQLiteHistoryRepository) History(ctx context.Context, key string, limit int) ([]HistoryEntry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, status, source, created_at
		 FROM status_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var state, source, createdAt string
		if err := rows.Scan(&e.ID, &e.Key, &state, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning status history: %w", err)
		}
		e.State = State(state)
		e.Source = Source(source)
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM status_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting status history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
