package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists current status rows.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// List returns every stored row ordered by key.
	List(ctx context.Context) ([]Status, error)

	// Upsert writes st, keeping whichever of the stored and new rows has
	// the later UpdatedAt.
	Upsert(ctx context.Context, st Status) error
}

// SQLiteRepository implements Repository on the statuses table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a status repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored row ordered by key. The kind of each row is
// derived from its state.
func (r *SQLiteRepository) List(ctx context.Context) ([]Status, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, status, updated_at FROM statuses ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		var st Status
		var state string
		var updatedAt int64
		if err := rows.Scan(&st.Key, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		st.State = State(state)
		st.Kind, _ = st.State.Kind()
		st.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statuses: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates the row for st.Key.
//
// The write-behind queue runs jobs in order, but the updated_at guard keeps
// an older row from overwriting a newer one regardless.
func (r *SQLiteRepository) Upsert(ctx context.Context, st Status) error {
	if st.Key == "" {
		return ErrInvalidKey
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO statuses (id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= statuses.updated_at`,
		st.Key,
		string(st.State),
		st.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting status %s: %w", st.Key, err)
	}
	return nil
}
