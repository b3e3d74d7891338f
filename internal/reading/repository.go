package reading

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists readings.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Append stores one reading.
	Append(ctx context.Context, rd Reading) error

	// Recent returns up to limit readings for channel observed at or after
	// since, keeping the newest, ordered oldest first.
	Recent(ctx context.Context, channel Channel, since time.Time, limit int) ([]Reading, error)
}

// SQLiteRepository implements Repository on the readings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a reading repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts rd with observed_at as unix nanoseconds.
func (r *SQLiteRepository) Append(ctx context.Context, rd Reading) error {
	if !rd.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, rd.Channel)
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO readings (channel, value, observed_at) VALUES (?, ?, ?)",
		string(rd.Channel),
		rd.Value,
		rd.ObservedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Recent returns the newest readings in the window, oldest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - channel: Channel to query
//   - since: Inclusive lower bound on observed_at
//   - limit: Maximum readings returned; must be positive
func (r *SQLiteRepository) Recent(ctx context.Context, channel Channel, since time.Time, limit int) ([]Reading, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if limit <= 0 {
		limit = DefaultMaxSamples
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT value, observed_at FROM readings
		 WHERE channel = ? AND observed_at >= ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		string(channel),
		since.UnixNano(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var newestFirst []Reading
	for rows.Next() {
		rd := Reading{Channel: channel}
		var observedAt int64
		if err := rows.Scan(&rd.Value, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		rd.ObservedAt = time.Unix(0, observedAt)
		newestFirst = append(newestFirst, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	out := make([]Reading, len(newestFirst))
	for i, rd := range newestFirst {
		out[len(newestFirst)-1-i] = rd
	}
	return out, nil
}
