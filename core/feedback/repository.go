package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type entryRow struct {
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	ActorID   string `db:"actor_id"`
	Body      string `db:"body"`
	CreatedAt int64  `db:"created_at"`
}

// SQLRepository stores entries in the feedback table.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository wraps an open, migrated database.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Add inserts one entry.
func (r *SQLRepository) Add(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO feedback (id, actor_id, body, created_at) VALUES (?, ?, ?, ?)`),
		e.ID, e.ActorID, e.Body, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("feedback: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (r *SQLRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT seq, id, actor_id, body, created_at FROM feedback ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("feedback: load: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			ID:        row.ID,
			ActorID:   row.ActorID,
			Body:      row.Body,
			CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return out, nil
}
