// Package syncx is an append-only change log in the state database. Every
// process writing the same database appends to it and tails it, which is
// how writes made by one process reach the others.
package syncx

import (
	"context"
	"database/sql"
	"time"
)

type Event struct {
	Seq       int64
	Origin    string
	Key       string
	Data      string
	Removed   bool
	CreatedAt int64
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Append records e through x, which may be a *sql.Tx so the event commits
// together with the write it describes.
func (r *EventRepo) Append(ctx context.Context, x execer, e Event) error {
	if x == nil {
		x = r.db
	}
	removed := 0
	if e.Removed {
		removed = 1
	}
	_, err := x.ExecContext(ctx,
		`INSERT INTO event_log (origin, key, data, removed, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.Origin, e.Key, e.Data, removed, time.Now().UnixMilli())
	return err
}

// After returns up to limit events with seq > after, oldest first.
func (r *EventRepo) After(ctx context.Context, after int64, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, origin, key, data, removed, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var removed int
		if err := rows.Scan(&e.Seq, &e.Origin, &e.Key, &e.Data, &removed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Removed = removed != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest is the highest seq written so far, 0 for an empty log.
func (r *EventRepo) Latest(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM event_log`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// Prune drops events older than d.
func (r *EventRepo) Prune(ctx context.Context, d time.Duration) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM event_log WHERE created_at < $1`,
		time.Now().Add(-d).UnixMilli())
	return err
}
