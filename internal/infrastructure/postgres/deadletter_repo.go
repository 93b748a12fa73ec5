package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
)

type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

// EnsureSchema creates the dead_letters table when it does not exist yet.
func (r *DeadLetterRepository) EnsureSchema(ctx context.Context) error {
	const sql = `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id          TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			body        BYTEA NOT NULL,
			signature   TEXT NOT NULL DEFAULT '',
			attempts    INT NOT NULL,
			last_error  TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'dead',
			received_at TIMESTAMPTZ NOT NULL,
			dead_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create dead_letters table: %w", err)
	}
	return nil
}

// Create records an exhausted event. Inserting the same event twice is a
// no-op so redelivered duplicates cannot double up.
func (r *DeadLetterRepository) Create(ctx context.Context, rec *deadletter.Record) error {
	const sql = `
		INSERT INTO dead_letters (id, event_type, body, signature, attempts, last_error, status, received_at, dead_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, sql,
		rec.ID, rec.EventType, rec.Body, rec.Signature, rec.Attempts, rec.LastError, deadletter.StatusDead, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}

	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]*deadletter.Record, error) {
	const sql = `
		SELECT id, event_type, body, signature, attempts, last_error, status, received_at, dead_at
		FROM dead_letters
		WHERE status = 'dead'
		ORDER BY dead_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var records []*deadletter.Record
	for rows.Next() {
		rec := &deadletter.Record{}
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Body, &rec.Signature, &rec.Attempts, &rec.LastError, &rec.Status, &rec.ReceivedAt, &rec.DeadAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// ClaimForRedrive flips one dead record to redriven and returns it. Two
// concurrent redrives of the same id race on the status check, so only one
// caller gets the record back.
func (r *DeadLetterRepository) ClaimForRedrive(ctx context.Context, id string) (*deadletter.Record, error) {
	const sql = `
		UPDATE dead_letters
		SET status = 'redriven'
		WHERE id = $1 AND status = 'dead'
		RETURNING id, event_type, body, signature, attempts, last_error, status, received_at, dead_at
	`

	rec := &deadletter.Record{}
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&rec.ID, &rec.EventType, &rec.Body, &rec.Signature, &rec.Attempts, &rec.LastError, &rec.Status, &rec.ReceivedAt, &rec.DeadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, deadletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim dead letter: %w", err)
	}

	return rec, nil
}

// Release puts a claimed record back, used when re-enqueueing it failed.
func (r *DeadLetterRepository) Release(ctx context.Context, id string) error {
	const sql = `
		UPDATE dead_letters
		SET status = 'dead'
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("release dead letter: %w", err)
	}
	return nil
}
