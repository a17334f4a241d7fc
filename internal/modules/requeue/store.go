// README: Reassignment queue store backed by PostgreSQL.
package requeue

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

// The reassignment_queue table carries a partial unique index on
// (request_id) WHERE status IN ('pending', 'processing'); a second enqueue
// of the same request while one is still open is a silent no-op.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Enqueue inserts an open item, idempotently per request.
func (s *PGStore) Enqueue(ctx context.Context, item *Item) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reassignment_queue (id, request_id, status, priority, attempts, reason, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) WHERE status IN ('pending', 'processing')
		DO NOTHING`,
		string(item.ID), string(item.RequestID), string(item.Status),
		item.Priority, item.Attempts, item.Reason, item.EnqueuedAt,
	)
	return err
}

// Claim atomically moves up to limit pending items to processing and bumps
// their attempt counter. SKIP LOCKED keeps concurrent drainers from
// claiming the same items.
func (s *PGStore) Claim(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE reassignment_queue
		SET status = 'processing', attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM reassignment_queue
			WHERE status = 'pending'
			ORDER BY priority DESC, enqueued_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, request_id, status, priority, attempts, reason, last_error, enqueued_at`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var lastErr *string
		if err := rows.Scan(&it.ID, &it.RequestID, &it.Status, &it.Priority,
			&it.Attempts, &it.Reason, &lastErr, &it.EnqueuedAt); err != nil {
			return nil, err
		}
		if lastErr != nil {
			it.LastError = *lastErr
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Complete closes a processing item after offers went out.
func (s *PGStore) Complete(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reassignment_queue SET status = 'completed'
		WHERE id = $1 AND status = 'processing'`, string(id))
	return err
}

// Retry returns a processing item to pending for the next drain round.
func (s *PGStore) Retry(ctx context.Context, id types.ID, lastError string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reassignment_queue SET status = 'pending', last_error = $2
		WHERE id = $1 AND status = 'processing'`, string(id), lastError)
	return err
}

// Fail terminally closes a processing item.
func (s *PGStore) Fail(ctx context.Context, id types.ID, lastError string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reassignment_queue SET status = 'failed', last_error = $2
		WHERE id = $1 AND status = 'processing'`, string(id), lastError)
	return err
}

// RemoveOpen drops any open item for the request, used on cancellation.
func (s *PGStore) RemoveOpen(ctx context.Context, requestID types.ID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM reassignment_queue
		WHERE request_id = $1 AND status IN ('pending', 'processing')`, string(requestID))
	return err
}

// CountOpen reports queue depth for the gauge.
func (s *PGStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reassignment_queue
		WHERE status IN ('pending', 'processing')`).Scan(&n)
	return n, err
}
