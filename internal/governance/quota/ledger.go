package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageLedger is the append-only log of AI usage attempts. Counting queries
// consider only succeeded rows (failed attempts never consume quota) and
// compute the day/month boundaries in UTC on the database clock, never from
// caller-supplied timestamps.
type UsageLedger interface {
	Append(ctx context.Context, rec *UsageRecord) (int64, error)
	CountDaily(ctx context.Context, callerID uuid.UUID) (int, error)
	CountMonthly(ctx context.Context, callerID uuid.UUID) (int, error)
	CountGlobalDaily(ctx context.Context) (int, error)
	CountGlobalMonthly(ctx context.Context) (int, error)
}

type ledgerRepository struct {
	pool *pgxpool.Pool
}

// NewUsageLedger creates a PostgreSQL-backed UsageLedger.
func NewUsageLedger(pool *pgxpool.Pool) UsageLedger {
	return &ledgerRepository{pool: pool}
}

// Append inserts one attempt row. There is no dedup key: identical attempts
// are distinct events.
func (r *ledgerRepository) Append(ctx context.Context, rec *UsageRecord) (int64, error) {
	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO usage_log
		   (caller_id, role, operation_kind, provider, model,
		    estimated_cost, succeeded, error_message, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		rec.CallerID, rec.Role, rec.OperationKind, rec.Provider, rec.Model,
		rec.EstimatedCost, rec.Succeeded, errMsg, rec.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("appending usage record: %w", err)
	}
	return id, nil
}

func (r *ledgerRepository) CountDaily(ctx context.Context, callerID uuid.UUID) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM usage_log
		 WHERE caller_id = $1 AND succeeded
		   AND timezone('utc', created_at) >= date_trunc('day', timezone('utc', now()))`,
		callerID)
}

func (r *ledgerRepository) CountMonthly(ctx context.Context, callerID uuid.UUID) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM usage_log
		 WHERE caller_id = $1 AND succeeded
		   AND timezone('utc', created_at) >= date_trunc('month', timezone('utc', now()))`,
		callerID)
}

func (r *ledgerRepository) CountGlobalDaily(ctx context.Context) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM usage_log
		 WHERE succeeded
		   AND timezone('utc', created_at) >= date_trunc('day', timezone('utc', now()))`)
}

func (r *ledgerRepository) CountGlobalMonthly(ctx context.Context) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM usage_log
		 WHERE succeeded
		   AND timezone('utc', created_at) >= date_trunc('month', timezone('utc', now()))`)
}

func (r *ledgerRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage records: %w", err)
	}
	return n, nil
}
