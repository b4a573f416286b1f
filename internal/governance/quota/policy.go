package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoActivePolicy is returned when no policy row is flagged active.
// Callers substitute FallbackPolicy() rather than failing.
var ErrNoActivePolicy = errors.New("no active quota policy")

// PolicyStore reads the single active quota policy.
type PolicyStore interface {
	GetActive(ctx context.Context) (*QuotaPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a PostgreSQL-backed PolicyStore.
func NewPolicyStore(pool *pgxpool.Pool) PolicyStore {
	return &policyRepository{pool: pool}
}

// GetActive returns the most recently created row flagged active.
func (r *policyRepository) GetActive(ctx context.Context) (*QuotaPolicy, error) {
	var p QuotaPolicy
	err := r.pool.QueryRow(ctx,
		`SELECT id, active,
		        daily_limit_student, daily_limit_advisor, daily_limit_admin,
		        monthly_limit_student, monthly_limit_advisor, monthly_limit_admin,
		        global_daily_limit, global_monthly_limit,
		        cooldown_seconds, cache_enabled, cache_ttl_hours, created_at
		 FROM quota_policies
		 WHERE active
		 ORDER BY id DESC
		 LIMIT 1`,
	).Scan(&p.ID, &p.Active,
		&p.DailyLimitStudent, &p.DailyLimitAdvisor, &p.DailyLimitAdmin,
		&p.MonthlyLimitStudent, &p.MonthlyLimitAdvisor, &p.MonthlyLimitAdmin,
		&p.GlobalDailyLimit, &p.GlobalMonthlyLimit,
		&p.CooldownSeconds, &p.CacheEnabled, &p.CacheTTLHours, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActivePolicy
		}
		return nil, fmt.Errorf("querying active quota policy: %w", err)
	}
	return &p, nil
}
