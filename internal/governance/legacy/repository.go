package legacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLimitReached is returned when an increment would exceed the counter's
// own daily limit. The legacy system enforces this limit independently of
// the ledger-based quota.
var ErrLimitReached = errors.New("legacy daily limit reached")

// Store manages the legacy per-student per-kind daily counters and the
// caller→student identity mapping.
type Store interface {
	GetOrCreateToday(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error)
	Increment(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error)
	Reset(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error)
	ResolveStudent(ctx context.Context, callerID uuid.UUID) (uuid.UUID, bool, error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed legacy counter Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// GetOrCreateToday returns today's counter row, creating it lazily with the
// kind's default limit.
func (s *postgresStore) GetOrCreateToday(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO legacy_usage_counters (student_id, usage_date, kind, count, daily_limit)
		 VALUES ($1, (now() AT TIME ZONE 'utc')::date, $2, 0, $3)
		 ON CONFLICT (student_id, usage_date, kind) DO NOTHING`,
		studentID, kind, defaultDailyLimit(kind))
	if err != nil {
		return nil, fmt.Errorf("ensuring legacy counter: %w", err)
	}

	return s.fetchToday(ctx, studentID, kind)
}

// Increment bumps today's counter, honoring the legacy daily limit
// atomically so two concurrent increments cannot overshoot it.
func (s *postgresStore) Increment(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	if _, err := s.GetOrCreateToday(ctx, studentID, kind); err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE legacy_usage_counters
		 SET count = count + 1
		 WHERE student_id = $1 AND usage_date = (now() AT TIME ZONE 'utc')::date AND kind = $2
		   AND count < daily_limit`,
		studentID, kind)
	if err != nil {
		return nil, fmt.Errorf("incrementing legacy counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrLimitReached
	}

	return s.fetchToday(ctx, studentID, kind)
}

// Reset zeroes today's counter. Admin/testing only.
func (s *postgresStore) Reset(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	_, err := s.pool.Exec(ctx,
		`UPDATE legacy_usage_counters
		 SET count = 0
		 WHERE student_id = $1 AND usage_date = (now() AT TIME ZONE 'utc')::date AND kind = $2`,
		studentID, kind)
	if err != nil {
		return nil, fmt.Errorf("resetting legacy counter: %w", err)
	}
	return s.GetOrCreateToday(ctx, studentID, kind)
}

// ResolveStudent maps a platform user id to the narrower student identity
// the legacy counters are keyed by. Non-student callers have no mapping.
func (s *postgresStore) ResolveStudent(ctx context.Context, callerID uuid.UUID) (uuid.UUID, bool, error) {
	var studentID *uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT student_id FROM users WHERE id = $1`, callerID,
	).Scan(&studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("resolving student for caller: %w", err)
	}
	if studentID == nil {
		return uuid.Nil, false, nil
	}
	return *studentID, true, nil
}

func (s *postgresStore) fetchToday(ctx context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	var c Counter
	err := s.pool.QueryRow(ctx,
		`SELECT student_id, kind, usage_date, count, daily_limit
		 FROM legacy_usage_counters
		 WHERE student_id = $1 AND usage_date = (now() AT TIME ZONE 'utc')::date AND kind = $2`,
		studentID, kind,
	).Scan(&c.StudentID, &c.Kind, &c.Date, &c.Count, &c.DailyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching legacy counter: %w", err)
	}
	c.Remaining = c.DailyLimit - c.Count
	if c.Remaining < 0 {
		c.Remaining = 0
	}
	return &c, nil
}
