package quota

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/academia-platform/aigov/internal/metrics"
)

// Enforcer renders allow/deny decisions from the active policy and the
// usage ledger. It holds no mutable state; every decision reads fresh
// counts so concurrent requests always see current usage.
type Enforcer struct {
	policies PolicyStore
	ledger   UsageLedger
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(policies PolicyStore, ledger UsageLedger) *Enforcer {
	return &Enforcer{policies: policies, ledger: ledger}
}

// Decide checks the caller against all quota tiers in fixed order: caller
// daily, caller monthly, global daily, global monthly. The first exceeded
// tier wins, so a caller over their own limit is told so even when the
// system-wide limits are also exhausted. Storage failures fail open: the
// quota subsystem being down must never take the AI features down with it.
func (e *Enforcer) Decide(ctx context.Context, callerID uuid.UUID, role, kind string) Decision {
	role = NormalizeRole(role)

	policy, err := e.policies.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoActivePolicy) {
			return e.failOpen("loading policy", err)
		}
		policy = FallbackPolicy()
	}

	dailyLimit := policy.DailyLimit(role)
	monthlyLimit := policy.MonthlyLimit(role)

	dailyUsed, err := e.ledger.CountDaily(ctx, callerID)
	if err != nil {
		return e.failOpen("counting daily usage", err)
	}
	monthlyUsed, err := e.ledger.CountMonthly(ctx, callerID)
	if err != nil {
		return e.failOpen("counting monthly usage", err)
	}

	if dailyUsed >= dailyLimit {
		return e.deny(ReasonDailyLimit, Snapshot{
			Daily:   tier(dailyUsed, dailyLimit),
			Monthly: tier(monthlyUsed, monthlyLimit),
		})
	}
	if monthlyUsed >= monthlyLimit {
		return e.deny(ReasonMonthlyLimit, Snapshot{
			Daily:   tier(dailyUsed, dailyLimit),
			Monthly: tier(monthlyUsed, monthlyLimit),
		})
	}

	globalDaily, err := e.ledger.CountGlobalDaily(ctx)
	if err != nil {
		return e.failOpen("counting global daily usage", err)
	}
	globalMonthly, err := e.ledger.CountGlobalMonthly(ctx)
	if err != nil {
		return e.failOpen("counting global monthly usage", err)
	}

	snapshot := Snapshot{
		Daily:   tier(dailyUsed, dailyLimit),
		Monthly: tier(monthlyUsed, monthlyLimit),
		Global: &GlobalUsage{
			Daily:   tier(globalDaily, policy.GlobalDailyLimit),
			Monthly: tier(globalMonthly, policy.GlobalMonthlyLimit),
		},
	}

	if globalDaily >= policy.GlobalDailyLimit {
		return e.deny(ReasonGlobalDailyLimit, snapshot)
	}
	if globalMonthly >= policy.GlobalMonthlyLimit {
		return e.deny(ReasonGlobalMonthlyLimit, snapshot)
	}

	metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()
	return Decision{Allowed: true, Snapshot: snapshot}
}

// Stats returns the caller's current usage for the quota status endpoint.
func (e *Enforcer) Stats(ctx context.Context, callerID uuid.UUID, role string) (*UsageStats, error) {
	role = NormalizeRole(role)

	policy, err := e.policies.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoActivePolicy) {
			return nil, err
		}
		policy = FallbackPolicy()
	}

	dailyUsed, err := e.ledger.CountDaily(ctx, callerID)
	if err != nil {
		return nil, err
	}
	monthlyUsed, err := e.ledger.CountMonthly(ctx, callerID)
	if err != nil {
		return nil, err
	}

	return &UsageStats{
		Daily:   window(dailyUsed, policy.DailyLimit(role)),
		Monthly: window(monthlyUsed, policy.MonthlyLimit(role)),
	}, nil
}

func (e *Enforcer) deny(reason string, snap Snapshot) Decision {
	metrics.QuotaDecisionsTotal.WithLabelValues(reason).Inc()
	return Decision{Allowed: false, Reason: reason, Snapshot: snap}
}

func (e *Enforcer) failOpen(op string, err error) Decision {
	slog.Warn("quota: decision degraded, allowing request", "op", op, "error", err)
	metrics.QuotaDecisionsTotal.WithLabelValues("degraded").Inc()
	return Decision{Allowed: true, Snapshot: Snapshot{Degraded: true}}
}
