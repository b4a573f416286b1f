package legacy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/academia-platform/aigov/internal/governance/quota"
	"github.com/academia-platform/aigov/internal/metrics"
)

// bridgeKinds is the fixed, auditable mapping from ledger operation kinds to
// legacy counter kinds. Kinds outside this table are never synced; the whole
// table goes away with the legacy system.
var bridgeKinds = map[string]string{
	quota.KindQuiz:       KindQuiz,
	quota.KindQuizzes:    KindQuiz,
	quota.KindAnalysis:   KindSimulation,
	quota.KindSimulation: KindSimulation,
}

// Bridge keeps the legacy counters in step with the ledger during the
// migration. Everything here is best-effort: the two quota systems are
// independent and a sync failure must never reach the caller.
type Bridge struct {
	store Store
}

// NewBridge creates a Bridge over the legacy counter store.
func NewBridge(store Store) *Bridge {
	return &Bridge{store: store}
}

// Sync increments the matching legacy counter for a succeeded attempt.
// Unmapped kinds and callers without a student identity are left untouched.
func (b *Bridge) Sync(ctx context.Context, callerID uuid.UUID, role, kind string, succeeded bool) {
	if !succeeded {
		return
	}

	legacyKind, ok := bridgeKinds[kind]
	if !ok {
		return
	}

	studentID, ok, err := b.store.ResolveStudent(ctx, callerID)
	if err != nil {
		slog.Warn("legacy bridge: resolving student", "error", err, "caller", callerID)
		metrics.LegacySyncTotal.WithLabelValues("error").Inc()
		return
	}
	if !ok {
		slog.Debug("legacy bridge: caller has no student identity, skipping",
			"caller", callerID, "kind", legacyKind)
		metrics.LegacySyncTotal.WithLabelValues("skipped").Inc()
		return
	}

	counter, err := b.store.Increment(ctx, studentID, legacyKind)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			// The legacy limit is stricter than the ledger quota here; the
			// attempt already went through, so just note the divergence.
			slog.Warn("legacy bridge: daily limit already reached",
				"student", studentID, "kind", legacyKind)
			metrics.LegacySyncTotal.WithLabelValues("limit_reached").Inc()
			return
		}
		slog.Warn("legacy bridge: incrementing counter", "error", err,
			"student", studentID, "kind", legacyKind)
		metrics.LegacySyncTotal.WithLabelValues("error").Inc()
		return
	}

	metrics.LegacySyncTotal.WithLabelValues("synced").Inc()
	slog.Debug("legacy bridge: counter updated",
		"student", studentID, "kind", legacyKind, "remaining", counter.Remaining)
}
