package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/academia-platform/aigov/internal/governance/audit"
	"github.com/academia-platform/aigov/internal/metrics"
	inats "github.com/academia-platform/aigov/internal/nats"
)

// LegacySyncer mirrors succeeded attempts into the legacy per-kind counters.
// Implementations must be best-effort and never return control-flow errors.
type LegacySyncer interface {
	Sync(ctx context.Context, callerID uuid.UUID, role, kind string, succeeded bool)
}

// AuditNotifier emits governance audit events. Optional.
type AuditNotifier interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Attempt describes one completed metered operation, success or failure.
type Attempt struct {
	CallerID      uuid.UUID
	Role          string
	OperationKind string
	Provider      string
	Model         string
	EstimatedCost int
	Succeeded     bool
	ErrorMessage  string
	DurationMs    int64
}

// Recorder appends every completed attempt to the usage ledger and, on
// success, nudges the legacy counters. It runs after the response has been
// prepared: failures here are logged and swallowed, never surfaced.
type Recorder struct {
	ledger UsageLedger
	legacy LegacySyncer
	audits AuditNotifier
}

// NewRecorder creates a Recorder. legacy and audits may be nil when the
// migration bridge or the event bus is not wired.
func NewRecorder(ledger UsageLedger, legacy LegacySyncer, audits AuditNotifier) *Recorder {
	return &Recorder{ledger: ledger, legacy: legacy, audits: audits}
}

// Record writes one ledger row for the attempt. Failed attempts are recorded
// for audit but do not consume quota (the ledger counts succeeded rows only).
func (rc *Recorder) Record(ctx context.Context, a Attempt) {
	rec := &UsageRecord{
		CallerID:      a.CallerID,
		Role:          NormalizeRole(a.Role),
		OperationKind: NormalizeKind(a.OperationKind),
		Provider:      a.Provider,
		Model:         a.Model,
		EstimatedCost: a.EstimatedCost,
		Succeeded:     a.Succeeded,
		ErrorMessage:  a.ErrorMessage,
		DurationMs:    a.DurationMs,
	}

	outcome := "failure"
	if a.Succeeded {
		outcome = "success"
	}

	if _, err := rc.ledger.Append(ctx, rec); err != nil {
		slog.Error("usage recorder: appending record", "error", err,
			"caller", a.CallerID, "kind", rec.OperationKind, "outcome", outcome)
		metrics.UsageRecordsTotal.WithLabelValues("append_error").Inc()
		rc.notifyAppendFailure(ctx, a.CallerID, err)
		// An unrecorded attempt slightly under-counts quota, which is
		// preferable to failing the caller's response.
		return
	}
	metrics.UsageRecordsTotal.WithLabelValues(outcome).Inc()

	if a.Succeeded && rc.legacy != nil {
		rc.legacy.Sync(ctx, a.CallerID, rec.Role, rec.OperationKind, true)
	}
}

func (rc *Recorder) notifyAppendFailure(ctx context.Context, callerID uuid.UUID, cause error) {
	if rc.audits == nil {
		return
	}
	err := rc.audits.PublishAuditEvent(ctx, inats.AuditEvent{
		CallerID:     callerID,
		EventType:    audit.EventRecordingFailed,
		Severity:     "error",
		ResourceType: "ledger",
		Details:      cause.Error(),
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		slog.Debug("usage recorder: audit publish failed", "error", err, "caller", callerID)
	}
}

// EstimateCost approximates token usage from request and response sizes,
// roughly four bytes per token. Trend observability, not billing.
func EstimateCost(promptBytes, responseBytes int) int {
	total := promptBytes + responseBytes
	if total <= 0 {
		return 0
	}
	return (total + 3) / 4
}
