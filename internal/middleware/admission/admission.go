package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/academia-platform/aigov/internal/api"
	"github.com/academia-platform/aigov/internal/auth"
	"github.com/academia-platform/aigov/internal/governance/audit"
	"github.com/academia-platform/aigov/internal/governance/quota"
	inats "github.com/academia-platform/aigov/internal/nats"
)

// Decider renders the admission verdict before the metered work runs.
type Decider interface {
	Decide(ctx context.Context, callerID uuid.UUID, role, kind string) quota.Decision
}

// AttemptRecorder persists a completed attempt after the response is done.
type AttemptRecorder interface {
	Record(ctx context.Context, a quota.Attempt)
}

// AuditPublisher emits governance audit events. Optional.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

var denialMessages = map[string]string{
	quota.ReasonDailyLimit:         "You have reached your daily AI usage limit",
	quota.ReasonMonthlyLimit:       "You have reached your monthly AI usage limit",
	quota.ReasonGlobalDailyLimit:   "The platform-wide daily AI limit has been reached",
	quota.ReasonGlobalMonthlyLimit: "The platform-wide monthly AI limit has been reached",
}

// Admission wraps metered AI handlers with the three governance hooks:
// quota pre-check, success recording, failure recording. Denials become 429
// responses carrying the machine-readable reason and the quota snapshot.
type Admission struct {
	decider         Decider
	recorder        AttemptRecorder
	audits          AuditPublisher
	defaultProvider string
}

// NewAdmission creates the admission middleware. audits may be nil.
func NewAdmission(decider Decider, recorder AttemptRecorder, audits AuditPublisher, defaultProvider string) *Admission {
	return &Admission{
		decider:         decider,
		recorder:        recorder,
		audits:          audits,
		defaultProvider: defaultProvider,
	}
}

// aiRequestHints are the only fields the governance layer reads from the
// otherwise opaque AI payload.
type aiRequestHints struct {
	Purpose       string `json:"purpose"`
	OperationType string `json:"operation_type"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

func (h aiRequestHints) kind() string {
	if h.Purpose != "" {
		return h.Purpose
	}
	return h.OperationType
}

// Middleware enforces quota before the wrapped handler runs and records the
// attempt after it finishes. Recording never blocks or fails the response.
func (a *Admission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetUserClaims(r.Context())
		if claims == nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		callerID, err := uuid.Parse(claims.UserID)
		if err != nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		// Buffer the body so the hints can be peeked and the payload still
		// forwarded untouched.
		body, err := io.ReadAll(r.Body)
		if err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var hints aiRequestHints
		_ = json.Unmarshal(body, &hints)

		role := quota.NormalizeRole(claims.Role)
		kind := quota.NormalizeKind(hints.kind())

		decision := a.decider.Decide(r.Context(), callerID, role, kind)
		if !decision.Allowed {
			a.publishDenial(r.Context(), callerID, kind, decision.Reason)

			msg := denialMessages[decision.Reason]
			if msg == "" {
				msg = "AI usage limit reached"
			}
			api.JSONRaw(w, http.StatusTooManyRequests, map[string]any{
				"error": msg,
				"code":  decision.Reason,
				"quota": decision.Snapshot,
			})
			return
		}

		start := time.Now()
		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)
		duration := time.Since(start)

		provider := hints.Provider
		if provider == "" {
			provider = a.inferProvider(r.URL.Path)
		}
		model := hints.Model

		attempt := quota.Attempt{
			CallerID:      callerID,
			Role:          role,
			OperationKind: kind,
			Provider:      provider,
			Model:         model,
			EstimatedCost: quota.EstimateCost(len(body), cw.bytes),
			Succeeded:     cw.status >= 200 && cw.status < 300,
			DurationMs:    duration.Milliseconds(),
		}
		if !attempt.Succeeded {
			attempt.EstimatedCost = 0
			attempt.ErrorMessage = "upstream returned status " + strconv.Itoa(cw.status)
		}

		// The response has already been written; a canceled request context
		// must not lose the ledger row.
		a.recorder.Record(context.WithoutCancel(r.Context()), attempt)
	})
}

func (a *Admission) publishDenial(ctx context.Context, callerID uuid.UUID, kind, reason string) {
	if a.audits == nil {
		return
	}
	err := a.audits.PublishAuditEvent(ctx, inats.AuditEvent{
		CallerID:     callerID,
		EventType:    audit.EventQuotaDenied,
		Severity:     "warn",
		ResourceType: "quota",
		Details:      reason + " for kind " + kind,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		slog.Debug("admission: audit publish failed", "error", err, "caller_id", callerID)
	}
}

func (a *Admission) inferProvider(path string) string {
	if strings.Contains(path, "/groq/") {
		return "groq"
	}
	if strings.Contains(path, "/gemini/") {
		return "gemini"
	}
	return a.defaultProvider
}

// captureWriter records the status code and response size for cost
// estimation without interfering with streaming.
type captureWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}
