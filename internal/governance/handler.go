package governance

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/academia-platform/aigov/internal/api"
	"github.com/academia-platform/aigov/internal/auth"
	"github.com/academia-platform/aigov/internal/governance/audit"
	"github.com/academia-platform/aigov/internal/governance/legacy"
	"github.com/academia-platform/aigov/internal/governance/quota"
	inats "github.com/academia-platform/aigov/internal/nats"
)

// Handler provides HTTP handlers for governance endpoints.
type Handler struct {
	enforcer    *quota.Enforcer
	legacyStore legacy.Store
	auditRepo   *audit.Repository
	publisher   *inats.Publisher
}

// NewHandler creates a new governance Handler. publisher may be nil when
// NATS is disabled.
func NewHandler(enforcer *quota.Enforcer, legacyStore legacy.Store, auditRepo *audit.Repository, publisher *inats.Publisher) *Handler {
	return &Handler{
		enforcer:    enforcer,
		legacyStore: legacyStore,
		auditRepo:   auditRepo,
		publisher:   publisher,
	}
}

// GetQuota returns the authenticated caller's current usage and limits.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
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

	stats, err := h.enforcer.Stats(r.Context(), callerID, claims.Role)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}

// ListAuditLogs returns paginated governance audit logs for the caller.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
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

	params := parseListParams(r)
	logs, total, err := h.auditRepo.ListByCaller(r.Context(), callerID, params)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

// GetLegacyUsage returns today's legacy counter for a student and kind.
func (h *Handler) GetLegacyUsage(w http.ResponseWriter, r *http.Request) {
	studentID, kind, ok := legacyParams(w, r)
	if !ok {
		return
	}

	counter, err := h.legacyStore.GetOrCreateToday(r.Context(), studentID, kind)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, counter)
}

// IncrementLegacyUsage bumps the legacy counter, answering 429 once the
// legacy daily limit is reached.
func (h *Handler) IncrementLegacyUsage(w http.ResponseWriter, r *http.Request) {
	studentID, kind, ok := legacyParams(w, r)
	if !ok {
		return
	}

	counter, err := h.legacyStore.Increment(r.Context(), studentID, kind)
	if err != nil {
		if err == legacy.ErrLimitReached {
			current, ferr := h.legacyStore.GetOrCreateToday(r.Context(), studentID, kind)
			if ferr != nil {
				api.HandleError(w, api.ErrInternalServer)
				return
			}
			api.JSONRaw(w, http.StatusTooManyRequests, map[string]any{
				"error": "legacy daily limit reached",
				"data":  current,
			})
			return
		}
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, counter)
}

// ResetLegacyUsage zeroes today's counter. Admin only.
func (h *Handler) ResetLegacyUsage(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil || quota.NormalizeRole(claims.Role) != quota.RoleAdmin {
		api.HandleError(w, api.ErrForbidden)
		return
	}

	studentID, kind, ok := legacyParams(w, r)
	if !ok {
		return
	}

	counter, err := h.legacyStore.Reset(r.Context(), studentID, kind)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if h.publisher != nil {
		callerID, _ := uuid.Parse(claims.UserID)
		_ = h.publisher.PublishAuditEvent(r.Context(), inats.AuditEvent{
			CallerID:     callerID,
			EventType:    audit.EventLegacyReset,
			Severity:     "info",
			ResourceType: "legacy_counter",
			ResourceID:   studentID.String(),
			Details:      "counter reset for " + kind,
			Timestamp:    time.Now().UTC(),
		})
	}

	api.JSON(w, http.StatusOK, counter)
}

func legacyParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	studentID, err := uuid.Parse(chi.URLParam(r, "studentID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid student id"))
		return uuid.Nil, "", false
	}

	kind := chi.URLParam(r, "kind")
	if !legacy.ValidKind(kind) {
		api.HandleError(w, api.NewBadRequestError("kind must be simulation, quiz or tutor"))
		return uuid.Nil, "", false
	}

	return studentID, kind, true
}

func parseListParams(r *http.Request) audit.ListParams {
	params := audit.DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 {
		params.PageSize = size
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		params.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		params.To = &to
	}

	return params
}
