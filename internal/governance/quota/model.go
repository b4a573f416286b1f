package quota

import (
	"time"

	"github.com/google/uuid"
)

// Known caller roles. Unknown roles are mapped to the most restrictive one.
const (
	RoleStudent = "student"
	RoleAdvisor = "advisor"
	RoleAdmin   = "admin"
)

// Canonical operation kinds. The enforcer does not tier limits by kind;
// kinds exist for classification and for the legacy counter mapping.
const (
	KindGeneral       = "general"
	KindTutor         = "tutor"
	KindQuiz          = "quiz"
	KindQuizzes       = "quizzes"
	KindAnalysis      = "analysis"
	KindSimulation    = "simulation"
	KindQuizGen       = "quiz_gen"
	KindSimulationGen = "simulation_gen"
	KindFormulaGen    = "formula_gen"
)

// Denial reasons, in the order the tiers are checked.
const (
	ReasonDailyLimit         = "daily_limit_exceeded"
	ReasonMonthlyLimit       = "monthly_limit_exceeded"
	ReasonGlobalDailyLimit   = "global_daily_limit_exceeded"
	ReasonGlobalMonthlyLimit = "global_monthly_limit_exceeded"
)

var knownKinds = map[string]bool{
	KindGeneral:       true,
	KindTutor:         true,
	KindQuiz:          true,
	KindQuizzes:       true,
	KindAnalysis:      true,
	KindSimulation:    true,
	KindQuizGen:       true,
	KindSimulationGen: true,
	KindFormulaGen:    true,
}

// NormalizeKind maps free-form operation tags onto the canonical set.
// Anything unrecognized counts as "general".
func NormalizeKind(kind string) string {
	if knownKinds[kind] {
		return kind
	}
	return KindGeneral
}

// NormalizeRole maps unknown roles to the student role, which carries the
// most restrictive limits.
func NormalizeRole(role string) string {
	switch role {
	case RoleStudent, RoleAdvisor, RoleAdmin:
		return role
	default:
		return RoleStudent
	}
}

// QuotaPolicy matches the quota_policies table schema. Exactly one row is
// flagged active at a time; the newest wins if several are.
type QuotaPolicy struct {
	ID                  int64     `json:"id"`
	Active              bool      `json:"active"`
	DailyLimitStudent   int       `json:"daily_limit_student"`
	DailyLimitAdvisor   int       `json:"daily_limit_advisor"`
	DailyLimitAdmin     int       `json:"daily_limit_admin"`
	MonthlyLimitStudent int       `json:"monthly_limit_student"`
	MonthlyLimitAdvisor int       `json:"monthly_limit_advisor"`
	MonthlyLimitAdmin   int       `json:"monthly_limit_admin"`
	GlobalDailyLimit    int       `json:"global_daily_limit"`
	GlobalMonthlyLimit  int       `json:"global_monthly_limit"`
	CooldownSeconds     int       `json:"cooldown_seconds"`
	CacheEnabled        bool      `json:"cache_enabled"`
	CacheTTLHours       int       `json:"cache_ttl_hours"`
	CreatedAt           time.Time `json:"created_at"`
}

// DailyLimit returns the per-caller daily limit for a role.
func (p *QuotaPolicy) DailyLimit(role string) int {
	switch NormalizeRole(role) {
	case RoleAdvisor:
		return p.DailyLimitAdvisor
	case RoleAdmin:
		return p.DailyLimitAdmin
	default:
		return p.DailyLimitStudent
	}
}

// MonthlyLimit returns the per-caller monthly limit for a role.
func (p *QuotaPolicy) MonthlyLimit(role string) int {
	switch NormalizeRole(role) {
	case RoleAdvisor:
		return p.MonthlyLimitAdvisor
	case RoleAdmin:
		return p.MonthlyLimitAdmin
	default:
		return p.MonthlyLimitStudent
	}
}

// FallbackPolicy is used whenever no active policy row exists. Policy absence
// must never block the AI pipeline, so these defaults are always available.
func FallbackPolicy() *QuotaPolicy {
	return &QuotaPolicy{
		DailyLimitStudent:   1000,
		DailyLimitAdvisor:   2000,
		DailyLimitAdmin:     5000,
		MonthlyLimitStudent: 3000,
		MonthlyLimitAdvisor: 5000,
		MonthlyLimitAdmin:   50000,
		GlobalDailyLimit:    10000,
		GlobalMonthlyLimit:  200000,
		CooldownSeconds:     45,
		CacheEnabled:        false,
		CacheTTLHours:       6,
	}
}

// UsageRecord matches the usage_log table schema. Rows are append-only and
// never mutated; the ledger is the source of truth for usage counts.
type UsageRecord struct {
	ID            int64     `json:"id"`
	CallerID      uuid.UUID `json:"caller_id"`
	Role          string    `json:"role"`
	OperationKind string    `json:"operation_kind"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	EstimatedCost int       `json:"estimated_cost"`
	Succeeded     bool      `json:"succeeded"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// TierUsage describes one limit dimension of a snapshot.
type TierUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// GlobalUsage holds the system-wide tiers. Present in a snapshot only once
// the global counts were actually computed.
type GlobalUsage struct {
	Daily   TierUsage `json:"daily"`
	Monthly TierUsage `json:"monthly"`
}

// Snapshot is the ephemeral quota view computed at decision time. It is
// never cached across requests.
type Snapshot struct {
	Daily    TierUsage    `json:"daily"`
	Monthly  TierUsage    `json:"monthly"`
	Global   *GlobalUsage `json:"global,omitempty"`
	Degraded bool         `json:"degraded,omitempty"`
}

// Decision is the admission verdict. Reason is empty when Allowed.
type Decision struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Snapshot Snapshot `json:"quota"`
}

func tier(used, limit int) TierUsage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return TierUsage{Used: used, Limit: limit, Remaining: remaining}
}

// UsageStats is the quota status payload for the governance endpoint.
type UsageStats struct {
	Daily   WindowStats `json:"daily"`
	Monthly WindowStats `json:"monthly"`
}

// WindowStats extends TierUsage with a percentage for dashboards.
type WindowStats struct {
	Used       int `json:"used"`
	Limit      int `json:"limit"`
	Remaining  int `json:"remaining"`
	Percentage int `json:"percentage"`
}

func window(used, limit int) WindowStats {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	pct := 0
	if limit > 0 {
		pct = int(float64(used)/float64(limit)*100 + 0.5)
	}
	return WindowStats{Used: used, Limit: limit, Remaining: remaining, Percentage: pct}
}
