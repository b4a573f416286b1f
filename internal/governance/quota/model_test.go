package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindTutor, NormalizeKind("tutor"))
	assert.Equal(t, KindQuizzes, NormalizeKind("quizzes"), "quizzes stays distinct in the ledger")
	assert.Equal(t, KindGeneral, NormalizeKind(""))
	assert.Equal(t, KindGeneral, NormalizeKind("Tutor"), "matching is case-sensitive")
	assert.Equal(t, KindGeneral, NormalizeKind("made-up"))
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleAdvisor, NormalizeRole("advisor"))
	assert.Equal(t, RoleAdmin, NormalizeRole("admin"))
	assert.Equal(t, RoleStudent, NormalizeRole(""))
	assert.Equal(t, RoleStudent, NormalizeRole("root"), "unknown roles get the tightest limits")
}

func TestPolicyLimitsByRole(t *testing.T) {
	p := &QuotaPolicy{
		DailyLimitStudent: 1, DailyLimitAdvisor: 2, DailyLimitAdmin: 3,
		MonthlyLimitStudent: 10, MonthlyLimitAdvisor: 20, MonthlyLimitAdmin: 30,
	}

	assert.Equal(t, 1, p.DailyLimit(RoleStudent))
	assert.Equal(t, 2, p.DailyLimit(RoleAdvisor))
	assert.Equal(t, 3, p.DailyLimit(RoleAdmin))
	assert.Equal(t, 1, p.DailyLimit("unknown"))

	assert.Equal(t, 10, p.MonthlyLimit(RoleStudent))
	assert.Equal(t, 30, p.MonthlyLimit(RoleAdmin))
}

func TestFallbackPolicy(t *testing.T) {
	p := FallbackPolicy()

	assert.Equal(t, 1000, p.DailyLimitStudent)
	assert.Equal(t, 3000, p.MonthlyLimitStudent)
	assert.Equal(t, 10000, p.GlobalDailyLimit)
	assert.Equal(t, 200000, p.GlobalMonthlyLimit)
	assert.False(t, p.CacheEnabled)
}

func TestTierClampsRemaining(t *testing.T) {
	assert.Equal(t, TierUsage{Used: 7, Limit: 5, Remaining: 0}, tier(7, 5),
		"overshoot never reports negative remaining")
	assert.Equal(t, TierUsage{Used: 2, Limit: 5, Remaining: 3}, tier(2, 5))
}

func TestWindowPercentage(t *testing.T) {
	assert.Equal(t, 50, window(1, 2).Percentage)
	assert.Equal(t, 33, window(1, 3).Percentage)
	assert.Equal(t, 100, window(3, 3).Percentage)
	assert.Equal(t, 0, window(3, 0).Percentage, "zero limit avoids division by zero")
}
