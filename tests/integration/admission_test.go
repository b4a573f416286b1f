//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academia-platform/aigov/internal/governance/quota"
)

func TestAdmissionQuotaLifecycle(t *testing.T) {
	env := SetupTestEnv(t)

	policy := quota.FallbackPolicy()
	policy.DailyLimitStudent = 3
	policy.MonthlyLimitStudent = 100
	ActivatePolicy(t, env, policy)

	_, _, token := CreateUser(t, env, "lifecycle@example.com", "student", false)

	t.Run("allowed until the daily limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
				map[string]any{"purpose": "tutor", "prompt": "hola"}, token)
			body := ParseResponse(t, resp)
			require.Equal(t, http.StatusOK, resp.StatusCode, "call %d: %v", i+1, body)
		}
	})

	t.Run("fourth call is denied with a snapshot", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
			map[string]any{"purpose": "tutor", "prompt": "hola"}, token)
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		body := ParseResponse(t, resp)
		assert.Equal(t, "daily_limit_exceeded", body["code"])

		q := body["quota"].(map[string]any)
		daily := q["daily"].(map[string]any)
		assert.Equal(t, float64(3), daily["used"])
		assert.Equal(t, float64(3), daily["limit"])
		assert.Equal(t, float64(0), daily["remaining"])
	})
}

func TestAdmissionFailedAttemptsAreFree(t *testing.T) {
	env := SetupTestEnv(t)

	policy := quota.FallbackPolicy()
	policy.DailyLimitStudent = 2
	ActivatePolicy(t, env, policy)

	_, _, token := CreateUser(t, env, "failures@example.com", "student", false)

	// One success, then several upstream failures.
	resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
		map[string]any{"purpose": "tutor"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 5; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
			map[string]any{"purpose": "tutor", "fail": true}, token)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		resp.Body.Close()
	}

	// Failures consumed nothing: one success slot remains.
	resp = DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
		map[string]any{"purpose": "tutor"}, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Quota endpoint agrees.
	statusResp := DoRequest(t, env, "GET", "/api/v1/governance/quota", nil, token)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	result := ParseResponse(t, statusResp)
	daily := result["data"].(map[string]any)["daily"].(map[string]any)
	assert.Equal(t, float64(2), daily["used"])
	assert.Equal(t, float64(0), daily["remaining"])
}

func TestAdmissionSyncsLegacyCounters(t *testing.T) {
	env := SetupTestEnv(t)

	ActivatePolicy(t, env, quota.FallbackPolicy())

	_, studentID, token := CreateUser(t, env, "legacy-sync@example.com", "student", true)

	// Two quiz generations and one tutoring call.
	for i := 0; i < 2; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/ai/groq/chat",
			map[string]any{"purpose": "quiz"}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
		map[string]any{"purpose": "tutor"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Only the quiz calls reach the legacy counter; tutor has no mapping.
	quizResp := DoRequest(t, env, "GET", "/api/v1/ai-usage/"+studentID.String()+"/quiz", nil, token)
	require.Equal(t, http.StatusOK, quizResp.StatusCode)
	quiz := ParseResponse(t, quizResp)["data"].(map[string]any)
	assert.Equal(t, float64(2), quiz["count"])

	tutorResp := DoRequest(t, env, "GET", "/api/v1/ai-usage/"+studentID.String()+"/tutor", nil, token)
	require.Equal(t, http.StatusOK, tutorResp.StatusCode)
	tutor := ParseResponse(t, tutorResp)["data"].(map[string]any)
	assert.Equal(t, float64(0), tutor["count"])
	assert.Equal(t, float64(10), tutor["limit"], "tutor carries the higher legacy default")
}

func TestAdmissionRequiresAuth(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/ai/gemini/chat",
		map[string]any{"purpose": "tutor"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
