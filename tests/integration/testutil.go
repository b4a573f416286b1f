//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/academia-platform/aigov/internal/aiproxy"
	"github.com/academia-platform/aigov/internal/api"
	"github.com/academia-platform/aigov/internal/auth"
	"github.com/academia-platform/aigov/internal/config"
	"github.com/academia-platform/aigov/internal/governance"
	"github.com/academia-platform/aigov/internal/governance/audit"
	"github.com/academia-platform/aigov/internal/governance/legacy"
	"github.com/academia-platform/aigov/internal/governance/quota"
	"github.com/academia-platform/aigov/internal/middleware/admission"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	Upstream    *httptest.Server
	JWT         *auth.JWTManager
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "aigov_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/aigov_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	migrationsPath := getMigrationsPath()
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Fake AI upstream: echoes success, or fails when the payload asks it to.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		if fail, _ := req["fail"].(bool); fail {
			http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"stubbed completion"}`))
	}))
	t.Cleanup(upstream.Close)

	// Governance wiring, same shape as cmd/api
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", 15*time.Minute)

	policyStore := quota.NewPolicyStore(pool)
	ledger := quota.NewUsageLedger(pool)
	enforcer := quota.NewEnforcer(policyStore, ledger)

	legacyStore := legacy.NewStore(pool)
	bridge := legacy.NewBridge(legacyStore)
	recorder := quota.NewRecorder(ledger, bridge, nil)

	auditRepo := audit.NewRepository(pool)
	govHandler := governance.NewHandler(enforcer, legacyStore, auditRepo, nil)

	admissionMW := admission.NewAdmission(enforcer, recorder, nil, "gemini")
	proxy := aiproxy.New(config.UpstreamConfig{
		GeminiURL: upstream.URL,
		GroqURL:   upstream.URL,
		Timeout:   10 * time.Second,
	})

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		GetQuota:      govHandler.GetQuota,
		ListAuditLogs: govHandler.ListAuditLogs,

		GetLegacyUsage:       govHandler.GetLegacyUsage,
		IncrementLegacyUsage: govHandler.IncrementLegacyUsage,
		ResetLegacyUsage:     govHandler.ResetLegacyUsage,

		GeminiChat:  proxy.Handler("gemini"),
		GroqChat:    proxy.Handler("groq"),
		DefaultChat: proxy.Handler("gemini"),

		AuthMiddleware:      auth.Middleware(jwtManager),
		AdmissionMiddleware: admissionMW.Middleware,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		Upstream:    upstream,
		JWT:         jwtManager,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

// CreateUser seeds an identity row and returns its id, its legacy student id
// (uuid.Nil when withStudent is false) and a signed access token.
func CreateUser(t *testing.T, env *TestEnv, email, role string, withStudent bool) (uuid.UUID, uuid.UUID, string) {
	t.Helper()

	userID := uuid.New()
	studentID := uuid.Nil
	var studentArg *uuid.UUID
	if withStudent {
		studentID = uuid.New()
		studentArg = &studentID
	}

	_, err := env.Pool.Exec(context.Background(),
		`INSERT INTO users (id, email, role, student_id) VALUES ($1, $2, $3, $4)`,
		userID, email, role, studentArg)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	token, err := env.JWT.GenerateAccessToken(userID.String(), email, role)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return userID, studentID, token
}

// ActivatePolicy inserts a fresh active policy row; the newest active row wins.
func ActivatePolicy(t *testing.T, env *TestEnv, p *quota.QuotaPolicy) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`INSERT INTO quota_policies (
		    active,
		    daily_limit_student, daily_limit_advisor, daily_limit_admin,
		    monthly_limit_student, monthly_limit_advisor, monthly_limit_admin,
		    global_daily_limit, global_monthly_limit,
		    cooldown_seconds, cache_enabled, cache_ttl_hours
		 ) VALUES (true, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.DailyLimitStudent, p.DailyLimitAdvisor, p.DailyLimitAdmin,
		p.MonthlyLimitStudent, p.MonthlyLimitAdvisor, p.MonthlyLimitAdmin,
		p.GlobalDailyLimit, p.GlobalMonthlyLimit,
		p.CooldownSeconds, p.CacheEnabled, p.CacheTTLHours)
	if err != nil {
		t.Fatalf("activating policy: %v", err)
	}
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
