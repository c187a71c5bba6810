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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/leadscope/directory/internal/api"
	"github.com/leadscope/directory/internal/audit"
	"github.com/leadscope/directory/internal/auth"
	"github.com/leadscope/directory/internal/directory"
	"github.com/leadscope/directory/internal/quota"
	"github.com/leadscope/directory/internal/users"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	AuthSvc     *auth.Service
	UserSvc     *users.Service
	QuotaSvc    *quota.Service
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
				"POSTGRES_DB":       "leadscope_test",
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
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/leadscope_test?sslmode=disable", pgHost, pgPort.Port())
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

	// Setup services
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	agencyRepo := directory.NewAgencyRepository(pool)
	contactRepo := directory.NewContactRepository(pool)
	dirSvc := directory.NewService(agencyRepo, contactRepo)
	dirHandler := directory.NewHandler(dirSvc)

	quotaStore := quota.NewRedisStore(redisClient)
	quotaSvc := quota.NewService(quotaStore, quota.Policy{Cap: 5, Window: 24 * time.Hour}, nil)
	quotaHandler := quota.NewHandler(quotaSvc, contactRepo)

	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		ListAgencies:   dirHandler.ListAgencies,
		ListContacts:   dirHandler.ListContacts,
		SearchContacts: dirHandler.SearchContacts,

		GetQuota:         quotaHandler.GetQuota,
		Unlock:           quotaHandler.Unlock,
		UnlockedContacts: quotaHandler.UnlockedContacts,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		AuthSvc:     authSvc,
		UserSvc:     userSvc,
		QuotaSvc:    quotaSvc,
	}

	return testEnv
}

func getMigrationsPath() string {
	// Try relative paths from test directory
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

// SeedDirectory inserts one agency and n contacts under it, returning the
// contact IDs in insertion order.
func SeedDirectory(t *testing.T, env *TestEnv, agencyID string, n int) []string {
	t.Helper()
	ctx := context.Background()

	_, err := env.Pool.Exec(ctx,
		`INSERT INTO agencies (id, name, state, state_code) VALUES ($1, $2, 'California', 'CA')
		 ON CONFLICT (id) DO NOTHING`,
		agencyID, "Agency "+agencyID)
	if err != nil {
		t.Fatalf("seeding agency: %v", err)
	}

	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-contact-%d", agencyID, i)
		_, err := env.Pool.Exec(ctx,
			`INSERT INTO contacts (id, first_name, last_name, email, agency_id)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			id, "First", fmt.Sprintf("Last%d", i), fmt.Sprintf("%s@example.org", id), agencyID)
		if err != nil {
			t.Fatalf("seeding contact: %v", err)
		}
		ids[i] = id
	}
	return ids
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
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
