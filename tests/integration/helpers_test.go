package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/civicsquare/server/internal/api"
	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/config"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/registration"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/storage/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type testEnv struct {
	Context context.Context
	Pool    *pgxpool.Pool
	Repo    *postgres.Repository
	Users   *users.Service
	Catalog *catalog.Service
	Server  *httptest.Server
	Mailer  *recordingMailer
}

// recordingMailer stands in for the job queue so tests can assert on
// confirmation sends without running workers.
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) EnqueueConfirmation(_ context.Context, _ uuid.UUID, email, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("civicsquare"),
		tcpostgres.WithUsername("civicsquare"),
		tcpostgres.WithPassword("civicsquare_dev"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath := filepath.Join(projectRoot(t), "internal", "storage", "postgres", "migrations")
	require.NoError(t, migrateWithRetry(dbURL, migrationsPath, 10*time.Second))

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo, err := postgres.NewRepository(pool)
	require.NoError(t, err)

	cfg := testConfig(dbURL)
	logger := zerolog.New(io.Discard)
	auditLog := audit.NewLogger(logger)
	mailer := &recordingMailer{}

	usersSvc := users.NewService(repo.Users(), repo.Sessions(), mailer, auditLog,
		cfg.Server.BaseURL, cfg.Session.TTL, logger)
	catalogSvc := catalog.NewService(repo.Categories(), repo.Events(), auditLog, logger)
	registrationSvc := registration.NewService(repo, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, "civicsquare", cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry)

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	t.Cleanup(limiter.Stop)

	handler := api.NewRouter(cfg, api.Deps{
		Pool:          pool,
		Repo:          repo,
		Users:         usersSvc,
		Catalog:       catalogSvc,
		Registrations: registrationSvc,
		Tokens:        tokens,
		AuditLog:      auditLog,
		Limiter:       limiter,
	}, logger)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{
		Context: ctx,
		Pool:    pool,
		Repo:    repo,
		Users:   usersSvc,
		Catalog: catalogSvc,
		Server:  server,
		Mailer:  mailer,
	}
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			BaseURL: "http://localhost",
		},
		Database: config.DatabaseConfig{
			URL:            dbURL,
			MaxConnections: 5,
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret-32-bytes-minimum----",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 24 * time.Hour,
			CSRFKey:       "0123456789abcdef0123456789abcdef",
		},
		Session: config.SessionConfig{
			TTL:        time.Hour,
			CookieName: "cs_session",
		},
		RateLimit: config.RateLimitConfig{
			PublicPerMinute: 10000,
			AuthedPerMinute: 10000,
			LoginPerMinute:  10000,
		},
		Logging:     config.LoggingConfig{Level: "debug", Format: "json"},
		Environment: "test",
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func migrateWithRetry(databaseURL string, migrationsPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := postgres.MigrateUp(databaseURL, migrationsPath); err != nil {
			if time.Now().After(deadline) {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		return nil
	}
}

// apiClient is a cookie-aware HTTP client bound to the test server. It keeps
// the session and CSRF cookies between calls the way a browser would.
type apiClient struct {
	t       *testing.T
	base    string
	client  *http.Client
	csrf    string
	headers map[string]string
}

func newAPIClient(t *testing.T, env *testEnv) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{
		t:       t,
		base:    env.Server.URL,
		client:  &http.Client{Jar: jar},
		headers: make(map[string]string),
	}
}

func (c *apiClient) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// registerAndConfirm provisions an active resident through the public flow.
func (c *apiClient) registerAndConfirm(env *testEnv, email, password string) {
	c.t.Helper()

	resp, body := c.do(http.MethodPost, "/api/users/register/", map[string]string{
		"email":      email,
		"password":   password,
		"first_name": "Test",
		"last_name":  "Resident",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)

	userID, _ := body["id"].(string)
	require.NotEmpty(c.t, userID)

	confirmResp, _ := c.do(http.MethodGet, "/api/users/confirm-email/"+userID+"/", nil)
	require.Equal(c.t, http.StatusOK, confirmResp.StatusCode)
}

// login performs a session login and captures the CSRF token for later
// mutating calls.
func (c *apiClient) login(email, password string) {
	c.t.Helper()

	resp, body := c.do(http.MethodPost, "/api/users/login/", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	token, _ := body["csrf_token"].(string)
	require.NotEmpty(c.t, token)
	c.csrf = token
}

// seedAuthorityAndEvent creates an authority-owned category and event
// directly through the services, returning the event's public id.
func seedAuthorityAndEvent(t *testing.T, env *testEnv, capacity int) string {
	t.Helper()

	category, err := env.Catalog.CreateCategory(env.Context, "Community", "seed")
	require.NoError(t, err)

	event, err := env.Catalog.CreateEvent(env.Context, catalog.CreateEventParams{
		Name:                 "Park Cleanup",
		Host:                 "City Parks",
		Description:          "Bring gloves.",
		EventDate:            time.Now().Add(72 * time.Hour),
		RegistrationDeadline: time.Now().Add(48 * time.Hour),
		Location:             "Riverside Park",
		Capacity:             capacity,
		CategoryID:           category.ID,
	}, "seed")
	require.NoError(t, err)
	return event.PublicID
}
