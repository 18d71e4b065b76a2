package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"scoopai/backend/internal/config"
	"scoopai/backend/internal/db"
	"scoopai/backend/internal/llm"
)

var (
	testPool              *pgxpool.Pool
	baseTestConfig        config.Config
	integrationDBReady    bool
	integrationSkipReason string
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	baseTestConfig = newTestConfig()

	testDatabaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if testDatabaseURL == "" {
		integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not set"
		fmt.Fprintln(os.Stderr, integrationSkipReason)
		os.Exit(m.Run())
	}
	testDatabaseURL = withSimpleProtocol(testDatabaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Connect(ctx, testDatabaseURL)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: cannot connect TEST_DATABASE_URL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = pool.Ping(ctx)
	cancel()
	if err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "integration test setup failed: database ping failed: %v\n", err)
		os.Exit(1)
	}

	if err := verifyRequiredTables(pool); err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	integrationDBReady = true

	exitCode := m.Run()
	testPool.Close()
	os.Exit(exitCode)
}

func withSimpleProtocol(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	queries := parsed.Query()
	queries.Set("default_query_exec_mode", "simple_protocol")
	parsed.RawQuery = queries.Encode()
	return parsed.String()
}

func newTestConfig() config.Config {
	cfg := config.Config{
		AppEnv:       "test",
		AppName:      "Scoop AI API Test",
		APIPrefix:    "/api/v1",
		AppPort:      "0",
		LogLevel:     "error",
		DatabaseURL:  "test",
		RedisURL:     "",
		JWTSecret:    "test-secret-1234567890",
		JWTAlgorithm: "HS256",
		JWTAudience:  "",
		JWTIssuer:    "",
		CORSAllowOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
		},
		GeminiModel:         "gemini-2.0-flash",
		GeminiVerifyModel:   "gemini-2.0-flash",
		AIMaxOutputTokens:   512,
		DefaultLanguage:     "ka",
		VerifyTimeoutMS:     500,
		NegationWindowChars: 30,
		BudgetAllocBuffer:   1.5,
		MaxPerCategory:      2,
		HistoryMaxMessages:  100,
		HistoryMaxTokens:    50000,
		ThinkingStrategy:    "simple_loader",
	}

	if v := strings.TrimSpace(os.Getenv("TEST_JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("TEST_JWT_AUDIENCE")); v != "" {
		cfg.JWTAudience = v
	}
	if v := strings.TrimSpace(os.Getenv("TEST_JWT_ISSUER")); v != "" {
		cfg.JWTIssuer = v
	}
	return cfg
}

func verifyRequiredTables(pool *pgxpool.Pool) error {
	required := []string{
		"chat_sessions",
		"user_profiles",
		"products",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	missing := make([]string, 0)
	for _, table := range required {
		var exists bool
		if err := pool.QueryRow(
			ctx,
			`SELECT EXISTS (
				SELECT 1
				FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`,
			table,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to validate schema table %q: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf(
			"missing required tables: %s. Apply scripts/schema.sql to TEST_DATABASE_URL before running integration tests",
			strings.Join(missing, ", "),
		)
	}
	return nil
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationDBReady {
		if integrationSkipReason == "" {
			integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not configured"
		}
		t.Skip(integrationSkipReason)
	}
}

// newTestApp builds the app against the shared test pool. A nil client gets
// the mock, which answers deterministically without the network.
func newTestApp(t *testing.T, ai llm.Client) *App {
	t.Helper()
	requireIntegration(t)
	if ai == nil {
		ai = llm.MockClient{}
	}
	return New(baseTestConfig, testPool, nil, ai, zap.NewNop())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestApp(t, nil).Router()
}

func newTestRouterWithConfig(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	requireIntegration(t)
	return New(cfg, testPool, nil, llm.MockClient{}, zap.NewNop()).Router()
}

func resetDatabase(t *testing.T) {
	t.Helper()
	requireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := testPool.Exec(
		ctx,
		`TRUNCATE TABLE
			chat_sessions,
			user_profiles,
			products
		RESTART IDENTITY CASCADE`,
	)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

func seedProduct(t *testing.T, name, brand, category string, price float64, inStock bool) string {
	t.Helper()
	requireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := testID()
	_, err := testPool.Exec(
		ctx,
		`INSERT INTO products (id, name, brand, category, price, in_stock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		id,
		name,
		brand,
		category,
		price,
		inStock,
	)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

// seedCatalog loads a small supplement assortment covering the categories
// the search queries reference.
func seedCatalog(t *testing.T) {
	t.Helper()
	seedProduct(t, "Gold Standard Whey", "Optimum Nutrition", "პროტეინი", 189, true)
	seedProduct(t, "Whey Isolate Zero", "BioTech", "პროტეინი", 145, true)
	seedProduct(t, "Vegan Protein Blend", "Scitec", "პროტეინი ვეგანური", 120, true)
	seedProduct(t, "Creatine Monohydrate", "MyProtein", "კრეატინი", 55, true)
	seedProduct(t, "Creatine HCL", "Ostrovit", "კრეატინი", 49, true)
	seedProduct(t, "Daily Multivitamin", "NOW Foods", "ვიტამინი", 42, true)
	seedProduct(t, "Omega-3 Fish Oil", "NOW Foods", "ომეგა", 38, true)
	seedProduct(t, "Out of Stock Whey", "Generic", "პროტეინი", 99, false)
}

func signToken(t *testing.T, sub string, overrides map[string]any) string {
	t.Helper()
	return signTokenWithConfig(t, baseTestConfig, sub, overrides)
}

func signTokenWithConfig(t *testing.T, cfg config.Config, sub string, overrides map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"exp": time.Now().UTC().Add(1 * time.Hour).Unix(),
		"iat": time.Now().UTC().Add(-1 * time.Minute).Unix(),
	}
	if strings.TrimSpace(sub) != "" {
		claims["sub"] = sub
	}
	if strings.TrimSpace(cfg.JWTAudience) != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if strings.TrimSpace(cfg.JWTIssuer) != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	for key, value := range overrides {
		if value == nil {
			delete(claims, key)
			continue
		}
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func performRequest(
	t *testing.T,
	router http.Handler,
	method, targetPath, token string,
	body any,
	headers map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, targetPath, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response JSON: %v; body=%s", err, rec.Body.String())
	}
	return payload
}

func responseDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSONMap(t, rec)
	detail, _ := body["detail"].(string)
	return detail
}

func testID() string {
	return uuid.NewString()
}
