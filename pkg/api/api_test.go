package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aviroy619/critical-css-service/pkg/cdn"
	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/extract"
	"github.com/aviroy619/critical-css-service/pkg/health"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
	"github.com/aviroy619/critical-css-service/pkg/ratelimit"
	"github.com/aviroy619/critical-css-service/pkg/storage"
)

type stubWorker struct{ id string }

func (w *stubWorker) ID() string                      { return w.id }
func (w *stubWorker) Connected() bool                 { return true }
func (w *stubWorker) Close(ctx context.Context) error { return nil }

func stubLauncher() pool.Launcher {
	return pool.LauncherFunc(func(ctx context.Context) (pool.Worker, error) {
		return &stubWorker{id: uuid.NewString()}, nil
	})
}

type testEnv struct {
	router *gin.Engine
	store  storage.Store
}

func newTestEnv(t *testing.T, apiKey string, rl config.RateLimitConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Get()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := pool.New(pool.Config{MinPoolSize: 0, MaxPoolSize: 2}, stubLauncher(), log)
	t.Cleanup(func() { p.Shutdown(&pool.ShutdownOptions{GracePeriod: 100 * time.Millisecond}) })

	cfg := config.DefaultConfig()
	ex := extract.New(cfg.Browser, log)
	up := cdn.NewUploader(config.CDNConfig{Enabled: false}, log)
	limiter := ratelimit.New(rl, log)
	monitor := health.NewMonitor()

	h := NewHandler(p, store, ex, up, limiter, monitor, log)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	h.RegisterRoutes(router, apiKey)

	return &testEnv{router: router, store: store}
}

func openRateLimit() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, RPS: 1000, Burst: 1000}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func seedDocument(t *testing.T, store storage.Store, shopID, template string) *storage.Document {
	t.Helper()
	doc := &storage.Document{
		ShopID:      shopID,
		Template:    template,
		CSS:         "body{margin:0}",
		ContentHash: "abc123",
		SizeBytes:   14,
		SourceURL:   "https://shop.example.com/",
		ViewportW:   1366,
		ViewportH:   768,
		DurationMs:  120,
		GeneratedAt: time.Now().UTC(),
	}
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	return doc
}

func TestGenerateRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "POST", "/api/v1/critical-css/generate", map[string]string{"shop_id": "shop-1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGenerateRejectsInvalidURL(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	body := map[string]interface{}{
		"shop_id":  "shop-1",
		"template": "product",
		"url":      "ftp://example.com/page",
	}
	w := env.do(t, "POST", "/api/v1/critical-css/generate", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGenerateFailureBackoff(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())
	if err := env.store.RecordError("shop-1", "product", "navigation timeout"); err != nil {
		t.Fatalf("failed to record error: %v", err)
	}

	body := map[string]interface{}{
		"shop_id":  "shop-1",
		"template": "product",
		"url":      "https://shop.example.com/",
	}
	w := env.do(t, "POST", "/api/v1/critical-css/generate", body, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 during backoff, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Retryable {
		t.Error("backoff response should be retryable")
	}

	// force bypasses the backoff and reaches extraction, which fails
	// against the stub worker.
	body["force"] = true
	w = env.do(t, "POST", "/api/v1/critical-css/generate", body, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 past backoff, got %d", w.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t, "", config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1})

	body := map[string]interface{}{
		"shop_id":  "shop-1",
		"template": "product",
		"url":      "https://shop.example.com/",
	}

	// First request consumes the only token; extraction fails against the
	// stub worker, which is fine for this test.
	if w := env.do(t, "POST", "/api/v1/critical-css/generate", body, nil); w.Code != http.StatusBadGateway {
		t.Fatalf("first request: expected 502, got %d", w.Code)
	}

	w := env.do(t, "POST", "/api/v1/critical-css/generate", body, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Retryable {
		t.Error("rate limited response should be retryable")
	}
}

func TestGenerateRecordsExtractionFailure(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	body := map[string]interface{}{
		"shop_id":  "shop-1",
		"template": "product",
		"url":      "https://shop.example.com/",
	}
	if w := env.do(t, "POST", "/api/v1/critical-css/generate", body, nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	history, err := env.store.RecentErrors("shop-1", "product", 5)
	if err != nil {
		t.Fatalf("failed to read error history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", len(history))
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "GET", "/api/v1/critical-css/shop-1/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())
	seedDocument(t, env.store, "shop-1", "product")

	w := env.do(t, "GET", "/api/v1/critical-css/shop-1/product", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data storage.Document `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Data.CSS != "body{margin:0}" {
		t.Errorf("unexpected css: %q", resp.Data.CSS)
	}
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())
	seedDocument(t, env.store, "shop-1", "product")
	seedDocument(t, env.store, "shop-1", "collection")
	seedDocument(t, env.store, "shop-2", "product")

	w := env.do(t, "GET", "/api/v1/critical-css/shop-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Data.Count != 2 {
		t.Errorf("expected 2 documents, got %d", resp.Data.Count)
	}
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())
	seedDocument(t, env.store, "shop-1", "product")

	if w := env.do(t, "DELETE", "/api/v1/critical-css/shop-1/product", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/critical-css/shop-1/product", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "DELETE", "/api/v1/critical-css/shop-1/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestPoolStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "GET", "/api/v1/pool/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Pool  pool.Stats `json:"pool"`
			Store struct {
				Documents int `json:"documents"`
				Errors    int `json:"errors"`
			} `json:"store"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Data.Pool.Total != 0 {
		t.Errorf("expected empty pool, got total %d", resp.Data.Pool.Total)
	}
	if resp.Data.Store.Documents != 0 {
		t.Errorf("expected empty store, got %d documents", resp.Data.Store.Documents)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "GET", "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var report health.ServiceHealth
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to parse health report: %v", err)
	}
	if report.Status == "" {
		t.Error("health report missing status")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, "secret-key", openRateLimit())

	if w := env.do(t, "GET", "/api/v1/pool/stats", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: expected 401, got %d", w.Code)
	}

	headers := map[string]string{"X-API-Key": "wrong"}
	if w := env.do(t, "GET", "/api/v1/pool/stats", nil, headers); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", w.Code)
	}

	headers["X-API-Key"] = "secret-key"
	if w := env.do(t, "GET", "/api/v1/pool/stats", nil, headers); w.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", w.Code)
	}
}

func TestHealthzSkipsAPIKey(t *testing.T) {
	env := newTestEnv(t, "secret-key", openRateLimit())

	if w := env.do(t, "GET", "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Errorf("healthz should not require auth, got %d", w.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t, "", openRateLimit())

	w := env.do(t, "GET", "/api/v1/pool/stats", nil, map[string]string{"X-Request-ID": "req-42"})
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request id echoed back, got %q", got)
	}

	w = env.do(t, "GET", "/api/v1/pool/stats", nil, nil)
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected generated request id header")
	}
}
