package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/config"
	"github.com/tbourn/go-pdfops-backend/internal/http/middleware"
	"github.com/tbourn/go-pdfops-backend/internal/lock"
	"github.com/tbourn/go-pdfops-backend/internal/repo"
	"github.com/tbourn/go-pdfops-backend/internal/services"
)

const testToken = "exec-secret"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "router.db")}, false)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      50,
		IdempotencyTTL: time.Hour,
		Metering:       config.MeteringConfig{ExecutorToken: testToken, BypassUserIDs: []string{"admin"}},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), lock.NewKeyedMutex(time.Second), cfg)
	return r
}

func send(r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := send(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "http://any.example"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q; want no-store", got)
	}

	w = send(r, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("pdfops_http_requests_total")) {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = send(r, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound || !bytes.Contains(w.Body.Bytes(), []byte(`"code":"not_found"`)) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}
	w = send(r, http.MethodPost, "/health", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://app.example.org"}}
	r := newTestRouter(t, cfg)

	w := send(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "http://app.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	w = send(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got ACAO %q", got)
	}
}

func TestRegisterRoutes_AuthBoundaries(t *testing.T) {
	r := newTestRouter(t, testConfig())

	if w := send(r, http.MethodGet, "/api/v1/credits/balance", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous balance = %d; want 401", w.Code)
	}
	if w := send(r, http.MethodGet, "/api/v1/operations", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("public catalog = %d", w.Code)
	}

	grant := map[string]string{"user_id": "u1", "pack_id": "pack_small", "external_ref": "pi_1"}
	if w := send(r, http.MethodPost, "/api/v1/credits/purchases", grant, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("purchase without token = %d; want 401", w.Code)
	}
	hdr := map[string]string{middleware.HeaderExecutorToken: "wrong"}
	if w := send(r, http.MethodPost, "/api/v1/credits/purchases", grant, hdr); w.Code != http.StatusUnauthorized {
		t.Fatalf("purchase with bad token = %d; want 401", w.Code)
	}
}

func TestRegisterRoutes_SubmitFlow(t *testing.T) {
	r := newTestRouter(t, testConfig())
	exec := map[string]string{middleware.HeaderExecutorToken: testToken}

	grant := map[string]string{"user_id": "u1", "pack_id": "pack_small", "external_ref": "pi_1"}
	if w := send(r, http.MethodPost, "/api/v1/credits/purchases", grant, exec); w.Code != http.StatusCreated {
		t.Fatalf("purchase = %d %s", w.Code, w.Body.String())
	}

	user := map[string]string{middleware.HeaderUserID: "u1", middleware.HeaderIdempotencyKey: "retry-1"}
	body := map[string]any{"operation_id": "watermark", "storage_path": services.UploadPrefix("u1") + "a.pdf"}
	first := send(r, http.MethodPost, "/api/v1/documents/doc-9/operations", body, user)
	if first.Code != http.StatusAccepted {
		t.Fatalf("submit = %d %s", first.Code, first.Body.String())
	}
	again := send(r, http.MethodPost, "/api/v1/documents/doc-9/operations", body, user)
	if again.Code != http.StatusOK {
		t.Fatalf("replay = %d %s", again.Code, again.Body.String())
	}

	var sub struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &sub); err != nil || sub.JobID == "" {
		t.Fatalf("submit body: %s", first.Body.String())
	}

	w := send(r, http.MethodPost, "/api/v1/jobs/"+sub.JobID+"/outcome", map[string]any{"success": false}, exec)
	if w.Code != http.StatusOK {
		t.Fatalf("outcome = %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodGet, "/api/v1/credits/balance", nil, map[string]string{middleware.HeaderUserID: "u1"})
	var bal struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil || bal.Balance != 50 {
		t.Fatalf("balance after refund: %s", w.Body.String())
	}
}

func Test_idempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got []string
	capture := func(c *gin.Context) { got = append(got, idempotencyScope(c)) }
	r.POST("/api/v1"+submitRoute, capture)
	r.POST("/api/v1/jobs/:id/outcome", capture)

	send(r, http.MethodPost, "/api/v1/documents/doc-1/operations", nil, nil)
	send(r, http.MethodPost, "/api/v1/jobs/j-1/outcome", nil, nil)

	if len(got) != 2 || got[0] != services.SubmitScope("doc-1") || got[1] != "/api/v1/jobs/:id/outcome#j-1" {
		t.Fatalf("scopes = %v", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
