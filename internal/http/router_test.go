package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/summerjobs-backend/internal/config"
	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
	"github.com/tbourn/summerjobs-backend/internal/identity"
	"github.com/tbourn/summerjobs-backend/internal/repo"
	"github.com/tbourn/summerjobs-backend/internal/services"
	"github.com/tbourn/summerjobs-backend/internal/sms"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:     "/api/v1",
		RateRPS:         100,
		RateBurst:       50,
		CORS:            config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:        config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:            config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL:  time.Hour,
		MaxCommentRunes: 500,
		StreamHeartbeat: time.Second,
		Auth:            config.AuthConfig{DevHeaders: true},
		SMS:             config.SMSConfig{CodeTTL: 5 * time.Minute, MaxAttempts: 3},
	}
}

func newTestRouter(t *testing.T, cfg config.Config, verifier middleware.TokenVerifier) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	svc := services.NewSet(docstore.NewGormStore(db), sms.LogSender{}, cfg)
	r := gin.New()
	RegisterRoutes(r, db, svc, verifier, cfg)
	return r, db
}

func serve(r *gin.Engine, method, path string, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig(), nil)

	// /health works
	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w = serve(r, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w = serve(r, http.MethodPost, "/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// swagger is off by default
	if w = serve(r, http.MethodGet, "/swagger/index.html", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_RatingsEndToEnd(t *testing.T) {
	jwt := identity.NewJWT("router-secret", "summerjobs", time.Hour)
	r, db := newTestRouter(t, testConfig(), jwt)
	token, err := jwt.Issue("u1", "Sam", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	auth := []string{"Authorization", "Bearer " + token, middleware.HeaderIdempotencyKey, "k-1"}

	w := serve(r, http.MethodPost, "/api/v1/profiles/u2/ratings", `{"stars":5,"comment":"great"}`, auth...)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var first domain.Rating
	_ = json.Unmarshal(w.Body.Bytes(), &first)
	if first.ReviewerLabel != "Sam" {
		t.Fatalf("reviewer label from token: %+v", first)
	}

	// retry replays the stored result
	w = serve(r, http.MethodPost, "/api/v1/profiles/u2/ratings", `{"stars":5,"comment":"great"}`, auth...)
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d headers=%v", w.Code, w.Header())
	}
	var again domain.Rating
	_ = json.Unmarshal(w.Body.Bytes(), &again)
	if again.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", again.ID, first.ID)
	}
	rec, err := repo.GetIdempotency(context.Background(), db, "u1", services.RatingsCollection("u2"), "k-1", time.Now().UTC())
	if err != nil || rec.ResourceID != first.ID || rec.Status != http.StatusCreated {
		t.Fatalf("idempotency record: %+v err=%v", rec, err)
	}

	// dev headers are honoured when enabled
	if w = serve(r, http.MethodPost, "/api/v1/profiles/u2/ratings", `{"stars":3}`, middleware.HeaderUserID, "u3"); w.Code != http.StatusCreated {
		t.Fatalf("dev header submit: %d %s", w.Code, w.Body.String())
	}

	// a bad token is rejected outright
	if w = serve(r, http.MethodPost, "/api/v1/profiles/u2/ratings", `{"stars":3}`, "Authorization", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}

	// gzip-compressed summary
	w = serve(r, http.MethodGet, "/api/v1/profiles/u2/ratings", "", "Accept-Encoding", "gzip")
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("summary: %d encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, _ := io.ReadAll(zr)
	var sum domain.RatingSummary
	if err := json.Unmarshal(raw, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Count != 2 || sum.Average != 4 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestRegisterRoutes_DevHeadersDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.DevHeaders = false
	r, _ := newTestRouter(t, cfg, nil)

	w := serve(r, http.MethodPut, "/api/v1/profiles/me", `{"displayName":"x"}`, middleware.HeaderUserID, "u1")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("dev headers must be ignored: %d", w.Code)
	}
	w = serve(r, http.MethodPut, "/api/v1/profiles/me", `{}`, "Authorization", "Bearer abc")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bearer without verifier: %d", w.Code)
	}
}

func TestStreamPathsExcludedFromGzip(t *testing.T) {
	re := regexp.MustCompile(streamPaths)
	if !re.MatchString("/api/v1/listings/offers/stream") {
		t.Fatal("stream path should match")
	}
	if re.MatchString("/api/v1/listings/offers") || re.MatchString("/api/v1/listings/offers/stream/x") {
		t.Fatal("non-stream paths must not match")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, http.MethodPost, "/echo", "0123456789AB") // 12 bytes
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_idempotencyShim(t *testing.T) {
	db := newTestDB(t)
	shim := idempotencyShim{db: db, ttl: time.Minute}
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, ok := shim.Lookup(ctx, "u1", "offers", "k", now); ok {
		t.Fatal("empty table should miss")
	}
	if err := shim.Remember(ctx, "u1", "offers", "k", "L1", http.StatusCreated); err != nil {
		t.Fatalf("remember: %v", err)
	}
	// duplicates are swallowed
	if err := shim.Remember(ctx, "u1", "offers", "k", "L2", http.StatusCreated); err != nil {
		t.Fatalf("duplicate remember: %v", err)
	}
	id, status, ok := shim.Lookup(ctx, "u1", "offers", "k", now)
	if !ok || id != "L1" || status != http.StatusCreated {
		t.Fatalf("lookup = %q %d %v", id, status, ok)
	}
	if exists, _ := shim.exists(ctx, "u1", "requests", "k", now); exists {
		t.Fatal("scope must isolate keys")
	}
	if _, _, ok := shim.Lookup(ctx, "u1", "offers", "k", now.Add(2*time.Minute)); ok {
		t.Fatal("expired record should miss")
	}
}
