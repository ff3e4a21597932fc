package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
	"github.com/tbourn/summerjobs-backend/internal/services"
)

// ---------- fixture ----------

type fixture struct {
	r      *gin.Engine
	store  *docstore.GormStore
	sender *captureSender
	idem   *memIdem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Document{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := docstore.NewGormStore(db)

	profiles := services.NewProfileService(store)
	settings := services.NewSettingsService(store, profiles)
	sender := &captureSender{}
	phone := services.NewPhoneService(store, settings, sender, 5*time.Minute, 3)
	phone.HashCost = bcrypt.MinCost
	idem := &memIdem{m: map[string]memIdemRec{}}

	h := New(Deps{
		Profiles:        profiles,
		Ratings:         services.NewRatingService(store, 500),
		Phone:           phone,
		Listings:        services.NewListingService(store, profiles),
		Settings:        settings,
		Idempotency:     idem,
		StreamHeartbeat: 20 * time.Millisecond,
	})

	r := gin.New()
	r.Use(middleware.Authenticate(middleware.AuthOptions{DevHeaders: true}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: IdempotencyScope}, idem.exists))
	h.Register(r.Group(""))

	return &fixture{r: r, store: store, sender: sender, idem: idem}
}

// do sends a request as uid ("" for anonymous). body may be nil.
func (f *fixture) do(t *testing.T, method, path, uid string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.HeaderUserID, uid)
		req.Header.Set(middleware.HeaderUserName, "name "+uid)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T, collection, id string, fields map[string]any) {
	t.Helper()
	if err := f.store.Put(context.Background(), collection, id, fields, true); err != nil {
		t.Fatalf("seed %s/%s: %v", collection, id, err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
}

// captureSender records the last SMS body per recipient.
type captureSender struct {
	mu   sync.Mutex
	last map[string]string
}

func (c *captureSender) Send(_ context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]string{}
	}
	c.last[to] = body
	return nil
}

func (c *captureSender) code(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.last[to]
	if len(b) < 6 {
		return ""
	}
	return b[len(b)-6:]
}

type memIdemRec struct {
	resourceID string
	status     int
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	mu sync.Mutex
	m  map[string]memIdemRec
}

func (s *memIdem) Lookup(_ context.Context, userID, scope, key string, _ time.Time) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[userID+"|"+scope+"|"+key]
	return rec.resourceID, rec.status, ok
}

func (s *memIdem) Remember(_ context.Context, userID, scope, key, resourceID string, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID+"|"+scope+"|"+key] = memIdemRec{resourceID: resourceID, status: status}
	return nil
}

func (s *memIdem) exists(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, _, ok := s.Lookup(ctx, userID, scope, key, now)
	return ok, nil
}

// ---------- scope + error mapping ----------

func TestIdempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got string
	capture := func(c *gin.Context) { got = IdempotencyScope(c); c.Status(http.StatusOK) }
	r.POST("/api/v1/profiles/:id/ratings", capture)
	r.GET("/api/v1/profiles/:id/ratings", capture)
	r.POST("/api/v1/listings/:kind", capture)
	r.PUT("/api/v1/profiles/me", capture)

	cases := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/profiles/u2/ratings", services.RatingsCollection("u2")},
		{http.MethodGet, "/api/v1/profiles/u2/ratings", ""},
		{http.MethodPost, "/api/v1/listings/offers", "offers"},
		{http.MethodPut, "/api/v1/profiles/me", ""},
	}
	for _, tc := range cases {
		got = "unset"
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
		if got != tc.want {
			t.Fatalf("%s %s: scope=%q want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestFailErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err        error
		status     int
		code       string
		msg        string
		retryAfter bool
	}{
		{services.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required", false},
		{fmt.Errorf("%w: only the reviewer can delete this rating", services.ErrForbidden), http.StatusForbidden, ErrCodeForbidden, "only the reviewer can delete this rating", false},
		{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "not found", false},
		{fmt.Errorf("%w: stars must be 1-5", services.ErrValidation), http.StatusBadRequest, ErrCodeBadRequest, "stars must be 1-5", false},
		{services.ErrSMSDisabled, http.StatusConflict, ErrCodeConflict, services.ErrSMSDisabled.Error(), false},
		{fmt.Errorf("%w: gateway 500", services.ErrSMSDelivery), http.StatusBadGateway, ErrCodeSMSFailed, services.ErrSMSDelivery.Error(), false},
		{fmt.Errorf("%w: disk", services.ErrStoreRead), http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "storage temporarily unavailable", true},
		{fmt.Errorf("%w: disk", services.ErrStoreWrite), http.StatusInternalServerError, ErrCodeWriteFailed, "could not save changes", false},
		{errors.New("mystery"), http.StatusInternalServerError, ErrCodeInternal, "internal server error", false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failErr(c, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		body := decode[ErrorResponse](t, w)
		if body.Code != tc.code || body.Message != tc.msg {
			t.Fatalf("%v: body=%+v", tc.err, body)
		}
		if has := w.Header().Get("Retry-After") != ""; has != tc.retryAfter {
			t.Fatalf("%v: Retry-After present=%v", tc.err, has)
		}
		if (tc.status >= 500) != (len(c.Errors) > 0) {
			t.Fatalf("%v: gin errors=%v", tc.err, c.Errors)
		}
	}
}

func TestDetail(t *testing.T) {
	if got := detail(fmt.Errorf("%w: nope", services.ErrForbidden), services.ErrForbidden); got != "nope" {
		t.Fatalf("detail wrapped = %q", got)
	}
	if got := detail(services.ErrForbidden, services.ErrForbidden); got != "forbidden" {
		t.Fatalf("detail bare = %q", got)
	}
}
