package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestResponseHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "store down") })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "no such listing") })
	r.GET("/created", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"id": "L1"}) })
	r.GET("/gone", func(c *gin.Context) { noContent(c) })

	cases := []struct {
		path    string
		status  int
		code    string
		logged  bool
		rawBody string
	}{
		{"/boom", http.StatusServiceUnavailable, ErrCodeStoreUnavailable, true, ""},
		{"/missing", http.StatusNotFound, ErrCodeNotFound, false, ""},
		{"/created", http.StatusCreated, "", false, `{"id":"L1"}`},
		{"/gone", http.StatusNoContent, "", false, ""},
	}
	for _, tc := range cases {
		logs.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))

		if w.Code != tc.status {
			t.Fatalf("%s: status=%d want %d", tc.path, w.Code, tc.status)
		}
		if tc.code != "" {
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("%s: %v", tc.path, err)
			}
			if er.RequestID != "rid-1" || er.Code != tc.code || er.Message == "" {
				t.Fatalf("%s: envelope %+v", tc.path, er)
			}
		} else if got := w.Body.String(); got != tc.rawBody {
			t.Fatalf("%s: body=%q want %q", tc.path, got, tc.rawBody)
		}
		if got := strings.Contains(logs.String(), `"level":"error"`); got != tc.logged {
			t.Fatalf("%s: logged=%v want %v (%s)", tc.path, got, tc.logged, logs.String())
		}
	}
}
