package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-pdfops-backend/internal/services"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// capture logs from LoggerFrom(c)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	// simulate RequestID + request-scoped logger
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-5xx")
		c.Set("logger", &logger)
		c.Next()
	})

	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, "internal_error", "disk gone")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-5xx" || resp.Code != "internal_error" || resp.Message != "disk gone" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	// ensure something was logged at error level
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_Fail_404_And_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if w.Code != http.StatusNotFound || er.RequestID != "rid-404" || er.Code != ErrCodeNotFound {
		t.Fatalf("unexpected 404: %d %+v", w.Code, er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}
}

func Test_failService_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrInsufficientCredits, http.StatusPaymentRequired, ErrCodeInsufficientCredits},
		{services.ErrUnknownOperation, http.StatusBadRequest, ErrCodeUnknownOperation},
		{fmt.Errorf("%w: storage_path", services.ErrMissingInput), http.StatusBadRequest, ErrCodeMissingInput},
		{services.ErrInvalidQuantity, http.StatusBadRequest, ErrCodeInvalidQuantity},
		{services.ErrInvalidAttributes, http.StatusBadRequest, ErrCodeInvalidMetadata},
		{services.ErrInvalidStatus, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrUnknownPack, http.StatusBadRequest, ErrCodeUnknownPack},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrJobNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrEntryNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrJobFinalized, http.StatusConflict, ErrCodeJobFinalized},
		{services.ErrDuplicateReference, http.StatusConflict, ErrCodeDuplicateReference},
		{services.ErrNotRefundable, http.StatusConflict, ErrCodeNotRefundable},
		{services.ErrConcurrencyConflict, http.StatusConflict, ErrCodeConflict},
		{fmt.Errorf("%w: db locked", services.ErrPersistence), http.StatusInternalServerError, ErrCodeOperationFailed},
		{errors.New("surprise"), http.StatusInternalServerError, ErrCodeOperationFailed},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { failService(c, tc.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		var er ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &er)
		if w.Code != tc.status || er.Code != tc.code {
			t.Errorf("%v: got %d/%s; want %d/%s", tc.err, w.Code, er.Code, tc.status, tc.code)
		}
		if tc.status == http.StatusInternalServerError && strings.Contains(er.Message, "db locked") {
			t.Errorf("internal detail leaked: %q", er.Message)
		}
		if errors.Is(tc.err, services.ErrConcurrencyConflict) && w.Header().Get("Retry-After") == "" {
			t.Errorf("conflict should set Retry-After")
		}
	}
}
