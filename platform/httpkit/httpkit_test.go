package httpkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "not found", err: apperr.NotFound("assignment not found"), status: http.StatusNotFound, message: "assignment not found"},
		{name: "conflict wrapped", err: fmt.Errorf("accept: %w", apperr.Conflict("another quote was already accepted")), status: http.StatusConflict, message: "another quote was already accepted"},
		{name: "validation", err: apperr.Validation("invalid algorithm config"), status: http.StatusBadRequest, message: "invalid algorithm config"},
		{name: "unavailable", err: apperr.Unavailable("database unavailable", errors.New("conn refused")), status: http.StatusServiceUnavailable, message: "database unavailable"},
		{name: "untyped", err: errors.New("pq: something leaked"), status: http.StatusInternalServerError, message: "internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			if !HandleError(c, tc.err) {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tc.message {
				t.Fatalf("message = %q, want %q", body.Error, tc.message)
			}
		})
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if HandleError(c, nil) {
		t.Fatal("nil error must not be handled")
	}
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	var seen string
	engine.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get(headerRequestID) != "req-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(headerRequestID))
	}
}

func TestRateLimitPerIP(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, logger.Nop())
	engine := gin.New()
	engine.POST("/", limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP should not be limited, got %d", rec.Code)
	}
}

func TestExtractRoles(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
	}{
		{in: nil, want: 0},
		{in: "admin", want: 1},
		{in: []interface{}{"artisan", 42, "client"}, want: 2},
		{in: []string{"admin", "client"}, want: 2},
	}
	for _, tc := range cases {
		if got := extractRoles(tc.in); len(got) != tc.want {
			t.Errorf("extractRoles(%v) = %v", tc.in, got)
		}
	}
}

func TestGetIdentity(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetIdentity(c).IsAuthenticated() {
		t.Fatal("empty context must be unauthenticated")
	}

	userID, providerID := uuid.New(), uuid.New()
	c.Set(ContextUserIDKey, userID)
	c.Set(ContextRolesKey, []string{RoleArtisan})
	c.Set(ContextProviderIDKey, providerID)

	id := GetIdentity(c)
	if !id.IsAuthenticated() || id.UserID() != userID || !id.HasRole(RoleArtisan) || id.HasRole(RoleAdmin) {
		t.Fatalf("unexpected identity %+v", id)
	}
	if got, ok := id.ProviderID(); !ok || got != providerID {
		t.Fatalf("provider id = %s, %v", got, ok)
	}
}

func TestMustGetProviderIDWithoutProfile(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Set(ContextUserIDKey, uuid.New())

	if _, ok := MustGetProviderID(c); ok {
		t.Fatal("expected missing provider id")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGuardsAbortWithErrorBody(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(c *gin.Context)
		guard   gin.HandlerFunc
		status  int
		message string
	}{
		{name: "missing token", setup: func(*gin.Context) {}, guard: AuthRequired(stubJWT{}), status: http.StatusUnauthorized, message: "missing token"},
		{name: "wrong role", setup: func(c *gin.Context) { c.Set(ContextRolesKey, []string{RoleClient}) }, guard: RequireRole(RoleAdmin), status: http.StatusForbidden, message: "forbidden"},
		{name: "bad request", setup: func(*gin.Context) {}, guard: func(c *gin.Context) { Abort(c, apperr.BadRequest("invalid request")) }, status: http.StatusBadRequest, message: "invalid request"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(c)

			tc.guard(c)

			if !c.IsAborted() {
				t.Fatal("expected the chain to be aborted")
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.message {
				t.Fatalf("error = %q, want %q", body.Error, tc.message)
			}
		})
	}
}

type stubJWT struct{}

func (stubJWT) GetJWTAccessSecret() string { return "test-secret" }
