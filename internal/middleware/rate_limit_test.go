package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withClaims(r *http.Request, accountID string) *http.Request {
	claims := &models.TokenClaims{Type: models.TokenTypeAccess, AccountID: accountID}
	return r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, claims))
}

func TestRateLimitByIP_Returns429AfterLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3}, nil)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestRateLimitByIP_SpoofedHeaderDoesNotEvadeLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1}, pkghttp.NewIPConfig(nil))(okHandler())

	first := httptest.NewRequest("POST", "/auth/login", nil)
	first.RemoteAddr = "203.0.113.7:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	assert.Equal(t, http.StatusOK, w.Code)

	second := httptest.NewRequest("POST", "/auth/login", nil)
	second.RemoteAddr = "203.0.113.7:1001"
	second.Header.Set("X-Forwarded-For", "198.51.100.1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, second)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByAccount_IsolatesAccounts(t *testing.T) {
	handler := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	for _, accountID := range []string{"acct-1", "acct-2"} {
		req := withClaims(httptest.NewRequest("GET", "/mfa/status", nil), accountID)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, accountID)
	}

	req := withClaims(httptest.NewRequest("GET", "/mfa/status", nil), "acct-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByAccount_FallsBackToIP(t *testing.T) {
	handler := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	req := httptest.NewRequest("GET", "/mfa/status", nil)
	req.RemoteAddr = "192.0.2.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/mfa/status", nil)
	req.RemoteAddr = "192.0.2.1:8081"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
