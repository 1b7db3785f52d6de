//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// SentCode represents a captured one-time code email
type SentCode struct {
	To   string
	Code string
}

// MockEmailSender captures sent codes and verification tokens for test assertions
type MockEmailSender struct {
	Sent  []SentCode
	Links []SentCode
	mu    sync.Mutex
}

// SendOTPEmail records the code
func (m *MockEmailSender) SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, SentCode{To: to, Code: code})
	return nil
}

// SendVerificationEmail records the verification token
func (m *MockEmailSender) SendVerificationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Links = append(m.Links, SentCode{To: to, Code: token})
	return nil
}

// LastVerificationToken returns the most recent verification token sent
func (m *MockEmailSender) LastVerificationToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Links) == 0 {
		return ""
	}
	return m.Links[len(m.Links)-1].Code
}

// LastCode returns the most recent code sent
func (m *MockEmailSender) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1].Code
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Email  *MockEmailSender
	Audit  *services.AuditService
}

// NewTestServer initializes a complete HTTP server backed by Postgres with
// in-memory codes and a capturing email sender
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	clock := auth.SystemClock{}

	accounts := repositories.NewAccountRepository(db)
	credentials := repositories.NewPasskeyRepository(db)
	events := repositories.NewSecurityEventRepository(db)
	verifications := repositories.NewEmailVerificationRepository(db)
	codes := repositories.NewMemoryCodeStore(clock, repositories.DefaultCodeGrace)

	sender := &MockEmailSender{}

	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", 15*time.Minute, 5*time.Minute, clock)

	totpManager, err := auth.NewTOTPManager([]byte("test-mfa-encryption-key-32-char!"), auth.TOTPConfig{Issuer: "AuthGateTest"})
	if err != nil {
		panic(err)
	}

	webauthnConfig := auth.WebAuthnConfig{
		RPID:         "localhost",
		RPName:       "AuthGate Test",
		Origin:       "http://localhost:5173",
		ChallengeTTL: time.Minute,
	}

	gate := services.NewRiskGate(accounts, services.DefaultRiskPolicy, clock, logger)
	audit := services.NewAuditService(events, clock, logger)
	otp := services.NewOTPService(codes, accounts, sender, totpManager, clock, rand.Reader, 10*time.Minute, logger)
	passkeys := services.NewPasskeyService(codes, credentials, webauthnConfig, clock, rand.Reader, logger)
	mfa := services.NewMFAService(accounts, credentials, otp, gate, totpManager, audit, clock, logger)
	security := services.NewSecurityService(accounts, credentials)
	verifier := services.NewEmailVerificationService(verifications, accounts, sender, audit, clock, rand.Reader, services.DefaultVerificationTTL, logger)
	authService := services.NewAuthService(accounts, services.BcryptHasher{}, gate, otp, passkeys,
		tokenManager, audit, nil, verifier, clock, logger)

	h := routes.Handlers{
		Auth:    handlers.NewAuthHandler(authService, webauthnConfig, logger),
		MFA:     handlers.NewMFAHandler(mfa, logger),
		Passkey: handlers.NewPasskeyHandler(passkeys, audit, logger),
		Account: handlers.NewAccountHandler(security, audit, logger),
		Health:  handlers.NewHealthHandler(handlers.HealthCheck{Name: "database", Check: db.HealthCheck}),

		EmailVerification: handlers.NewEmailVerificationHandler(verifier, logger),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, h, tokenManager, pkghttp.NewIPConfig(nil))

	return &TestServer{
		Server: httptest.NewServer(r),
		DB:     db,
		Email:  sender,
		Audit:  audit,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
