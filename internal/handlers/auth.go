package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// AuthServiceInterface defines the login state machine the handlers drive
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	SendEmailOTP(ctx context.Context, mfaToken string) error
	VerifySecondFactor(ctx context.Context, mfaToken, method, code string) (*models.LoginResult, error)
	BeginPasskeySecondFactor(ctx context.Context, mfaToken string) (*models.Challenge, []*models.PasskeyCredential, error)
	CompletePasskeySecondFactor(ctx context.Context, mfaToken string, resp *models.AssertionResponse) (*models.LoginResult, error)
	BeginPasskeyLogin(ctx context.Context) (*models.Challenge, error)
	CompletePasskeyLogin(ctx context.Context, resp *models.AssertionResponse) (*models.LoginResult, error)
}

// AuthHandler handles the unauthenticated credential endpoints
type AuthHandler struct {
	service  AuthServiceInterface
	webauthn auth.WebAuthnConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, webauthn auth.WebAuthnConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, webauthn: webauthn, logger: logger}
}

// writeAuthError maps the collapsed failure kinds to responses. Only the
// remaining budget and lock duration are exposed; never the real cause.
func writeAuthError(w http.ResponseWriter, logger *slog.Logger, result *models.LoginResult, err error) {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		var retryAfter int64
		if result != nil {
			retryAfter = result.RetryAfter
		}
		pkghttp.WriteLocked(w, retryAfter)
	case errors.Is(err, models.ErrCounterRegression):
		pkghttp.WriteCredentialCompromised(w)
	case errors.Is(err, models.ErrInvalidCredential):
		remaining := 0
		if result != nil {
			remaining = result.RemainingAttempts
		}
		pkghttp.WriteAuthFailure(w, remaining)
	case errors.Is(err, models.ErrInvalidMFAToken):
		pkghttp.WriteUnauthorized(w, "Invalid or expired MFA token")
	case errors.Is(err, models.ErrMFAMethod):
		pkghttp.WriteBadRequest(w, "Second factor method is not available for this account")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.Error("authentication request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Register handles account registration
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrWeakPassword):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "weak_password",
				"Password does not meet strength requirements",
				strings.Join(pkgauth.Score(req.Password).Feedback, "; "))
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		default:
			writeAuthError(w, h.logger, nil, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{AccountID: account.ID, Email: account.Email})
}

// PasswordStrength scores a candidate password. Advisory only.
// @Router /auth/password/strength [post]
func (h *AuthHandler) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req PasswordStrengthRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, pkgauth.Score(req.Password))
}

// Login handles the password step
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, h.logger, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// SendEmailOTP emails a one-time code for the pending login
// @Router /auth/mfa/email-otp [post]
func (h *AuthHandler) SendEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req MFATokenRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.SendEmailOTP(r.Context(), req.MFAToken); err != nil {
		writeAuthError(w, h.logger, nil, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "A verification code has been sent to your email address.",
	})
}

// VerifyMFA completes the second factor with an email OTP, TOTP or backup code
// @Router /auth/mfa/verify [post]
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyMFARequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifySecondFactor(r.Context(), req.MFAToken, req.Method, req.Code)
	if err != nil {
		writeAuthError(w, h.logger, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// BeginPasskeyMFA issues a challenge for a passkey second factor
// @Router /auth/mfa/passkey/begin [post]
func (h *AuthHandler) BeginPasskeyMFA(w http.ResponseWriter, r *http.Request) {
	var req MFATokenRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	challenge, creds, err := h.service.BeginPasskeySecondFactor(r.Context(), req.MFAToken)
	if err != nil {
		writeAuthError(w, h.logger, nil, err)
		return
	}

	allow := make([][]byte, 0, len(creds))
	for _, cred := range creds {
		allow = append(allow, cred.CredentialID)
	}

	pkghttp.WriteJSON(w, http.StatusOK, AssertionOptionsResponse{
		ChallengeID: challenge.ID,
		ExpiresAt:   challenge.ExpiresAt,
		PublicKey:   auth.RequestOptions(h.webauthn, challenge.Value, allow),
	})
}

// FinishPasskeyMFA completes the second factor with a passkey assertion
// @Router /auth/mfa/passkey/finish [post]
func (h *AuthHandler) FinishPasskeyMFA(w http.ResponseWriter, r *http.Request) {
	var req PasskeyMFAFinishRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	assertion, err := auth.ParseAssertion(req.ChallengeID, req.Credential)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Malformed passkey response")
		return
	}

	result, err := h.service.CompletePasskeySecondFactor(r.Context(), req.MFAToken, assertion)
	if err != nil {
		writeAuthError(w, h.logger, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// BeginPasskeyLogin issues a challenge for usernameless passkey login
// @Router /auth/passkey/begin [post]
func (h *AuthHandler) BeginPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.service.BeginPasskeyLogin(r.Context())
	if err != nil {
		writeAuthError(w, h.logger, nil, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AssertionOptionsResponse{
		ChallengeID: challenge.ID,
		ExpiresAt:   challenge.ExpiresAt,
		PublicKey:   auth.RequestOptions(h.webauthn, challenge.Value, nil),
	})
}

// FinishPasskeyLogin authenticates with a passkey assertion
// @Router /auth/passkey/finish [post]
func (h *AuthHandler) FinishPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	var req PasskeyFinishRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	assertion, err := auth.ParseAssertion(req.ChallengeID, req.Credential)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Malformed passkey response")
		return
	}

	result, err := h.service.CompletePasskeyLogin(r.Context(), assertion)
	if err != nil {
		writeAuthError(w, h.logger, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
