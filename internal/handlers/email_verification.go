package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// EmailVerifier redeems and reissues email verification links
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, token string) (string, error)
	Resend(ctx context.Context, accountID string) error
}

// EmailVerificationHandler confirms account email addresses
type EmailVerificationHandler struct {
	verifier EmailVerifier
	logger   *slog.Logger
}

func NewEmailVerificationHandler(verifier EmailVerifier, logger *slog.Logger) *EmailVerificationHandler {
	return &EmailVerificationHandler{verifier: verifier, logger: logger}
}

func (h *EmailVerificationHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteBadRequest(w, "Invalid or expired verification link")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Email is already verified")
	case errors.Is(err, models.ErrResendCooldown):
		pkghttp.WriteTooManyRequests(w, "A verification email was sent recently")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		h.logger.Error("email verification request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// VerifyEmail redeems the token from a verification link
// @Router /auth/verify-email [post]
func (h *EmailVerificationHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if _, err := h.verifier.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified",
	})
}

// ResendVerification emails a fresh link to the signed-in account
// @Router /account/verify-email/resend [post]
func (h *EmailVerificationHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.verifier.Resend(r.Context(), claims.AccountID); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "Verification email sent",
	})
}
