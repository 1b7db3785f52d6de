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

// MFAServiceInterface defines TOTP enrollment operations
type MFAServiceInterface interface {
	InitiateSetup(ctx context.Context, accountID string) (*models.MFASetupResponse, error)
	VerifySetup(ctx context.Context, accountID, code string) error
	Disable(ctx context.Context, accountID, code string) error
	RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error)
	Status(ctx context.Context, accountID string) (*models.MFAStatus, error)
}

// MFAHandler handles TOTP enrollment for the signed-in account
type MFAHandler struct {
	service MFAServiceInterface
	logger  *slog.Logger
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{service: service, logger: logger}
}

func (h *MFAHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "MFA is already enabled")
	case errors.Is(err, models.ErrMFANotEnabled):
		pkghttp.WriteBadRequest(w, "MFA is not enabled")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "MFA setup has not been started")
	case errors.Is(err, models.ErrInvalidCredential):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrRateLimited):
		pkghttp.WriteLocked(w, 0)
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		h.logger.Error("mfa request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Setup starts TOTP enrollment. The secret and backup codes are returned once.
// @Router /mfa/setup [post]
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	setup, err := h.service.InitiateSetup(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// VerifySetup enables MFA once the first TOTP code checks out
// @Router /mfa/setup/verify [post]
func (h *MFAHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req VerifyMFASetupRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifySetup(r.Context(), claims.AccountID, req.Code); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mfa_enabled": true,
		"message":     "Two-factor authentication is now enabled.",
	})
}

// Disable turns MFA off after a current TOTP or backup code
// @Router /mfa/disable [post]
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableMFARequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), claims.AccountID, req.Code); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mfa_enabled": false,
		"message":     "Two-factor authentication has been disabled.",
	})
}

// RegenerateBackupCodes swaps every backup code for a fresh set after a
// current TOTP code. The new codes are shown once.
// @Router /mfa/backup-codes [post]
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req RegenerateBackupCodesRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.AccountID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Status reports the account's second factors
// @Router /mfa/status [get]
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}
