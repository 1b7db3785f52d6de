package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// PasskeyServiceInterface defines passkey registration and management
type PasskeyServiceInterface interface {
	Config() auth.WebAuthnConfig
	BeginRegistration(ctx context.Context, accountID string) (*models.Challenge, error)
	CompleteRegistration(ctx context.Context, accountID string, resp *models.RegistrationResponse) (*models.PasskeyCredential, error)
	ListCredentials(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error)
	RevokeCredential(ctx context.Context, accountID string, credentialID []byte) error
}

// AccountEventRecorder persists account-level security events
type AccountEventRecorder interface {
	RecordAccountEvent(ctx context.Context, accountID, eventType, riskLevel string, metadata models.AuditMetadata)
}

// PasskeyHandler handles passkey registration and management for the signed-in account
type PasskeyHandler struct {
	service PasskeyServiceInterface
	events  AccountEventRecorder
	logger  *slog.Logger
}

// NewPasskeyHandler creates a new PasskeyHandler
func NewPasskeyHandler(service PasskeyServiceInterface, events AccountEventRecorder, logger *slog.Logger) *PasskeyHandler {
	return &PasskeyHandler{service: service, events: events, logger: logger}
}

// BeginRegistration returns creation options for a new passkey
// @Router /passkeys/register/begin [post]
func (h *PasskeyHandler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	existing, err := h.service.ListCredentials(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	exclude := make([][]byte, 0, len(existing))
	for _, cred := range existing {
		exclude = append(exclude, cred.CredentialID)
	}

	challenge, err := h.service.BeginRegistration(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CreationOptionsResponse{
		ChallengeID: challenge.ID,
		ExpiresAt:   challenge.ExpiresAt,
		PublicKey:   auth.CreationOptions(h.service.Config(), challenge.Value, claims.AccountID, claims.Email, exclude),
	})
}

// FinishRegistration verifies the attestation and stores the passkey
// @Router /passkeys/register/finish [post]
func (h *PasskeyHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req PasskeyRegisterFinishRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	registration, err := auth.ParseRegistration(req.ChallengeID, req.Label, req.Credential)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Malformed passkey response")
		return
	}

	cred, err := h.service.CompleteRegistration(r.Context(), claims.AccountID, registration)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.events.RecordAccountEvent(r.Context(), claims.AccountID, models.SecurityEventPasskeyAdded, models.RiskLevelLow,
		models.AuditMetadata{"credential_id": encodeCredentialID(cred.CredentialID)})

	pkghttp.WriteJSON(w, http.StatusCreated, toPasskeyResponse(cred))
}

// List returns the account's passkeys
// @Router /passkeys [get]
func (h *PasskeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	creds, err := h.service.ListCredentials(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	passkeys := make([]PasskeyResponse, 0, len(creds))
	for _, cred := range creds {
		passkeys = append(passkeys, toPasskeyResponse(cred))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"passkeys": passkeys})
}

// Revoke deletes a passkey by its base64url credential id
// @Router /passkeys/{id} [delete]
func (h *PasskeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	encoded := chi.URLParam(r, "id")
	credentialID, err := decodeCredentialID(encoded)
	if err != nil || len(credentialID) == 0 {
		pkghttp.WriteBadRequest(w, "Invalid passkey id")
		return
	}

	if err := h.service.RevokeCredential(r.Context(), claims.AccountID, credentialID); err != nil {
		h.writeError(w, err)
		return
	}

	h.events.RecordAccountEvent(r.Context(), claims.AccountID, models.SecurityEventPasskeyRevoked, models.RiskLevelMedium,
		models.AuditMetadata{"credential_id": encoded})

	w.WriteHeader(http.StatusNoContent)
}

func (h *PasskeyHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Passkey not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "This passkey is already registered")
	case errors.Is(err, models.ErrCeremonyMismatch),
		errors.Is(err, models.ErrExpired),
		errors.Is(err, models.ErrAlreadyUsed),
		errors.Is(err, models.ErrBadRequest):
		h.logger.Info("passkey registration rejected", slog.Any("cause", err))
		pkghttp.WriteBadRequest(w, "Passkey registration failed. Please try again.")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		h.logger.Error("passkey request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
