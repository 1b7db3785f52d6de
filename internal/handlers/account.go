package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// SecurityScorer computes the account security score
type SecurityScorer interface {
	Score(ctx context.Context, accountID string) (*models.SecurityScore, error)
}

// SecurityEventReader lists recent security events
type SecurityEventReader interface {
	RecentEvents(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error)
}

// AccountHandler serves the account security overview
type AccountHandler struct {
	scorer SecurityScorer
	events SecurityEventReader
	logger *slog.Logger
}

func NewAccountHandler(scorer SecurityScorer, events SecurityEventReader, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{scorer: scorer, events: events, logger: logger}
}

// Security returns the score, recommendations and recent security events.
// ?limit= bounds the event list.
// @Router /account/security [get]
func (h *AccountHandler) Security(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	score, err := h.scorer.Score(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		h.logger.Error("failed to compute security score", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	events, err := h.events.RecentEvents(r.Context(), claims.AccountID, limit)
	if err != nil {
		h.logger.Error("failed to list security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AccountSecurityResponse{SecurityScore: score, Events: events})
}
