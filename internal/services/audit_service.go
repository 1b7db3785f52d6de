package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 100
)

// AuditService records verification attempts and account changes with a
// dual-write pattern (slog + security event store)
type AuditService struct {
	events SecurityEventStore
	audit  *logger.AuditLogger
	clock  auth.Clock
	logger *slog.Logger
}

// NewAuditService creates a new AuditService. events may be nil, in which
// case records only go to the log.
func NewAuditService(events SecurityEventStore, clock auth.Clock, log *slog.Logger) *AuditService {
	return &AuditService{
		events: events,
		audit:  logger.NewAuditLogger(log),
		clock:  clock,
		logger: log,
	}
}

// RecordAttempt logs one verification outcome and, for known accounts,
// persists it to the account's security feed
func (s *AuditService) RecordAttempt(ctx context.Context, record models.AttemptRecord, remaining int) {
	if record.At.IsZero() {
		record.At = s.clock.Now()
	}

	s.audit.LogAttempt(ctx, logger.AttemptEvent{
		Kind:      record.Kind,
		Result:    record.Result,
		AccountID: record.AccountID,
		Email:     record.Email,
		Cause:     record.Cause,
		Remaining: remaining,
		At:        record.At,
	})

	if record.AccountID == "" {
		return
	}

	eventType := models.SecurityEventLoginFailed
	risk := models.RiskLevelMedium
	switch record.Result {
	case models.AttemptResultSuccess:
		eventType = models.SecurityEventLoginSuccess
		risk = models.RiskLevelLow
	case models.AttemptResultRejectedLocked:
		eventType = models.SecurityEventAccountLocked
		risk = models.RiskLevelHigh
	}

	s.persist(ctx, &models.SecurityEvent{
		AccountID: record.AccountID,
		EventType: eventType,
		Kind:      record.Kind,
		Result:    record.Result,
		RiskLevel: risk,
		CreatedAt: record.At,
	})
}

// RecordAccountEvent logs and persists an account change such as MFA
// enrollment or a passkey counter regression
func (s *AuditService) RecordAccountEvent(ctx context.Context, accountID, eventType, riskLevel string, metadata models.AuditMetadata) {
	flat := make(map[string]string, len(metadata))
	for k, v := range metadata {
		flat[k] = fmt.Sprint(v)
	}
	s.audit.LogAccountAction(ctx, eventType, accountID, flat)

	s.persist(ctx, &models.SecurityEvent{
		AccountID: accountID,
		EventType: eventType,
		RiskLevel: riskLevel,
		Metadata:  metadata,
		CreatedAt: s.clock.Now(),
	})
}

// RecentEvents returns the newest security events for an account
func (s *AuditService) RecentEvents(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	if s.events == nil {
		return []*models.SecurityEvent{}, nil
	}
	switch {
	case limit <= 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}

	events, err := s.events.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}

func (s *AuditService) persist(ctx context.Context, event *models.SecurityEvent) {
	if s.events == nil {
		return
	}
	event.ID = uuid.New().String()

	// Audit persistence never fails the request
	if err := s.events.Create(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
		)
	}
}
