package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
)

// RiskPolicy holds the lockout policy constants
type RiskPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// DefaultRiskPolicy is five attempts then a fifteen minute lock
var DefaultRiskPolicy = RiskPolicy{MaxAttempts: 5, LockoutDuration: 15 * time.Minute}

type riskStage int

const (
	stagePrimary riskStage = iota
	stageSecondFactor
)

// RiskGate tracks failed attempts and lockout windows per account.
// Unknown accounts always get the full budget so lockout state never
// reveals whether an account exists.
type RiskGate struct {
	accounts AccountStore
	policy   RiskPolicy
	clock    auth.Clock
	logger   *slog.Logger
}

// NewRiskGate creates a new RiskGate
func NewRiskGate(accounts AccountStore, policy RiskPolicy, clock auth.Clock, logger *slog.Logger) *RiskGate {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRiskPolicy.MaxAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = DefaultRiskPolicy.LockoutDuration
	}
	return &RiskGate{
		accounts: accounts,
		policy:   policy,
		clock:    clock,
		logger:   logger,
	}
}

// Policy returns the active lockout policy
func (g *RiskGate) Policy() RiskPolicy {
	return g.policy
}

// CheckAllowed reports whether a primary-credential attempt may proceed for key.
// It fails closed while a lock is active.
func (g *RiskGate) CheckAllowed(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.check(ctx, key, stagePrimary)
}

// CheckSecondFactorAllowed is CheckAllowed for the MFA stage
func (g *RiskGate) CheckSecondFactorAllowed(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.check(ctx, key, stageSecondFactor)
}

// ReserveAttempt counts a primary attempt before the credential is evaluated.
// The budget check and the increment happen in one account update, so
// concurrent attempts can never evaluate more credentials than the budget
// allows. Allowed reports whether the attempt was granted; RemainingAttempts
// is what is left if it turns out to fail. RecordSuccess refunds it.
func (g *RiskGate) ReserveAttempt(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.count(ctx, key, stagePrimary, true)
}

// ReserveSecondFactorAttempt is ReserveAttempt for the MFA stage.
// RecordSecondFactorSuccess refunds it.
func (g *RiskGate) ReserveSecondFactorAttempt(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.count(ctx, key, stageSecondFactor, true)
}

// RecordFailure counts a failed primary-credential attempt and starts a lock
// when the count reaches the policy maximum
func (g *RiskGate) RecordFailure(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.count(ctx, key, stagePrimary, false)
}

// RecordSecondFactorFailure counts a failed second-factor attempt. It shares
// the account lock with primary failures but keeps its own counter.
func (g *RiskGate) RecordSecondFactorFailure(ctx context.Context, key string) (models.RiskDecision, error) {
	return g.count(ctx, key, stageSecondFactor, false)
}

// RecordSuccess resets the primary counter and stamps the login time. A lock
// is lifted unless the second-factor budget is the one exhausted.
func (g *RiskGate) RecordSuccess(ctx context.Context, key string) error {
	now := g.clock.Now()
	_, err := g.accounts.Update(ctx, key, func(a *models.Account) error {
		g.expire(a, now)
		a.FailedAttempts = 0
		if a.MFAFailedAttempts < g.policy.MaxAttempts {
			a.LockedUntil = nil
		}
		a.LastLoginAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return g.storeError("record success", err)
	}
	return nil
}

// RecordSecondFactorSuccess resets the second-factor counter once a login
// completes. A lock is lifted unless the password budget is the one exhausted.
func (g *RiskGate) RecordSecondFactorSuccess(ctx context.Context, key string) error {
	now := g.clock.Now()
	_, err := g.accounts.Update(ctx, key, func(a *models.Account) error {
		g.expire(a, now)
		a.MFAFailedAttempts = 0
		if a.FailedAttempts < g.policy.MaxAttempts {
			a.LockedUntil = nil
		}
		return nil
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return g.storeError("record second factor success", err)
	}
	return nil
}

func (g *RiskGate) check(ctx context.Context, key string, stage riskStage) (models.RiskDecision, error) {
	if key == "" {
		return g.fullBudget(), nil
	}

	account, err := g.accounts.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return g.fullBudget(), nil
		}
		return models.RiskDecision{}, g.storeError("check allowed", err)
	}

	return g.decide(account, stage, g.clock.Now()), nil
}

// errLockActive aborts an update that would not change anything
var errLockActive = errors.New("lock active")

// count adds one attempt to the stage counter. While a lock is active nothing
// is written and the decision is a refusal. With reserve set a granted
// attempt stays Allowed even when it takes the last slot.
func (g *RiskGate) count(ctx context.Context, key string, stage riskStage, reserve bool) (models.RiskDecision, error) {
	if key == "" {
		return g.unknownFailure(), nil
	}

	now := g.clock.Now()
	var decision models.RiskDecision
	_, err := g.accounts.Update(ctx, key, func(a *models.Account) error {
		if a.IsLocked(now) {
			decision = g.decide(a, stage, now)
			return errLockActive
		}
		g.expire(a, now)

		counter := &a.FailedAttempts
		if stage == stageSecondFactor {
			counter = &a.MFAFailedAttempts
		}
		*counter++

		if *counter >= g.policy.MaxAttempts {
			until := now.Add(g.policy.LockoutDuration)
			a.LockedUntil = &until
			g.logger.Warn("account locked",
				slog.String("account_id", a.ID),
				slog.Int("failed_attempts", *counter),
				slog.Time("locked_until", until))
		}

		decision = g.decide(a, stage, now)
		if reserve {
			decision.Allowed = true
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errLockActive):
			return decision, nil
		case errors.Is(err, models.ErrNotFound):
			return g.unknownFailure(), nil
		}
		return models.RiskDecision{}, g.storeError("record failure", err)
	}

	return decision, nil
}

// expire clears an elapsed lock. The next window starts from zero on both
// counters, which also covers a lock that only the second factor reached.
func (g *RiskGate) expire(a *models.Account, now time.Time) {
	if g.stale(a, now) {
		a.LockedUntil = nil
		a.FailedAttempts = 0
		a.MFAFailedAttempts = 0
	}
}

// stale reports whether the counters belong to a window that has ended: the
// lock elapsed, or a counter sits at the maximum with no lock behind it.
func (g *RiskGate) stale(a *models.Account, now time.Time) bool {
	if a.LockedUntil != nil {
		return !a.IsLocked(now)
	}
	return a.FailedAttempts >= g.policy.MaxAttempts || a.MFAFailedAttempts >= g.policy.MaxAttempts
}

func (g *RiskGate) decide(a *models.Account, stage riskStage, now time.Time) models.RiskDecision {
	if a.IsLocked(now) {
		until := *a.LockedUntil
		return models.RiskDecision{Allowed: false, RemainingAttempts: 0, LockedUntil: &until}
	}
	if g.stale(a, now) {
		return g.fullBudget()
	}

	failed := a.FailedAttempts
	if stage == stageSecondFactor {
		failed = a.MFAFailedAttempts
	}

	remaining := g.policy.MaxAttempts - failed
	if remaining < 0 {
		remaining = 0
	}
	return models.RiskDecision{Allowed: remaining > 0, RemainingAttempts: remaining}
}

func (g *RiskGate) fullBudget() models.RiskDecision {
	return models.RiskDecision{Allowed: true, RemainingAttempts: g.policy.MaxAttempts}
}

// Failures against unknown accounts are not persisted; the answer mirrors
// a real account's first failure.
func (g *RiskGate) unknownFailure() models.RiskDecision {
	remaining := g.policy.MaxAttempts - 1
	return models.RiskDecision{Allowed: remaining > 0, RemainingAttempts: remaining}
}

func (g *RiskGate) storeError(op string, err error) error {
	g.logger.Error("risk gate store failure", slog.String("op", op), slog.Any("error", err))
	if errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}
