package routes

import (
	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/middleware"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth    *handlers.AuthHandler
	MFA     *handlers.MFAHandler
	Passkey *handlers.PasskeyHandler
	Account *handlers.AccountHandler
	Health  *handlers.HealthHandler

	EmailVerification *handlers.EmailVerificationHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, tokenManager *auth.TokenManager, ipConfig *pkghttp.IPConfig) {
	router.Get("/health", h.Health.Health)

	// Public credential endpoints, limited per client IP on top of the per-account lockout
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.DefaultAuthRateLimit(), ipConfig))

		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/password/strength", h.Auth.PasswordStrength)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/verify-email", h.EmailVerification.VerifyEmail)

		r.Post("/auth/mfa/email-otp", h.Auth.SendEmailOTP)
		r.Post("/auth/mfa/verify", h.Auth.VerifyMFA)
		r.Post("/auth/mfa/passkey/begin", h.Auth.BeginPasskeyMFA)
		r.Post("/auth/mfa/passkey/finish", h.Auth.FinishPasskeyMFA)

		r.Post("/auth/passkey/begin", h.Auth.BeginPasskeyLogin)
		r.Post("/auth/passkey/finish", h.Auth.FinishPasskeyLogin)
	})

	// Protected routes - access token required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByAccount(middleware.DefaultAccountRateLimit(), ipConfig))

		r.Post("/mfa/setup", h.MFA.Setup)
		r.Post("/mfa/setup/verify", h.MFA.VerifySetup)
		r.Post("/mfa/disable", h.MFA.Disable)
		r.Post("/mfa/backup-codes", h.MFA.RegenerateBackupCodes)
		r.Get("/mfa/status", h.MFA.Status)

		r.Post("/passkeys/register/begin", h.Passkey.BeginRegistration)
		r.Post("/passkeys/register/finish", h.Passkey.FinishRegistration)
		r.Get("/passkeys", h.Passkey.List)
		r.Delete("/passkeys/{id}", h.Passkey.Revoke)

		r.Get("/account/security", h.Account.Security)
		r.Post("/account/verify-email/resend", h.EmailVerification.ResendVerification)
	})
}
