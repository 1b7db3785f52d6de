package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Verification outcome kinds. Validators wrap these with the real cause;
	// the auth service collapses everything except ErrRateLimited and
	// ErrCounterRegression into ErrInvalidCredential before it reaches a caller.
	ErrRateLimited       = errors.New("account is temporarily locked")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpired           = errors.New("code or challenge expired")
	ErrCeremonyMismatch  = errors.New("webauthn ceremony binding mismatch")
	ErrCounterRegression = errors.New("passkey signature counter did not increase")
	ErrAlreadyUsed       = errors.New("code or challenge already used")

	// Infrastructure fault; the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrWeakPassword    = errors.New("password does not meet strength requirements")
	ErrMFANotEnabled   = errors.New("mfa is not enabled for this account")
	ErrMFAMethod       = errors.New("unsupported second factor method")
	ErrInvalidMFAToken = errors.New("invalid or expired mfa token")
	ErrResendCooldown  = errors.New("verification email sent recently")
)
