package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and validates the short-lived JWTs that carry a login
// between stages: the mfa_pending token while a second factor is outstanding
// and the access token once the flow is authenticated.
type TokenManager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	mfaTokenExpiry    time.Duration
	clock             Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, mfaExpiry time.Duration, clock Clock) *TokenManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenManager{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		mfaTokenExpiry:    mfaExpiry,
		clock:             clock,
	}
}

// AccessTokenExpiry returns the access token lifetime
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessTokenExpiry
}

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(accountID, email string) (string, error) {
	return tm.sign(models.TokenTypeAccess, accountID, email, tm.accessTokenExpiry)
}

// GenerateMFAToken creates the token that proves the primary credential was
// verified and a second factor is still required
func (tm *TokenManager) GenerateMFAToken(accountID, email string) (string, error) {
	return tm.sign(models.TokenTypeMFAPending, accountID, email, tm.mfaTokenExpiry)
}

func (tm *TokenManager) sign(tokenType, accountID, email string, ttl time.Duration) (string, error) {
	now := tm.clock.Now()
	claims := &models.TokenClaims{
		Type:      tokenType,
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return tokenString, nil
}

// ValidateToken verifies a token, checks it is of the expected type and returns its claims
func (tm *TokenManager) ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.clock.Now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("invalid token: expected %s, got %q", expectedType, claims.Type)
	}
	if claims.AccountID == "" {
		return nil, fmt.Errorf("invalid token: missing account id")
	}

	return claims, nil
}
