package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             []byte
	sessionExpiry      time.Duration
	verificationExpiry time.Duration
	clock              Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, sessionExpiry, verificationExpiry time.Duration, clock Clock) *TokenManager {
	return &TokenManager{
		secret:             []byte(secret),
		sessionExpiry:      sessionExpiry,
		verificationExpiry: verificationExpiry,
		clock:              clock,
	}
}

// GenerateSessionToken creates a session token with a fresh JTI
func (tm *TokenManager) GenerateSessionToken(accountID, identifier string, requiresPasswordReset bool) (string, *models.TokenClaims, error) {
	claims := tm.newClaims(models.TokenTypeSession, accountID, identifier, tm.sessionExpiry)
	claims.RequiresPasswordReset = requiresPasswordReset

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, claims, nil
}

// GenerateVerificationToken creates a single-purpose email verification token
func (tm *TokenManager) GenerateVerificationToken(accountID, identifier string) (string, *models.TokenClaims, error) {
	claims := tm.newClaims(models.TokenTypeEmailVerification, accountID, identifier, tm.verificationExpiry)

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign verification token: %w", err)
	}
	return tokenString, claims, nil
}

func (tm *TokenManager) newClaims(tokenType, accountID, identifier string, expiry time.Duration) *models.TokenClaims {
	now := tm.clock.Now()
	return &models.TokenClaims{
		Type:       tokenType,
		AccountID:  accountID,
		Identifier: identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// ValidateToken verifies a token of the expected type and returns its claims
func (tm *TokenManager) ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("invalid token: expected type %q", expectedType)
	}

	if claims.AccountID == "" || claims.ID == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}

	return claims, nil
}
