package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types
const (
	TokenTypeSession           = "session"
	TokenTypeEmailVerification = "email_verification"
)

// TokenClaims are the JWT claims for session and verification tokens
type TokenClaims struct {
	Type                  string `json:"type"`
	AccountID             string `json:"account_id"`
	Identifier            string `json:"identifier,omitempty"`
	RequiresPasswordReset bool   `json:"requires_password_reset,omitempty"`
	jwt.RegisteredClaims
}

// Session is an issued login session
type Session struct {
	Token                 string
	TokenID               string
	AccountID             string
	ExpiresAt             time.Time
	RequiresPasswordReset bool
}

// LoginResult is the single decision the gate returns for an attempt
type LoginResult struct {
	Success               bool
	RequiresPasswordReset bool
	Session               *Session
	Message               string
	Reason                *FailureReason // internal only, never serialized to clients
}
