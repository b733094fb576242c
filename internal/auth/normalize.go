package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

const (
	MinIdentifierLength = 3
	MaxIdentifierLength = 255
	MaxPasswordLength   = 256
)

// Coarse denylist only. Parameterized queries are what actually stop injection.
var sqlKeywordPattern = regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|exec|script)`)

var validate = validator.New()

// loginInput carries the declarative length rules for a normalized attempt
type loginInput struct {
	Identifier string `validate:"required,min=3,max=255"`
	Password   string `validate:"required,max=256"`
}

// NormalizeIdentifier applies NFC, trims surrounding whitespace and lower-cases
func NormalizeIdentifier(raw string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
}

// NormalizeAttempt validates raw credentials and returns the canonical identifier.
// Every rejection wraps models.ErrInvalidInput.
func NormalizeAttempt(rawIdentifier, password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: blank password", models.ErrInvalidInput)
	}

	identifier := NormalizeIdentifier(rawIdentifier)

	if err := validate.Struct(loginInput{Identifier: identifier, Password: password}); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	if sqlKeywordPattern.MatchString(identifier) {
		return "", fmt.Errorf("%w: denylisted keyword", models.ErrInvalidInput)
	}

	return identifier, nil
}

// ValidIdentifier reports whether a normalized identifier would pass login normalization
func ValidIdentifier(identifier string) bool {
	n := len([]rune(identifier))
	if n < MinIdentifierLength || n > MaxIdentifierLength {
		return false
	}
	return identifier == NormalizeIdentifier(identifier) && !sqlKeywordPattern.MatchString(identifier)
}

// ValidRegistrationIdentifier also requires an email address. Login accepts
// legacy identifiers that are not.
func ValidRegistrationIdentifier(identifier string) bool {
	return ValidIdentifier(identifier) && validate.Var(identifier, "email") == nil
}

// AuditIdentifier is the best-effort identifier recorded for attempts that failed normalization
func AuditIdentifier(rawIdentifier string) string {
	identifier := NormalizeIdentifier(rawIdentifier)
	if runes := []rune(identifier); len(runes) > MaxIdentifierLength {
		identifier = string(runes[:MaxIdentifierLength])
	}
	return identifier
}
