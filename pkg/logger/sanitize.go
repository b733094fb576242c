package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an identifier for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	if email == "" {
		return ""
	}

	username, domain, ok := strings.Cut(email, "@")
	if !ok {
		return maskTail(email)
	}

	username = maskTail(username)

	// Keep only the TLD of the domain
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

func maskTail(s string) string {
	runes := []rune(s)
	if len(runes) <= 1 {
		return s
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// RedactedAttr returns "[REDACTED]" for the value in production and the value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password", "token", "secret", "email", "identifier", "auth",
}

// SanitizeQueryString reports whether a raw query string carries sensitive parameters
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
