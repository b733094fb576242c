package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/pkg/auth"
)

// CredentialLookup fetches the stored hash for an identifier
type CredentialLookup interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
}

// BcryptVerifier checks passwords against stored bcrypt hashes
type BcryptVerifier struct {
	lookup CredentialLookup
}

// NewBcryptVerifier creates a new BcryptVerifier
func NewBcryptVerifier(lookup CredentialLookup) *BcryptVerifier {
	return &BcryptVerifier{lookup: lookup}
}

type verifyResult struct {
	ok  bool
	err error
}

// Verify reports whether password matches the identifier's stored hash. Unknown
// identifiers still pay for one bcrypt comparison. The comparison cannot be
// interrupted, so a done ctx abandons it and returns ctx.Err().
func (v *BcryptVerifier) Verify(ctx context.Context, identifier, password string) (bool, error) {
	account, err := v.lookup.GetByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("load credentials: %w", err)
	}

	result := make(chan verifyResult, 1)
	go func() {
		if account == nil || account.PasswordHash == "" {
			auth.CompareDummy(password)
			result <- verifyResult{}
			return
		}
		ok, err := auth.PasswordMatches(account.PasswordHash, password)
		result <- verifyResult{ok: ok, err: err}
	}()

	select {
	case r := <-result:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
