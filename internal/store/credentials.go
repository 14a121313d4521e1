package store

import (
	"context"
	"errors"
	"strings"

	"healthqueue/internal/models"
)

// dummyHash keeps the unknown-phone path as slow as a wrong code.
var dummyHash, _ = HashLoginCode("000000")

// Authenticate looks up the principal for (role, phone) and checks the code.
// Unknown phones and wrong codes both yield ErrInvalidCredentials.
func Authenticate(ctx context.Context, identities IdentityStore, role, phoneNumber, code string) (models.Principal, error) {
	if !models.ValidRole(role) {
		return models.Principal{}, ErrInvalidRole
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	code = strings.TrimSpace(code)
	if phoneNumber == "" || code == "" {
		return models.Principal{}, ErrMissingFields
	}

	principal, hash, err := identities.FindCredentials(ctx, role, phoneNumber)
	if errors.Is(err, ErrPrincipalNotFound) {
		VerifyLoginCode(dummyHash, code)
		return models.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Principal{}, err
	}
	if !VerifyLoginCode(hash, code) {
		return models.Principal{}, ErrInvalidCredentials
	}
	return principal, nil
}
