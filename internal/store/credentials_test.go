package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthqueue/internal/models"
)

type fakeIdentities struct {
	principal models.Principal
	hash      string
	err       error
}

func (f fakeIdentities) CreatePrincipal(context.Context, CreatePrincipalInput) (models.Principal, error) {
	return models.Principal{}, errors.New("not implemented")
}

func (f fakeIdentities) FindCredentials(context.Context, string, string) (models.Principal, string, error) {
	return f.principal, f.hash, f.err
}

func (f fakeIdentities) GetPrincipal(context.Context, string, string) (models.Principal, error) {
	return models.Principal{}, errors.New("not implemented")
}

func (f fakeIdentities) ListDoctors(context.Context) ([]models.DoctorListing, error) {
	return nil, nil
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashLoginCode("482913")
	require.NoError(t, err)
	known := fakeIdentities{
		principal: models.Principal{ID: "p-1", Role: models.RolePatient, PhoneNumber: "9990001111"},
		hash:      hash,
	}

	got, err := Authenticate(context.Background(), known, models.RolePatient, "9990001111", "482913")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)

	_, err = Authenticate(context.Background(), known, models.RolePatient, "9990001111", "000001")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	unknown := fakeIdentities{err: ErrPrincipalNotFound}
	_, err = Authenticate(context.Background(), unknown, models.RolePatient, "1112223333", "482913")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateValidatesInput(t *testing.T) {
	_, err := Authenticate(context.Background(), fakeIdentities{}, "admin", "1", "2")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = Authenticate(context.Background(), fakeIdentities{}, models.RoleDoctor, " ", "2")
	assert.ErrorIs(t, err, ErrMissingFields)

	boom := errors.New("db down")
	_, err = Authenticate(context.Background(), fakeIdentities{err: boom}, models.RoleDoctor, "1", "2")
	assert.ErrorIs(t, err, boom)
}
