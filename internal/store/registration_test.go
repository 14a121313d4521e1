package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationID(t *testing.T) {
	assert.Equal(t, "REG-2025-001", RegistrationID(2025, 1))
	assert.Equal(t, "REG-2025-042", RegistrationID(2025, 42))
	assert.Equal(t, "REG-2025-999", RegistrationID(2025, 999))
	assert.Equal(t, "REG-2026-1000", RegistrationID(2026, 1000))
}

func TestGenerateLoginCodeIsSixDigits(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateLoginCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestHashAndVerifyLoginCode(t *testing.T) {
	hash, err := HashLoginCode("123456")
	require.NoError(t, err)
	assert.NotEqual(t, "123456", hash)
	assert.True(t, VerifyLoginCode(hash, "123456"))
	assert.False(t, VerifyLoginCode(hash, "654321"))
	assert.False(t, VerifyLoginCode("not-a-hash", "123456"))
}

func TestIssueLoginCode(t *testing.T) {
	code, hash, err := IssueLoginCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.True(t, VerifyLoginCode(hash, code))
}
