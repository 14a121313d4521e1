package store

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const loginCodeDigits = 6

var loginCodeSpace = big.NewInt(1_000_000)

// RegistrationID renders the human-facing id for a department queue number.
// Numbers wider than three digits are printed in full.
func RegistrationID(year int, queueNumber int64) string {
	return fmt.Sprintf("REG-%d-%03d", year, queueNumber)
}

func GenerateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, loginCodeSpace)
	if err != nil {
		return "", fmt.Errorf("generate login code: %w", err)
	}
	return fmt.Sprintf("%0*d", loginCodeDigits, n.Int64()), nil
}

func HashLoginCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash login code: %w", err)
	}
	return string(hash), nil
}

func VerifyLoginCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// IssueLoginCode returns a fresh plaintext code together with its hash.
func IssueLoginCode() (string, string, error) {
	code, err := GenerateLoginCode()
	if err != nil {
		return "", "", err
	}
	hash, err := HashLoginCode(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}
