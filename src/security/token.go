package security

import (
	"golang.org/x/crypto/bcrypt"
)

// VerifyToken compares a presented bearer token against the configured
// bcrypt hash. An empty hash rejects everything.
func VerifyToken(tokenHash, token string) bool {
	if tokenHash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) == nil
}

// HashToken generates a bcrypt hash for a token, used by the token
// provisioning subcommand.
func HashToken(token string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
