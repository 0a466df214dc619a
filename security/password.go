// Package security hashes and verifies passwords for internal (i.e. not
// externally authenticated) users. The hashes are kept in
// server.Security's in-memory account table; no system database or
// #_USER_ dimension holds them. Grounded on the teacher's
// security/bcrypt.go.
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost balances hashing time against brute-force resistance.
const DefaultCost = bcrypt.DefaultCost

// HashPassword bcrypt-hashes password at DefaultCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A non-nil error
// (including bcrypt.ErrMismatchedHashAndPassword) means authentication
// failed.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
