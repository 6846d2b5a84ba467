// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"strconv"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost returns the work factor for password hashing, as configured in
// the PARKHAUS_BCRYPT_COST environment variable.
func BcryptCost() int {
	str := osext.GetenvOrDefault("PARKHAUS_BCRYPT_COST", "12")
	cost, err := strconv.Atoi(str)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		logg.Fatal("malformed value for PARKHAUS_BCRYPT_COST: %q", str)
	}
	return cost
}

// HashPassword computes the bcrypt hash that goes into the password_hash
// column of the users table.
func HashPassword(password string, cost int) (string, error) {
	buf, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("while hashing password: %w", err)
	}
	return string(buf), nil
}

// VerifyPassword checks a password attempt against a stored hash.
func VerifyPassword(passwordHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) == nil
}
